// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/kaptinlin/jsonrepair"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string                                                          `json:"name"`
	Description string                                                          `json:"description"`
	Parameters  map[string]any                                                  `json:"parameters"`
	Handler     func(ctx context.Context, args map[string]any) (string, error) `json:"-"`
}

// Registry holds available tools. Registration order is preserved so
// the tool list presented to the model is stable across turns.
type Registry struct {
	tools  map[string]*Tool
	order  []string
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry. Domain tool sets are
// attached with the Register* functions.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger,
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t *Tool) {
	if _, exists := r.tools[t.Name]; !exists {
		r.order = append(r.order, t.Name)
	}
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools in the OpenAI function-calling schema.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, name := range r.order {
		t := r.tools[name]
		result = append(result, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			},
		})
	}
	return result
}

// Execute runs a tool by name with given arguments. Malformed argument
// JSON is run through a repair pass first; models truncate or
// mis-quote arguments often enough that rejecting outright wastes a
// round trip.
func (r *Registry) Execute(ctx context.Context, name string, argsJSON string) (string, error) {
	tool := r.tools[name]
	if tool == nil {
		return "", fmt.Errorf("unknown tool: %s", name)
	}

	var args map[string]any
	if argsJSON != "" {
		if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
			repaired, repErr := jsonrepair.JSONRepair(argsJSON)
			if repErr != nil {
				return "", fmt.Errorf("invalid arguments: %w", err)
			}
			if err := json.Unmarshal([]byte(repaired), &args); err != nil {
				return "", fmt.Errorf("invalid arguments after repair: %w", err)
			}
			r.logger.Debug("repaired tool arguments", "tool", name, "raw", argsJSON)
		}
	}

	return tool.Handler(ctx, args)
}

// Argument accessors. JSON numbers arrive as float64; the model also
// sends numbers as strings at times, so numeric accessors accept both.

func strArg(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func numArg(args map[string]any, key string) (float64, bool) {
	switch v := args[key].(type) {
	case float64:
		return v, true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

func intArg(args map[string]any, key string, def int) int {
	if f, ok := numArg(args, key); ok {
		return int(f)
	}
	return def
}
