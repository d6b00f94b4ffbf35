package tools

import (
	"context"
	"fmt"
	"time"
)

// RegisterSystemTools attaches the time and model management tools.
// reconfigure swaps the active model; it is supplied by the agent so
// the registry stays decoupled from client construction.
func RegisterSystemTools(r *Registry, reconfigure func(model string) error) {
	r.Register(&Tool{
		Name:        "get_current_time",
		Description: "Get the current date and time. Use when the user asks about dates or when a relative date range is needed.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			now := time.Now()
			return fmt.Sprintf("Current time: %s (%s)", now.Format("2006-01-02 15:04:05 MST"), now.Weekday()), nil
		},
	})

	if reconfigure != nil {
		r.Register(&Tool{
			Name:        "reconfigure_model",
			Description: "Switch the conversation to a different model. Takes effect from the next request.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"model": map[string]any{
						"type":        "string",
						"description": "The model identifier to switch to (e.g., deepseek-chat, deepseek-reasoner)",
					},
				},
				"required": []string{"model"},
			},
			Handler: func(ctx context.Context, args map[string]any) (string, error) {
				model := strArg(args, "model")
				if model == "" {
					return "", fmt.Errorf("model is required")
				}
				if err := reconfigure(model); err != nil {
					return "", err
				}
				return fmt.Sprintf("Model switched to %s.", model), nil
			},
		})
	}
}
