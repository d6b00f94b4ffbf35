package tools

import (
	"context"
	"fmt"
	"strings"

	"finagent/internal/alerts"
)

// RegisterAlertTools attaches the price alert management tools to the
// registry.
func RegisterAlertTools(r *Registry, store *alerts.Store) {
	r.Register(&Tool{
		Name:        "add_price_alert",
		Description: "Create a price alert. It fires once when the condition becomes true, then disarms until updated.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "The stock code with exchange suffix (e.g., 600519.SH)",
				},
				"comparator": map[string]any{
					"type":        "string",
					"description": "One of: >, >=, <, <=",
				},
				"threshold": map[string]any{
					"type":        "number",
					"description": "Absolute price to compare against",
				},
				"notify_target": map[string]any{
					"type":        "string",
					"description": "Optional email address to notify; defaults to the configured recipient",
				},
			},
			"required": []string{"symbol", "comparator", "threshold"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			threshold, ok := numArg(args, "threshold")
			if !ok {
				return "", fmt.Errorf("threshold is required")
			}
			task, err := store.Add(alerts.Task{
				Symbol:       strArg(args, "symbol"),
				Comparator:   alerts.Comparator(strArg(args, "comparator")),
				Threshold:    threshold,
				NotifyTarget: strArg(args, "notify_target"),
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Alert created (id %s): %s", task.ID, task.Condition()), nil
		},
	})

	r.Register(&Tool{
		Name:        "list_price_alerts",
		Description: "List all price alerts with their ids, conditions and armed state.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			tasks, err := store.List()
			if err != nil {
				return "", err
			}
			if len(tasks) == 0 {
				return "No price alerts configured.", nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%d alert(s):\n", len(tasks))
			for _, t := range tasks {
				state := "armed"
				if !t.Enabled {
					state = "fired"
				}
				fmt.Fprintf(&b, "- %s: %s [%s]\n", t.ID, t.Condition(), state)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	})

	r.Register(&Tool{
		Name:        "update_price_alert",
		Description: "Change an alert's condition. Updating re-arms a fired alert.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The alert id",
				},
				"comparator": map[string]any{
					"type":        "string",
					"description": "New comparator (optional)",
				},
				"threshold": map[string]any{
					"type":        "number",
					"description": "New threshold (optional)",
				},
			},
			"required": []string{"id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := strArg(args, "id")
			if id == "" {
				return "", fmt.Errorf("id is required")
			}
			task, err := store.Update(id, func(t *alerts.Task) {
				if v := strArg(args, "comparator"); v != "" {
					t.Comparator = alerts.Comparator(v)
				}
				if v, ok := numArg(args, "threshold"); ok {
					t.Threshold = v
				}
			})
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Alert %s updated and re-armed: %s", task.ID, task.Condition()), nil
		},
	})

	r.Register(&Tool{
		Name:        "remove_price_alert",
		Description: "Delete a price alert by id.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"id": map[string]any{
					"type":        "string",
					"description": "The alert id",
				},
			},
			"required": []string{"id"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			id := strArg(args, "id")
			if id == "" {
				return "", fmt.Errorf("id is required")
			}
			if err := store.Remove(id); err != nil {
				return "", err
			}
			return fmt.Sprintf("Alert %s removed.", id), nil
		},
	})
}
