package tools

import (
	"context"
	"strings"

	"finagent/internal/profile"
)

// RegisterProfileTools attaches the investor profile tools to the
// registry.
func RegisterProfileTools(r *Registry, store *profile.Store) {
	r.Register(&Tool{
		Name:        "get_investor_profile",
		Description: "Read the user's stored investor profile (risk tolerance, horizon, preferred sectors, style, notes).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			p, err := store.Load()
			if err != nil {
				return "", err
			}
			return p.Summary(), nil
		},
	})

	r.Register(&Tool{
		Name:        "update_investor_profile",
		Description: "Update fields of the user's investor profile. Only supplied fields change; others are preserved. Use when the user states preferences.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"risk_tolerance": map[string]any{
					"type":        "string",
					"description": "e.g., conservative, moderate, aggressive",
				},
				"investment_horizon": map[string]any{
					"type":        "string",
					"description": "e.g., short-term, 3-5 years, long-term",
				},
				"preferred_sectors": map[string]any{
					"type":        "string",
					"description": "Comma-separated sector names",
				},
				"investment_style": map[string]any{
					"type":        "string",
					"description": "e.g., value, growth, dividend, index",
				},
				"notes": map[string]any{
					"type":        "string",
					"description": "Free-form notes about preferences or constraints",
				},
			},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			updated, err := store.Update(func(p *profile.Profile) {
				if v := strArg(args, "risk_tolerance"); v != "" {
					p.RiskTolerance = v
				}
				if v := strArg(args, "investment_horizon"); v != "" {
					p.InvestmentHorizon = v
				}
				if v := strArg(args, "preferred_sectors"); v != "" {
					sectors := strings.Split(v, ",")
					for i := range sectors {
						sectors[i] = strings.TrimSpace(sectors[i])
					}
					p.PreferredSectors = sectors
				}
				if v := strArg(args, "investment_style"); v != "" {
					p.InvestmentStyle = v
				}
				if v := strArg(args, "notes"); v != "" {
					p.Notes = v
				}
			})
			if err != nil {
				return "", err
			}
			return "Profile updated. " + updated.Summary(), nil
		},
	})
}
