package tools

import (
	"context"
	"fmt"
	"log/slog"

	"finagent/internal/portfolio"
)

// RegisterPortfolioTools attaches the simulated portfolio tools to the
// registry.
func RegisterPortfolioTools(r *Registry, store *portfolio.Store, quotes portfolio.QuoteSource, logger *slog.Logger) {
	symbolParam := map[string]any{
		"type":        "string",
		"description": "The stock code with exchange suffix (e.g., 600519.SH)",
	}

	r.Register(&Tool{
		Name:        "portfolio_buy",
		Description: "Record a simulated buy in the user's portfolio. Shares merge into the existing position at averaged cost.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": symbolParam,
				"shares": map[string]any{
					"type":        "integer",
					"description": "Number of shares to buy",
				},
				"price": map[string]any{
					"type":        "number",
					"description": "Price per share",
				},
			},
			"required": []string{"symbol", "shares", "price"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			shares := intArg(args, "shares", 0)
			price, _ := numArg(args, "price")
			if err := store.Buy(ctx, symbol, shares, price); err != nil {
				return "", err
			}
			pos, _, err := store.Get(ctx, symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("Bought %d shares of %s at %.2f. Position now %d shares, avg cost %.2f.",
				shares, symbol, price, pos.Shares, pos.AvgCost), nil
		},
	})

	r.Register(&Tool{
		Name:        "portfolio_sell",
		Description: "Record a simulated sell in the user's portfolio. Selling all shares removes the position.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": symbolParam,
				"shares": map[string]any{
					"type":        "integer",
					"description": "Number of shares to sell",
				},
			},
			"required": []string{"symbol", "shares"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			shares := intArg(args, "shares", 0)
			if err := store.Sell(ctx, symbol, shares); err != nil {
				return "", err
			}
			pos, ok, err := store.Get(ctx, symbol)
			if err != nil {
				return "", err
			}
			if !ok {
				return fmt.Sprintf("Sold %d shares of %s. Position closed.", shares, symbol), nil
			}
			return fmt.Sprintf("Sold %d shares of %s. %d shares remain at avg cost %.2f.",
				shares, symbol, pos.Shares, pos.AvgCost), nil
		},
	})

	r.Register(&Tool{
		Name:        "portfolio_status",
		Description: "Show the user's portfolio valued at current prices, with per-position and total P/L.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			return portfolio.Report(ctx, store, quotes, logger)
		},
	})
}
