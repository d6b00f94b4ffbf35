package tools

import (
	"context"
	"fmt"
	"strings"

	"finagent/internal/backtest"
)

// RegisterBacktestTools attaches the strategy backtest tool to the
// registry.
func RegisterBacktestTools(r *Registry, engine *backtest.Engine) {
	r.Register(&Tool{
		Name:        "run_backtest",
		Description: "Backtest a simple strategy (ma_cross or rsi) on a stock over a date range with simulated capital.",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"symbol": map[string]any{
					"type":        "string",
					"description": "The stock code with exchange suffix (e.g., 600519.SH)",
				},
				"start_date": map[string]any{
					"type":        "string",
					"description": "Backtest start YYYYMMDD",
				},
				"end_date": map[string]any{
					"type":        "string",
					"description": "Backtest end YYYYMMDD",
				},
				"strategy": map[string]any{
					"type":        "string",
					"description": "ma_cross (moving average crossover) or rsi (oversold/overbought reversal); default ma_cross",
				},
				"short_window": map[string]any{
					"type":        "integer",
					"description": "Short MA window for ma_cross (default 5)",
				},
				"long_window": map[string]any{
					"type":        "integer",
					"description": "Long MA window for ma_cross (default 20)",
				},
			},
			"required": []string{"symbol", "start_date", "end_date"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			start := strArg(args, "start_date")
			end := strArg(args, "end_date")
			if symbol == "" || start == "" || end == "" {
				return "", fmt.Errorf("symbol, start_date and end_date are required")
			}

			strat := backtest.Strategy{
				Type:        strArg(args, "strategy"),
				ShortWindow: intArg(args, "short_window", 0),
				LongWindow:  intArg(args, "long_window", 0),
			}
			result, err := engine.Run(ctx, symbol, start, end, strat)
			if err != nil {
				return "", err
			}

			var b strings.Builder
			fmt.Fprintf(&b, "Backtest %s (%s) %s to %s:\n", result.Symbol, result.Strategy, start, end)
			fmt.Fprintf(&b, "- Initial capital: %.2f\n", result.InitialCapital)
			fmt.Fprintf(&b, "- Final value: %.2f\n", result.FinalValue)
			fmt.Fprintf(&b, "- Total return: %+.2f%%\n", result.TotalReturnPct)
			fmt.Fprintf(&b, "- Max drawdown: %.2f%%\n", result.MaxDrawdownPct)
			fmt.Fprintf(&b, "- Trades: %d", result.TradeCount)
			if len(result.Trades) > 0 {
				b.WriteString("\nRecent trades:")
				for _, tr := range result.Trades {
					fmt.Fprintf(&b, "\n- %s %s %d @ %.2f", tr.Date, tr.Action, tr.Shares, tr.Price)
				}
			}
			return b.String(), nil
		},
	})
}
