package tools

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"finagent/internal/indicators"
	"finagent/internal/market"
)

// defaultBarDays is the lookback window used when the model omits a
// date range.
const defaultBarDays = 120

// RegisterMarketTools attaches the market data and technical analysis
// tools to the registry.
func RegisterMarketTools(r *Registry, client *market.Client) {
	symbolParam := map[string]any{
		"type":        "string",
		"description": "The stock code with exchange suffix (e.g., 600519.SH, 000001.SZ)",
	}
	rangeProps := map[string]any{
		"symbol": symbolParam,
		"start_date": map[string]any{
			"type":        "string",
			"description": "Start date YYYYMMDD (default: 120 days ago)",
		},
		"end_date": map[string]any{
			"type":        "string",
			"description": "End date YYYYMMDD (default: today)",
		},
	}

	r.Register(&Tool{
		Name:        "get_realtime_price",
		Description: "Get the current price, change and volume for a stock. Use this whenever the user asks about a current price.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"symbol": symbolParam},
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			if symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}
			q, err := client.RealtimeQuote(ctx, symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s): price %.2f, change %+.2f%%, open %.2f, high %.2f, low %.2f, prev close %.2f, volume %.0f",
				q.Name, q.Symbol, q.Price, q.ChangePct(), q.Open, q.High, q.Low, q.PrevClose, q.Volume), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_daily_bars",
		Description: "Get daily OHLCV history for a stock over a date range. Use for questions about recent performance or trends.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": rangeProps,
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			bars, symbol, err := fetchBars(ctx, client.DailyBars, args)
			if err != nil {
				return "", err
			}
			return formatBars(symbol, bars), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_index_daily",
		Description: "Get daily history for a market index (e.g., 000001.SH for the Shanghai Composite, 399001.SZ for the Shenzhen Component).",
		Parameters: map[string]any{
			"type":       "object",
			"properties": rangeProps,
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			bars, symbol, err := fetchBars(ctx, client.IndexDaily, args)
			if err != nil {
				return "", err
			}
			return formatBars(symbol, bars), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_stock_basic",
		Description: "Get listing information for a stock: name, industry, area, market, list date.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"symbol": symbolParam},
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			if symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}
			info, err := client.StockBasic(ctx, symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s (%s): industry %s, area %s, market %s, listed %s",
				info.Name, info.Symbol, info.Industry, info.Area, info.Market, info.ListDate), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_valuation",
		Description: "Get the latest valuation metrics for a stock: PE, PB, turnover rate, total market value.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": map[string]any{"symbol": symbolParam},
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			symbol := strArg(args, "symbol")
			if symbol == "" {
				return "", fmt.Errorf("symbol is required")
			}
			v, err := client.DailyBasic(ctx, symbol)
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%s valuation as of %s: PE %.2f, PB %.2f, turnover %.2f%%, total MV %.0f万",
				v.Symbol, v.Date, v.PE, v.PB, v.TurnoverRate, v.TotalMV), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_macro_series",
		Description: "Get a Chinese macroeconomic series: cn_cpi (CPI YoY), cn_gdp (GDP YoY), cn_m (M2 YoY).",
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"series": map[string]any{
					"type":        "string",
					"description": "One of: cn_cpi, cn_gdp, cn_m",
				},
				"limit": map[string]any{
					"type":        "integer",
					"description": "Number of most recent periods to return (default 12)",
				},
			},
			"required": []string{"series"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			series := strArg(args, "series")
			if series == "" {
				return "", fmt.Errorf("series is required")
			}
			points, err := client.MacroSeries(ctx, series, intArg(args, "limit", 12))
			if err != nil {
				return "", err
			}
			if len(points) == 0 {
				return fmt.Sprintf("No data for series %s.", series), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "%s (%d periods):\n", series, len(points))
			for _, p := range points {
				fmt.Fprintf(&b, "- %s: %.2f%%\n", p.Period, p.Value)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	})

	r.Register(&Tool{
		Name:        "get_technical_indicators",
		Description: "Compute MACD, RSI, KDJ and Bollinger Bands for a stock from recent daily bars. Returns the latest values.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": rangeProps,
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			bars, symbol, err := fetchBars(ctx, client.DailyBars, args)
			if err != nil {
				return "", err
			}
			return formatIndicators(symbol, bars)
		},
	})

	r.Register(&Tool{
		Name:        "detect_patterns",
		Description: "Scan recent daily bars for technical signals: MACD golden/dead cross, RSI overbought/oversold.",
		Parameters: map[string]any{
			"type":       "object",
			"properties": rangeProps,
			"required":   []string{"symbol"},
		},
		Handler: func(ctx context.Context, args map[string]any) (string, error) {
			bars, symbol, err := fetchBars(ctx, client.DailyBars, args)
			if err != nil {
				return "", err
			}
			patterns := indicators.DetectPatterns(bars)
			if len(patterns) == 0 {
				return fmt.Sprintf("No notable signals for %s in the requested range.", symbol), nil
			}
			var b strings.Builder
			fmt.Fprintf(&b, "Signals for %s:\n", symbol)
			for _, p := range patterns {
				fmt.Fprintf(&b, "- %s (%s) on %s\n", p.Name, p.Signal, p.Date)
			}
			return strings.TrimRight(b.String(), "\n"), nil
		},
	})
}

// fetchBars resolves the symbol and date range arguments and calls the
// given bar fetcher.
func fetchBars(ctx context.Context, fetch func(context.Context, string, string, string) ([]market.Bar, error), args map[string]any) ([]market.Bar, string, error) {
	symbol := strArg(args, "symbol")
	if symbol == "" {
		return nil, "", fmt.Errorf("symbol is required")
	}
	start := strArg(args, "start_date")
	end := strArg(args, "end_date")
	if end == "" {
		end = time.Now().Format("20060102")
	}
	if start == "" {
		start = time.Now().AddDate(0, 0, -defaultBarDays).Format("20060102")
	}
	bars, err := fetch(ctx, symbol, start, end)
	if err != nil {
		return nil, "", err
	}
	if len(bars) == 0 {
		return nil, "", fmt.Errorf("no daily data for %s between %s and %s", symbol, start, end)
	}
	return bars, symbol, nil
}

// formatBars summarizes a bar series, listing at most the last 20 bars
// so long ranges do not flood the context window.
func formatBars(symbol string, bars []market.Bar) string {
	first, last := bars[0], bars[len(bars)-1]
	change := 0.0
	if first.Close != 0 {
		change = (last.Close - first.Close) / first.Close * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d bars %s to %s, close %.2f to %.2f (%+.2f%%)\n",
		symbol, len(bars), first.Date, last.Date, first.Close, last.Close, change)

	tail := bars
	if len(tail) > 20 {
		tail = tail[len(tail)-20:]
		b.WriteString("Last 20 bars:\n")
	}
	for _, bar := range tail {
		fmt.Fprintf(&b, "- %s: open %.2f, high %.2f, low %.2f, close %.2f (%+.2f%%), vol %.0f\n",
			bar.Date, bar.Open, bar.High, bar.Low, bar.Close, bar.PctChg, bar.Volume)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatIndicators(symbol string, bars []market.Bar) (string, error) {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	last := len(bars) - 1

	dif, dea, hist := indicators.MACD(closes)
	rsi := indicators.RSI(closes, indicators.RSIPeriod)
	k, d, j := indicators.KDJ(bars, indicators.KDJPeriod)
	mid, upper, lower := indicators.BOLL(closes, indicators.BollPeriod, indicators.BollWidth)

	var b strings.Builder
	fmt.Fprintf(&b, "%s indicators as of %s (close %.2f):\n", symbol, bars[last].Date, closes[last])
	fmt.Fprintf(&b, "- MACD: DIF %s, DEA %s, histogram %s\n", fmtVal(dif[last]), fmtVal(dea[last]), fmtVal(hist[last]))
	fmt.Fprintf(&b, "- RSI(%d): %s\n", indicators.RSIPeriod, fmtVal(rsi[last]))
	fmt.Fprintf(&b, "- KDJ: K %s, D %s, J %s\n", fmtVal(k[last]), fmtVal(d[last]), fmtVal(j[last]))
	fmt.Fprintf(&b, "- BOLL(%d): mid %s, upper %s, lower %s", indicators.BollPeriod, fmtVal(mid[last]), fmtVal(upper[last]), fmtVal(lower[last]))
	return b.String(), nil
}

// fmtVal renders an indicator value, showing warmup NaNs as n/a.
func fmtVal(v float64) string {
	if math.IsNaN(v) {
		return "n/a (insufficient history)"
	}
	return fmt.Sprintf("%.2f", v)
}
