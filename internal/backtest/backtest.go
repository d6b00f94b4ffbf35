// Package backtest replays a trading strategy over historical daily
// bars and reports return, drawdown, and trade statistics.
package backtest

import (
	"context"
	"fmt"
	"math"
	"time"

	"finagent/internal/indicators"
	"finagent/internal/market"
)

// Defaults for the simulated account.
const (
	DefaultCapital    = 100000
	DefaultCommission = 0.0003

	// lotSize is the minimum tradable share quantity.
	lotSize = 100

	// warmupDays of extra history fetched before the requested start
	// so indicators are defined on day one.
	warmupDays = 60
)

// Strategy selects and parameterizes the signal generator. Zero-value
// fields fall back to conventional defaults.
type Strategy struct {
	Type string `json:"type"` // ma_cross, macd, rsi

	ShortWindow int `json:"short_window,omitempty"`
	LongWindow  int `json:"long_window,omitempty"`

	RSIPeriod int `json:"rsi_period,omitempty"`
	RSILower  int `json:"rsi_lower,omitempty"`
	RSIUpper  int `json:"rsi_upper,omitempty"`
}

func (s *Strategy) applyDefaults() {
	if s.Type == "" {
		s.Type = "ma_cross"
	}
	if s.ShortWindow <= 0 {
		s.ShortWindow = 5
	}
	if s.LongWindow <= 0 {
		s.LongWindow = 20
	}
	if s.RSIPeriod <= 0 {
		s.RSIPeriod = indicators.RSIPeriod
	}
	if s.RSILower <= 0 {
		s.RSILower = 30
	}
	if s.RSIUpper <= 0 {
		s.RSIUpper = 70
	}
}

// Trade is one executed simulated order.
type Trade struct {
	Date       string  `json:"date"`
	Action     string  `json:"action"` // BUY or SELL
	Price      float64 `json:"price"`
	Shares     int     `json:"shares"`
	Commission float64 `json:"commission"`
}

// Result summarizes a completed backtest run.
type Result struct {
	Symbol         string  `json:"symbol"`
	Strategy       string  `json:"strategy"`
	InitialCapital float64 `json:"initial_capital"`
	FinalValue     float64 `json:"final_value"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	TradeCount     int     `json:"trade_count"`
	// Trades holds the most recent trades only, for report brevity.
	Trades []Trade `json:"trades"`
}

// DataSource supplies historical bars. *market.Client satisfies it.
type DataSource interface {
	DailyBars(ctx context.Context, symbol, start, end string) ([]market.Bar, error)
}

// Engine runs strategy simulations against a data source.
type Engine struct {
	data       DataSource
	capital    float64
	commission float64
}

// NewEngine creates an engine with the default account settings.
func NewEngine(data DataSource) *Engine {
	return &Engine{
		data:       data,
		capital:    DefaultCapital,
		commission: DefaultCommission,
	}
}

// Run simulates the strategy over [start, end] (YYYYMMDD, inclusive).
// Extra history before start is fetched for indicator warm-up; trades
// execute only within the requested range.
func (e *Engine) Run(ctx context.Context, symbol, start, end string, strat Strategy) (Result, error) {
	strat.applyDefaults()

	startDate, err := time.Parse("20060102", start)
	if err != nil {
		return Result{}, fmt.Errorf("parse start date %q: %w", start, err)
	}
	warmupStart := startDate.AddDate(0, 0, -warmupDays).Format("20060102")

	bars, err := e.data.DailyBars(ctx, symbol, warmupStart, end)
	if err != nil {
		return Result{}, fmt.Errorf("fetch bars for %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return Result{}, fmt.Errorf("no data for %s", symbol)
	}

	signals := e.signals(bars, strat)

	cash := e.capital
	position := 0
	var trades []Trade
	var values []float64
	inRange := false

	for i, bar := range bars {
		if bar.Date >= start {
			inRange = true
		}
		if !inRange {
			continue
		}

		values = append(values, cash+float64(position)*bar.Close)

		switch signals[i] {
		case 1:
			if cash > 0 {
				maxShares := int(cash/(bar.Close*(1+e.commission))/lotSize) * lotSize
				if maxShares > 0 {
					cost := float64(maxShares) * bar.Close
					comm := cost * e.commission
					cash -= cost + comm
					position += maxShares
					trades = append(trades, Trade{
						Date: bar.Date, Action: "BUY",
						Price: bar.Close, Shares: maxShares, Commission: round2(comm),
					})
				}
			}
		case -1:
			if position > 0 {
				revenue := float64(position) * bar.Close
				comm := revenue * e.commission
				cash += revenue - comm
				trades = append(trades, Trade{
					Date: bar.Date, Action: "SELL",
					Price: bar.Close, Shares: position, Commission: round2(comm),
				})
				position = 0
			}
		}
	}

	finalValue := cash + float64(position)*bars[len(bars)-1].Close

	result := Result{
		Symbol:         symbol,
		Strategy:       strat.Type,
		InitialCapital: e.capital,
		FinalValue:     round2(finalValue),
		TotalReturnPct: round2((finalValue - e.capital) / e.capital * 100),
		MaxDrawdownPct: round2(maxDrawdown(values) * 100),
		TradeCount:     len(trades),
		Trades:         trades,
	}
	if len(result.Trades) > 5 {
		result.Trades = result.Trades[len(result.Trades)-5:]
	}
	return result, nil
}

// signals produces -1/0/+1 per bar. A signal requires the indicator to
// be defined on both the current and previous bar; NaN comparisons are
// false, so warm-up bars yield hold.
func (e *Engine) signals(bars []market.Bar, strat Strategy) []int {
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	out := make([]int, len(bars))

	switch strat.Type {
	case "ma_cross":
		short := indicators.SMA(closes, strat.ShortWindow)
		long := indicators.SMA(closes, strat.LongWindow)
		for i := 1; i < len(bars); i++ {
			if short[i-1] <= long[i-1] && short[i] > long[i] {
				out[i] = 1
			} else if short[i-1] >= long[i-1] && short[i] < long[i] {
				out[i] = -1
			}
		}

	case "macd":
		dif, dea, _ := indicators.MACD(closes)
		for i := 1; i < len(bars); i++ {
			if dif[i-1] <= dea[i-1] && dif[i] > dea[i] {
				out[i] = 1
			} else if dif[i-1] >= dea[i-1] && dif[i] < dea[i] {
				out[i] = -1
			}
		}

	case "rsi":
		rsi := indicators.RSI(closes, strat.RSIPeriod)
		lower, upper := float64(strat.RSILower), float64(strat.RSIUpper)
		for i := 1; i < len(bars); i++ {
			if rsi[i-1] >= lower && rsi[i] < lower {
				out[i] = 1
			} else if rsi[i-1] <= upper && rsi[i] > upper {
				out[i] = -1
			}
		}
	}

	return out
}

// maxDrawdown returns the largest peak-to-trough decline as a
// fraction of the peak.
func maxDrawdown(values []float64) float64 {
	var peak, worst float64
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
