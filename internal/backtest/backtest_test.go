package backtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"finagent/internal/market"
)

// fakeData returns canned bars regardless of the requested range.
type fakeData struct {
	bars []market.Bar
	err  error
}

func (f *fakeData) DailyBars(ctx context.Context, symbol, start, end string) ([]market.Bar, error) {
	return f.bars, f.err
}

// genBars produces one bar per weekday-ish step starting at the given
// date with the supplied closes.
func genBars(start string, closes []float64) []market.Bar {
	t, _ := time.Parse("20060102", start)
	bars := make([]market.Bar, len(closes))
	for i, c := range closes {
		bars[i] = market.Bar{
			Date:  t.AddDate(0, 0, i).Format("20060102"),
			Open:  c, High: c + 0.5, Low: c - 0.5, Close: c,
		}
	}
	return bars
}

func TestRun_MACrossBuysAndSells(t *testing.T) {
	// Flat warmup, sharp rally (golden cross), sharp decline (dead cross).
	var closes []float64
	for i := 0; i < 25; i++ {
		closes = append(closes, 10)
	}
	for i := 0; i < 10; i++ {
		closes = append(closes, 10+float64(i+1)) // rally to 20
	}
	for i := 0; i < 10; i++ {
		closes = append(closes, 20-2*float64(i+1)) // decline to 0... stop at 2
	}

	data := &fakeData{bars: genBars("20240101", closes)}
	engine := NewEngine(data)

	res, err := engine.Run(context.Background(), "TEST.SZ", "20240101", "20240301",
		Strategy{Type: "ma_cross", ShortWindow: 3, LongWindow: 10})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}

	if res.TradeCount < 2 {
		t.Fatalf("trade count = %d, want at least a buy and a sell", res.TradeCount)
	}
	if res.Trades[0].Action != "BUY" {
		t.Errorf("first trade = %s, want BUY", res.Trades[0].Action)
	}
	for _, tr := range res.Trades {
		if tr.Shares%100 != 0 {
			t.Errorf("trade shares = %d, want multiple of 100", tr.Shares)
		}
		if tr.Commission <= 0 {
			t.Errorf("trade commission = %v, want > 0", tr.Commission)
		}
	}
	if res.MaxDrawdownPct < 0 {
		t.Errorf("max drawdown = %v, want >= 0", res.MaxDrawdownPct)
	}
}

func TestRun_HoldOnlyKeepsCapital(t *testing.T) {
	// A constant series never crosses; no trades, value unchanged.
	data := &fakeData{bars: genBars("20240101", constantCloses(40, 50))}
	engine := NewEngine(data)

	res, err := engine.Run(context.Background(), "TEST.SZ", "20240110", "20240301",
		Strategy{Type: "ma_cross"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.TradeCount != 0 {
		t.Errorf("trade count = %d, want 0", res.TradeCount)
	}
	if res.FinalValue != DefaultCapital {
		t.Errorf("final value = %v, want %v", res.FinalValue, float64(DefaultCapital))
	}
	if res.TotalReturnPct != 0 {
		t.Errorf("return = %v, want 0", res.TotalReturnPct)
	}
}

func TestRun_NoData(t *testing.T) {
	engine := NewEngine(&fakeData{})
	_, err := engine.Run(context.Background(), "TEST.SZ", "20240101", "20240301", Strategy{})
	if err == nil {
		t.Fatal("expected error for empty data")
	}
}

func TestRun_DataSourceError(t *testing.T) {
	engine := NewEngine(&fakeData{err: fmt.Errorf("provider down")})
	_, err := engine.Run(context.Background(), "TEST.SZ", "20240101", "20240301", Strategy{})
	if err == nil {
		t.Fatal("expected propagated data source error")
	}
}

func TestRun_BadStartDate(t *testing.T) {
	engine := NewEngine(&fakeData{bars: genBars("20240101", constantCloses(10, 10))})
	_, err := engine.Run(context.Background(), "TEST.SZ", "Jan 1", "20240301", Strategy{})
	if err == nil {
		t.Fatal("expected error for malformed start date")
	}
}

func TestRun_RSIStrategyDefaults(t *testing.T) {
	// Mostly checks the rsi path runs with default thresholds.
	var closes []float64
	price := 100.0
	for i := 0; i < 30; i++ {
		price -= 1.5
		closes = append(closes, price)
	}
	for i := 0; i < 30; i++ {
		price += 2
		closes = append(closes, price)
	}

	engine := NewEngine(&fakeData{bars: genBars("20240101", closes)})
	res, err := engine.Run(context.Background(), "TEST.SZ", "20240105", "20240401",
		Strategy{Type: "rsi"})
	if err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if res.Strategy != "rsi" {
		t.Errorf("strategy = %q, want rsi", res.Strategy)
	}
}

func TestMaxDrawdown(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"monotonic rise", []float64{100, 110, 120}, 0},
		{"half loss", []float64{100, 50, 60}, 0.5},
		{"recovered dip", []float64{100, 90, 100, 80, 120}, 0.2},
		{"empty", nil, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := maxDrawdown(tt.values); got != tt.want {
				t.Errorf("maxDrawdown(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}

func constantCloses(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}
