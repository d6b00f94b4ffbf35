package portfolio

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"finagent/internal/market"
)

// quoteTimeout bounds each realtime lookup during valuation so one
// hanging symbol cannot stall the whole report.
const quoteTimeout = 3 * time.Second

// QuoteSource supplies current prices. *market.Client satisfies it.
type QuoteSource interface {
	RealtimeQuoteWithin(ctx context.Context, symbol string, timeout time.Duration) (market.Quote, error)
}

// Report values every position at current prices and renders a
// plain-text summary. Symbols whose quote fails fall back to cost
// basis and are marked as stale.
func Report(ctx context.Context, store *Store, quotes QuoteSource, logger *slog.Logger) (string, error) {
	positions, err := store.Positions(ctx)
	if err != nil {
		return "", err
	}
	if len(positions) == 0 {
		return "Portfolio is empty.", nil
	}

	var b strings.Builder
	var totalCost, totalValue float64

	b.WriteString(fmt.Sprintf("Portfolio (%d positions):\n", len(positions)))
	for _, pos := range positions {
		price := pos.AvgCost
		note := ""

		q, err := quotes.RealtimeQuoteWithin(ctx, pos.Symbol, quoteTimeout)
		switch {
		case err != nil:
			logger.Warn("portfolio quote failed", "symbol", pos.Symbol, "error", err)
			note = " (quote unavailable, valued at cost)"
		case q.Price == 0:
			note = " (no price data, valued at cost)"
		default:
			price = q.Price
		}

		value := float64(pos.Shares) * price
		pnl := value - pos.Cost()
		pnlPct := 0.0
		if pos.Cost() > 0 {
			pnlPct = pnl / pos.Cost() * 100
		}

		totalCost += pos.Cost()
		totalValue += value

		b.WriteString(fmt.Sprintf("- %s: %d shares @ %.2f avg, now %.2f, value %.2f, P/L %+.2f (%+.2f%%)%s\n",
			pos.Symbol, pos.Shares, pos.AvgCost, price, value, pnl, pnlPct, note))
	}

	totalPnl := totalValue - totalCost
	totalPct := 0.0
	if totalCost > 0 {
		totalPct = totalPnl / totalCost * 100
	}
	b.WriteString(fmt.Sprintf("Total: cost %.2f, value %.2f, P/L %+.2f (%+.2f%%)",
		totalCost, totalValue, totalPnl, totalPct))

	return b.String(), nil
}
