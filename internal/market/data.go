package market

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// Quote is a realtime price snapshot. Price may be zero when the
// provider has no data for the symbol; callers comparing against
// thresholds must guard for that.
type Quote struct {
	Symbol    string
	Name      string
	Price     float64
	PrevClose float64
	Open      float64
	High      float64
	Low       float64
	Volume    float64
}

// ChangePct returns the percent change from the previous close.
func (q Quote) ChangePct() float64 {
	if q.PrevClose == 0 {
		return 0
	}
	return (q.Price - q.PrevClose) / q.PrevClose * 100
}

// Bar is one daily OHLCV bar.
type Bar struct {
	Date   string // YYYYMMDD
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
	PctChg float64
}

// StockInfo describes a listed security.
type StockInfo struct {
	Symbol   string
	Name     string
	Area     string
	Industry string
	Market   string
	ListDate string
}

// Valuation holds daily per-share valuation metrics.
type Valuation struct {
	Symbol       string
	Date         string
	PE           float64
	PB           float64
	TurnoverRate float64
	TotalMV      float64 // in 10k units, provider convention
}

// MacroPoint is one period of a macroeconomic series.
type MacroPoint struct {
	Period string
	Value  float64
}

// RealtimeQuote fetches the current price snapshot for a symbol.
func (c *Client) RealtimeQuote(ctx context.Context, symbol string) (Quote, error) {
	rs, err := c.query(ctx, "realtime_quote", map[string]string{"ts_code": symbol}, "")
	if err != nil {
		return Quote{}, err
	}
	if rs.rows() == 0 {
		return Quote{}, fmt.Errorf("no realtime data for %s", symbol)
	}
	return Quote{
		Symbol:    symbol,
		Name:      rs.str(0, "name"),
		Price:     rs.num(0, "price"),
		PrevClose: rs.num(0, "pre_close"),
		Open:      rs.num(0, "open"),
		High:      rs.num(0, "high"),
		Low:       rs.num(0, "low"),
		Volume:    rs.num(0, "vol"),
	}, nil
}

// RealtimeQuoteWithin fetches a quote with a hard deadline. Realtime
// endpoints occasionally hang; valuation paths must not.
func (c *Client) RealtimeQuoteWithin(ctx context.Context, symbol string, timeout time.Duration) (Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.RealtimeQuote(ctx, symbol)
}

// DailyBars fetches daily OHLCV bars for a symbol between start and
// end dates (YYYYMMDD, inclusive), sorted oldest first.
func (c *Client) DailyBars(ctx context.Context, symbol, start, end string) ([]Bar, error) {
	rs, err := c.query(ctx, "daily", map[string]string{
		"ts_code":    symbol,
		"start_date": start,
		"end_date":   end,
	}, "trade_date,open,high,low,close,vol,pct_chg")
	if err != nil {
		return nil, err
	}
	return barsFromResult(rs), nil
}

// IndexDaily fetches daily bars for an index code.
func (c *Client) IndexDaily(ctx context.Context, code, start, end string) ([]Bar, error) {
	rs, err := c.query(ctx, "index_daily", map[string]string{
		"ts_code":    code,
		"start_date": start,
		"end_date":   end,
	}, "trade_date,open,high,low,close,vol,pct_chg")
	if err != nil {
		return nil, err
	}
	return barsFromResult(rs), nil
}

// StockBasic fetches listing information for a symbol.
func (c *Client) StockBasic(ctx context.Context, symbol string) (StockInfo, error) {
	rs, err := c.query(ctx, "stock_basic", map[string]string{"ts_code": symbol},
		"ts_code,name,area,industry,market,list_date")
	if err != nil {
		return StockInfo{}, err
	}
	if rs.rows() == 0 {
		return StockInfo{}, fmt.Errorf("no listing info for %s", symbol)
	}
	return StockInfo{
		Symbol:   rs.str(0, "ts_code"),
		Name:     rs.str(0, "name"),
		Area:     rs.str(0, "area"),
		Industry: rs.str(0, "industry"),
		Market:   rs.str(0, "market"),
		ListDate: rs.str(0, "list_date"),
	}, nil
}

// DailyBasic fetches the latest valuation metrics for a symbol.
func (c *Client) DailyBasic(ctx context.Context, symbol string) (Valuation, error) {
	rs, err := c.query(ctx, "daily_basic", map[string]string{"ts_code": symbol},
		"ts_code,trade_date,pe,pb,turnover_rate,total_mv")
	if err != nil {
		return Valuation{}, err
	}
	if rs.rows() == 0 {
		return Valuation{}, fmt.Errorf("no valuation data for %s", symbol)
	}
	return Valuation{
		Symbol:       rs.str(0, "ts_code"),
		Date:         rs.str(0, "trade_date"),
		PE:           rs.num(0, "pe"),
		PB:           rs.num(0, "pb"),
		TurnoverRate: rs.num(0, "turnover_rate"),
		TotalMV:      rs.num(0, "total_mv"),
	}, nil
}

// MacroSeries fetches a macroeconomic series by provider api name
// ("cn_cpi", "cn_gdp", "cn_m") sorted oldest first.
func (c *Client) MacroSeries(ctx context.Context, series string, limit int) ([]MacroPoint, error) {
	var periodField, valueField string
	switch series {
	case "cn_cpi":
		periodField, valueField = "month", "nt_yoy"
	case "cn_gdp":
		periodField, valueField = "quarter", "gdp_yoy"
	case "cn_m":
		periodField, valueField = "month", "m2_yoy"
	default:
		return nil, fmt.Errorf("unknown macro series %q", series)
	}

	rs, err := c.query(ctx, series, nil, periodField+","+valueField)
	if err != nil {
		return nil, err
	}

	points := make([]MacroPoint, 0, rs.rows())
	for i := 0; i < rs.rows(); i++ {
		points = append(points, MacroPoint{
			Period: rs.str(i, periodField),
			Value:  rs.num(i, valueField),
		})
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Period < points[j].Period })
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

// barsFromResult converts a provider table to bars sorted oldest first.
func barsFromResult(rs *resultSet) []Bar {
	bars := make([]Bar, 0, rs.rows())
	for i := 0; i < rs.rows(); i++ {
		bars = append(bars, Bar{
			Date:   rs.str(i, "trade_date"),
			Open:   rs.num(i, "open"),
			High:   rs.num(i, "high"),
			Low:    rs.num(i, "low"),
			Close:  rs.num(i, "close"),
			Volume: rs.num(i, "vol"),
			PctChg: rs.num(i, "pct_chg"),
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
	return bars
}
