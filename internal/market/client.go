// Package market provides the market-data provider client. The
// provider speaks a single-endpoint JSON-RPC style protocol: every
// query POSTs an api name plus parameters and receives a column-major
// table of fields and item rows.
package market

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"finagent/internal/config"
	"finagent/internal/httpkit"
)

// Client queries the market data provider. All methods honor the
// configured rate limit; providers enforce per-minute quotas and
// reject bursts well before the quota is reached.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a market data client from configuration.
func NewClient(cfg config.MarketConfig, logger *slog.Logger) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute/10+1)
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		token:      cfg.Token,
		httpClient: httpkit.NewClient(httpkit.WithTimeout(20 * time.Second)),
		limiter:    limiter,
		logger:     logger,
	}
}

// apiRequest is the provider wire request.
type apiRequest struct {
	APIName string            `json:"api_name"`
	Token   string            `json:"token"`
	Params  map[string]string `json:"params,omitempty"`
	Fields  string            `json:"fields,omitempty"`
}

// apiResponse is the provider wire response. Data is column-major:
// Fields names the columns, Items holds the rows.
type apiResponse struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
	Data struct {
		Fields []string `json:"fields"`
		Items  [][]any  `json:"items"`
	} `json:"data"`
}

// resultSet is a decoded provider table with field-name lookup.
type resultSet struct {
	fields map[string]int
	items  [][]any
}

// query runs one provider API call and decodes the result table.
func (c *Client) query(ctx context.Context, apiName string, params map[string]string, fields string) (*resultSet, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(apiRequest{
		APIName: apiName,
		Token:   c.token,
		Params:  params,
		Fields:  fields,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s request: %w", apiName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", apiName, err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", apiName, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode != http.StatusOK {
		errBody := httpkit.ReadErrorBody(resp.Body, 2048)
		return nil, fmt.Errorf("%s request failed: %s: %s", apiName, resp.Status, errBody)
	}

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", apiName, err)
	}
	if parsed.Code != 0 {
		return nil, fmt.Errorf("%s provider error %d: %s", apiName, parsed.Code, parsed.Msg)
	}

	c.logger.Debug("market query",
		"api", apiName,
		"rows", len(parsed.Data.Items),
		"elapsed_ms", time.Since(start).Milliseconds())

	rs := &resultSet{
		fields: make(map[string]int, len(parsed.Data.Fields)),
		items:  parsed.Data.Items,
	}
	for i, f := range parsed.Data.Fields {
		rs.fields[f] = i
	}
	return rs, nil
}

// str returns the named column of row i as a string.
func (r *resultSet) str(i int, field string) string {
	col, ok := r.fields[field]
	if !ok || col >= len(r.items[i]) {
		return ""
	}
	switch v := r.items[i][col].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return ""
	}
}

// num returns the named column of row i as a float64. Missing or null
// values return 0.
func (r *resultSet) num(i int, field string) float64 {
	col, ok := r.fields[field]
	if !ok || col >= len(r.items[i]) {
		return 0
	}
	switch v := r.items[i][col].(type) {
	case float64:
		return v
	case string:
		var f float64
		fmt.Sscanf(v, "%f", &f)
		return f
	default:
		return 0
	}
}

// rows returns the number of rows in the result.
func (r *resultSet) rows() int {
	return len(r.items)
}
