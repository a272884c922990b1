// Package tradesim provides a Go client for the tradesim-server results API.
package tradesim

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Summary holds the headline metrics of one run.
type Summary struct {
	FinalEquity    float64 `json:"final_equity"`
	TotalReturnPct float64 `json:"total_return_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `json:"sharpe_ratio"`
	TotalTrades    int     `json:"total_trades"`
	WinningTrades  int     `json:"winning_trades"`
	LosingTrades   int     `json:"losing_trades"`
	WinRate        float64 `json:"win_rate"`
	ProfitFactor   float64 `json:"profit_factor"`
	AverageWin     float64 `json:"average_win"`
	AverageLoss    float64 `json:"average_loss"`
}

// Trade is one closed trade within a run. Size and PnL are decimal strings.
type Trade struct {
	Symbol    string    `json:"symbol"`
	Direction string    `json:"direction"`
	Size      string    `json:"size"`
	Entry     float64   `json:"entry"`
	Exit      float64   `json:"exit"`
	Reason    string    `json:"reason"`
	OpenedAt  time.Time `json:"opened_at"`
	ClosedAt  time.Time `json:"closed_at"`
	PnL       string    `json:"pnl"`
}

// EquityPoint is one sample of a run's equity curve. Equity is a decimal
// string.
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    string    `json:"equity"`
}

// Run is one persisted backtest run as served by the API.
type Run struct {
	ID             int64         `json:"id"`
	CreatedAt      time.Time     `json:"created_at"`
	Strategy       string        `json:"strategy"`
	Symbols        []string      `json:"symbols"`
	InitialCapital float64       `json:"initial_capital"`
	State          string        `json:"state"`
	Truncated      bool          `json:"truncated"`
	Summary        Summary       `json:"summary"`
	Trades         []Trade       `json:"trades,omitempty"`
	EquityCurve    []EquityPoint `json:"equity_curve,omitempty"`
}

// Client talks to a tradesim-server instance.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the server at baseURL, e.g.
// "http://localhost:8080".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// ListRuns retrieves the most recent runs, newest first, without trades.
// A non-positive limit uses the server default.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	u := c.baseURL + "/api/runs"
	if limit > 0 {
		u += "?limit=" + strconv.Itoa(limit)
	}

	var runs []Run
	if err := c.getJSON(ctx, u, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// GetRun retrieves one run by ID, including its trades and equity curve.
func (c *Client) GetRun(ctx context.Context, id int64) (*Run, error) {
	u := c.baseURL + "/api/runs/" + strconv.FormatInt(id, 10)

	var run Run
	if err := c.getJSON(ctx, u, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// Health reports whether the server answers its health endpoint.
func (c *Client) Health(ctx context.Context) error {
	var status map[string]string
	return c.getJSON(ctx, c.baseURL+"/api/health", &status)
}

func (c *Client) getJSON(ctx context.Context, rawURL string, out any) error {
	if _, err := url.Parse(rawURL); err != nil {
		return fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
