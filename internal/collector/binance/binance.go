// Package binance downloads kline history from the Binance spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/core"
)

const (
	// DefaultBaseURL is the public spot endpoint.
	DefaultBaseURL = "https://api.binance.com"

	// PageLimit is the maximum number of klines Binance returns per request.
	PageLimit = 1000
)

// Intervals accepted by /api/v3/klines.
var intervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true, "3d": true, "1w": true,
}

// Client fetches klines page by page.
type Client struct {
	client  *http.Client
	baseURL string
	limit   int
	logger  *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// WithPageLimit lowers the page size; values outside (0, PageLimit] are ignored.
func WithPageLimit(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= PageLimit {
			c.limit = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a client for baseURL, DefaultBaseURL when empty.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		client:  &http.Client{Timeout: 15 * time.Second},
		baseURL: baseURL,
		limit:   PageLimit,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string {
	return "binance"
}

// FetchHistory downloads every kline opening in [start, end], following
// pages until a short page or the end of the window.
func (c *Client) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	if !intervals[interval] {
		return nil, core.WrapError(core.ErrInvalidTimeframe, fmt.Errorf("binance does not serve interval %q", interval))
	}
	if end.IsZero() {
		end = time.Now()
	}

	var bars []core.Bar
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()
	for page := 1; cursor <= endMs; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		klines, err := c.fetchPage(ctx, symbol, interval, cursor, endMs)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("fetched kline page",
			zap.String("symbol", symbol),
			zap.Int("page", page),
			zap.Int("klines", len(klines)))

		for _, k := range klines {
			bar, err := k.bar(symbol, interval)
			if err != nil {
				return nil, core.WrapError(core.ErrCollectorFailed, err)
			}
			bars = append(bars, bar)
		}
		if len(klines) < c.limit {
			break
		}
		next := bars[len(bars)-1].Time.UnixMilli() + 1
		if next <= cursor {
			break
		}
		cursor = next
	}
	return bars, nil
}

func (c *Client) fetchPage(ctx context.Context, symbol, interval string, startMs, endMs int64) ([]kline, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", interval)
	q.Set("startTime", strconv.FormatInt(startMs, 10))
	q.Set("endTime", strconv.FormatInt(endMs, 10))
	q.Set("limit", strconv.Itoa(c.limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/klines?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("fetching klines: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Msg != "" {
			return nil, core.WrapError(core.ErrCollectorFailed,
				fmt.Errorf("binance status %d: %s (code %d)", resp.StatusCode, apiErr.Msg, apiErr.Code))
		}
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("unexpected status: %d", resp.StatusCode))
	}

	var klines []kline
	if err := json.NewDecoder(resp.Body).Decode(&klines); err != nil {
		return nil, core.WrapError(core.ErrCollectorFailed, fmt.Errorf("decoding response: %w", err))
	}
	return klines, nil
}

// kline is one row of the klines array:
// [openTime, open, high, low, close, volume, closeTime, ...]
type kline []json.RawMessage

func (k kline) bar(symbol, interval string) (core.Bar, error) {
	if len(k) < 6 {
		return core.Bar{}, fmt.Errorf("kline has %d fields, want at least 6", len(k))
	}
	var openTime int64
	if err := json.Unmarshal(k[0], &openTime); err != nil {
		return core.Bar{}, fmt.Errorf("kline open time: %w", err)
	}

	var vals [5]float64
	for i := range vals {
		var s string
		if err := json.Unmarshal(k[i+1], &s); err != nil {
			return core.Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return core.Bar{}, fmt.Errorf("kline field %d: %w", i+1, err)
		}
		vals[i] = v
	}

	return core.Bar{
		Symbol:   symbol,
		Interval: interval,
		Time:     time.UnixMilli(openTime).UTC(),
		Open:     vals[0],
		High:     vals[1],
		Low:      vals[2],
		Close:    vals[3],
		Volume:   vals[4],
	}, nil
}

type apiError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
