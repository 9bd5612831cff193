package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/report"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/sweep"
)

var seedStart = time.Date(2024, 1, 1, 0, 15, 0, 0, time.UTC)

// newTestApp stores 1200 quarter-hour bars, which resample to exactly 300
// hourly bars.
func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Data.SQLitePath = filepath.Join(dir, "bars.db")
	cfg.Data.ParquetDir = filepath.Join(dir, "parquet")
	cfg.Data.BaseTimeframe = "15m"
	cfg.Data.Timeframe = "1h"
	cfg.Archive.Path = filepath.Join(dir, "archive")

	a := New(cfg, nil)
	t.Cleanup(func() { a.Close() })
	a.SetParams(params.NewMemoryStore())

	ctx := context.Background()
	store, err := a.Bars(ctx)
	require.NoError(t, err)

	seed := make([]core.Bar, 1200)
	for i := range seed {
		p := 100 + 10*math.Sin(float64(i)/40) + float64(i)*0.01
		seed[i] = core.Bar{
			Symbol: "BTCUSDT", Interval: "15m", Time: seedStart.Add(time.Duration(i) * 15 * time.Minute),
			Open: p, High: p + 0.5, Low: p - 0.5, Close: p, Volume: 10,
		}
	}
	require.NoError(t, store.SaveBars(ctx, seed))
	return a
}

func TestApp_Backtest(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	reports, err := a.Backtest(ctx, BacktestOptions{Archive: true})
	require.NoError(t, err)
	require.Len(t, reports, 4)

	seen := map[string]bool{}
	for _, r := range reports {
		seen[r.Strategy] = true
		assert.Equal(t, "BTCUSDT", r.Symbol)
		assert.Equal(t, "1h", r.Timeframe)
		assert.Equal(t, 300, r.Bars)
	}
	assert.Len(t, seen, 4)

	archived, err := a.ListReports(ctx, report.Filter{Symbol: "BTCUSDT", Timeframe: "1h"})
	require.NoError(t, err)
	assert.Len(t, archived, 4)
}

func TestApp_Backtest_ExplicitParams(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()

	reports, err := a.Backtest(ctx, BacktestOptions{
		Strategies: []string{"sma"},
		Params:     map[string]any{"fast": 5, "slow": 20},
	})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, 5, reports[0].Params["fast"])

	_, err = a.Backtest(ctx, BacktestOptions{Strategies: []string{"sma", "rsi"}, Params: map[string]any{"fast": 5}})
	assert.True(t, errors.Is(err, core.ErrConfigInvalid), "got %v", err)

	_, err = a.Backtest(ctx, BacktestOptions{Strategies: []string{"momentum"}})
	assert.True(t, errors.Is(err, core.ErrUnknownStrategy), "got %v", err)

	_, err = a.Backtest(ctx, BacktestOptions{Window: Window{Timeframe: "1m"}})
	assert.True(t, errors.Is(err, core.ErrInvalidTimeframe), "got %v", err)
}

func TestApp_Backtest_EquityOnly(t *testing.T) {
	a := newTestApp(t)

	reports, err := a.Backtest(context.Background(), BacktestOptions{Strategies: []string{"bollinger"}, EquityOnly: true})
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, backtest.ModeEquity, reports[0].Metrics.Mode)
}

func TestApp_Tune(t *testing.T) {
	a := newTestApp(t)
	a.cfg.Tuning.Grids = map[string]sweep.Grid{
		"sma": {{Name: "fast", Values: []any{5, 10}}, {Name: "slow", Values: []any{20, 50}}},
	}
	ctx := context.Background()

	outcomes, err := a.Tune(ctx, TuneOptions{Strategies: []string{"sma"}})
	require.NoError(t, err)
	require.Len(t, outcomes, 1)
	assert.Equal(t, 4, outcomes[0].Evaluated)
	assert.True(t, outcomes[0].Stored)

	store, err := a.Params()
	require.NoError(t, err)
	rec, ok, err := store.Get(ctx, params.Key{Symbol: "BTCUSDT", Timeframe: "1h", Strategy: "sma"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, outcomes[0].Best, rec.Params)

	// The tuned params now drive a plain backtest.
	reports, err := a.Backtest(ctx, BacktestOptions{Strategies: []string{"sma"}})
	require.NoError(t, err)
	assert.Equal(t, rec.Params["fast"], reports[0].Params["fast"])
}

func TestApp_Resample(t *testing.T) {
	a := newTestApp(t)

	path, n, err := a.Resample(context.Background(), ResampleOptions{})
	require.NoError(t, err)
	assert.Equal(t, 300, n)
	assert.True(t, strings.HasSuffix(path, "BTCUSDT_1h.parquet"), path)

	back, err := bars.ReadParquet(path)
	require.NoError(t, err)
	require.Len(t, back, 300)
	assert.Equal(t, "1h", back[0].Interval)
	assert.True(t, back[0].Time.Equal(seedStart.Add(45*time.Minute)))
}

func TestApp_Resample_NoData(t *testing.T) {
	a := newTestApp(t)

	_, _, err := a.Resample(context.Background(), ResampleOptions{Window: Window{Symbol: "DOGEUSDT"}})
	assert.True(t, errors.Is(err, core.ErrNoData), "got %v", err)
}

func TestApp_Fetch(t *testing.T) {
	a := newTestApp(t)
	first := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rows []string
		for i := range 3 {
			ts := first.Add(time.Duration(i) * 15 * time.Minute).UnixMilli()
			rows = append(rows, fmt.Sprintf(`[%d,"1","2","0.5","1.5","7",%d]`, ts, ts+899999))
		}
		fmt.Fprint(w, "["+strings.Join(rows, ",")+"]")
	}))
	defer srv.Close()
	a.cfg.Data.BinanceURL = srv.URL

	ctx := context.Background()
	res, err := a.Fetch(ctx, FetchOptions{Symbol: "eth", Start: first, End: first.Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", res.Symbol)
	assert.Equal(t, 3, res.Fetched)

	store, err := a.Bars(ctx)
	require.NoError(t, err)
	n, err := store.Count(ctx, "ETHUSDT", "15m")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestApp_Advise(t *testing.T) {
	a := newTestApp(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "BUY"}, "finish_reason": "stop"}]
		}`))
	}))
	defer srv.Close()
	a.cfg.LLM.Provider = "openai"
	a.cfg.LLM.OpenAI.APIKey = "test-key"
	a.cfg.LLM.OpenAI.BaseURL = srv.URL + "/v1"

	decision, err := a.Advise(context.Background(), AdviseOptions{Position: "BTC: 0.1"})
	require.NoError(t, err)
	assert.Equal(t, core.ActionBuy, decision.Action)
	assert.Len(t, decision.Strategies, 4)
	assert.Contains(t, decision.Prompt, "--- Last 4 hours OHLCV (1h bars) ---")
	assert.Contains(t, decision.Prompt, "BTC: 0.1")
}

func TestApp_Advise_NoProviderKey(t *testing.T) {
	a := newTestApp(t)
	a.cfg.LLM.Provider = "claude"

	_, err := a.Advise(context.Background(), AdviseOptions{})
	assert.True(t, errors.Is(err, core.ErrConfigMissing), "got %v", err)
}

func TestApp_Server(t *testing.T) {
	a := newTestApp(t)

	srv, err := a.Server(context.Background())
	require.NoError(t, err)

	for _, path := range []string{"/api/v1/health", "/metrics"} {
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
}
