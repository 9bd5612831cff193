// Package app wires configuration, storage and services together and exposes
// the use cases the CLI runs.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/api"
	handlerapi "github.com/newthinker/quantlab/internal/api/handler/api"
	"github.com/newthinker/quantlab/internal/api/job"
	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/collector/binance"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/core"
	llmfactory "github.com/newthinker/quantlab/internal/llm/factory"
	"github.com/newthinker/quantlab/internal/meta"
	"github.com/newthinker/quantlab/internal/metrics"
	"github.com/newthinker/quantlab/internal/report"
	"github.com/newthinker/quantlab/internal/storage/archive"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/sweep"
)

// App is the main application orchestrator. Stores are opened on first use
// and released by Close.
type App struct {
	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Registry

	mu      sync.Mutex
	bars    *bars.SQLiteStore
	archive archive.Storage
	params  params.Store
}

// New creates a new App instance
func New(cfg *config.Config, logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if cfg.Metrics.Enabled {
		a.metrics = metrics.NewRegistry()
	}
	return a
}

func (a *App) Config() *config.Config { return a.cfg }

func (a *App) Logger() *zap.Logger { return a.logger }

// Metrics returns the registry, nil when metrics are disabled.
func (a *App) Metrics() *metrics.Registry { return a.metrics }

// Bars opens the SQLite bar store.
func (a *App) Bars(ctx context.Context) (*bars.SQLiteStore, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.bars == nil {
		store, err := bars.NewSQLiteStore(ctx, a.cfg.Data.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.bars = store
	}
	return a.bars, nil
}

// Archive opens the report and params archive backend.
func (a *App) Archive() (archive.Storage, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.archiveLocked()
}

func (a *App) archiveLocked() (archive.Storage, error) {
	if a.archive == nil {
		store, err := archive.Open(a.cfg.Archive.Options())
		if err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		a.archive = store
	}
	return a.archive, nil
}

// Params returns the best-params store kept as a document in the archive.
func (a *App) Params() (params.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.params == nil {
		store, err := a.archiveLocked()
		if err != nil {
			return nil, err
		}
		a.params = params.NewDocumentStore(store, a.cfg.ParamsStore.Path)
	}
	return a.params, nil
}

// SetParams replaces the params store, e.g. with an in-memory one.
func (a *App) SetParams(store params.Store) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.params = store
}

// Reports returns an archiver over the archive backend.
func (a *App) Reports() (*report.Archiver, error) {
	store, err := a.Archive()
	if err != nil {
		return nil, err
	}
	return report.NewArchiver(store), nil
}

// Backtester builds a backtester reading from the bar store.
func (a *App) Backtester(ctx context.Context) (*backtest.Backtester, error) {
	store, err := a.Bars(ctx)
	if err != nil {
		return nil, err
	}
	opts := []backtest.Option{backtest.WithLogger(a.logger)}
	if a.metrics != nil {
		opts = append(opts, backtest.WithRecorder(a.metrics))
	}
	return backtest.New(store, opts...), nil
}

// Tuner builds a parameter sweeper that records into the params store.
func (a *App) Tuner() (*sweep.Tuner, error) {
	store, err := a.Params()
	if err != nil {
		return nil, err
	}
	cfg := a.cfg.Backtest.Engine()
	cfg.Fee = a.cfg.Tuning.Fee
	cfg.Slippage = 0
	opts := []sweep.Option{
		sweep.WithConfig(cfg),
		sweep.WithWorkers(a.cfg.Tuning.Workers),
		sweep.WithLogger(a.logger),
	}
	if a.metrics != nil {
		opts = append(opts, sweep.WithRecorder(a.metrics))
	}
	return sweep.New(store, opts...), nil
}

// Advisor builds the LLM meta-strategy advisor.
func (a *App) Advisor() (*meta.Advisor, error) {
	provider, err := llmfactory.New(a.cfg.LLM)
	if err != nil {
		return nil, err
	}
	store, err := a.Params()
	if err != nil {
		return nil, err
	}
	advisor := meta.NewAdvisor(provider, store, a.logger, meta.AdvisorConfig{
		ContextHours: a.cfg.Meta.ContextHours,
		ShowPrompt:   a.cfg.Meta.ShowPrompt,
	})
	if a.metrics != nil {
		advisor.SetRecorder(a.metrics)
	}
	return advisor, nil
}

// Exchange returns the Binance history client.
func (a *App) Exchange() *binance.Client {
	return binance.New(a.cfg.Data.BinanceURL, binance.WithLogger(a.logger))
}

// Server builds the HTTP API.
func (a *App) Server(ctx context.Context) (*api.Server, error) {
	bt, err := a.Backtester(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.Params()
	if err != nil {
		return nil, err
	}
	reports, err := a.Reports()
	if err != nil {
		return nil, err
	}
	tf, err := core.ParseTimeframe(a.cfg.Data.Timeframe)
	if err != nil {
		return nil, err
	}
	baseTF, err := core.ParseTimeframe(a.cfg.Data.BaseTimeframe)
	if err != nil {
		return nil, err
	}

	opts := []handlerapi.Option{
		handlerapi.WithParamsStore(store),
		handlerapi.WithReports(reports),
		handlerapi.WithLogger(a.logger),
	}
	if a.metrics != nil {
		opts = append(opts, handlerapi.WithJobRecorder(a.metrics))
	}
	jobs := job.NewStore(a.cfg.Server.MaxJobs, time.Duration(a.cfg.Server.JobTTLHours)*time.Hour)
	backtests := handlerapi.NewBacktestHandler(jobs, bt, handlerapi.Defaults{
		Timeframe:     tf,
		BaseTimeframe: baseTF,
		Config:        a.cfg.Backtest.Engine(),
		BarsPerYear:   a.cfg.Backtest.BarsPerYear,
		Overrides:     a.cfg.Overrides(),
	}, opts...)

	srvCfg := api.Config{
		Host:   a.cfg.Server.Host,
		Port:   a.cfg.Server.Port,
		APIKey: a.cfg.Server.APIKey,
	}
	if a.metrics != nil {
		srvCfg.MetricsPath = a.cfg.Metrics.Path
	}
	return api.NewServer(srvCfg, api.Dependencies{Backtests: backtests, Metrics: a.metrics}, a.logger)
}

// Close releases opened stores.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	if a.bars != nil {
		errs = append(errs, a.bars.Close())
		a.bars = nil
	}
	return errors.Join(errs...)
}

// timeframes parses the analysis timeframe (or the configured one when
// code is empty) and the base timeframe.
func (a *App) timeframes(code string) (tf, base core.Timeframe, err error) {
	if code == "" {
		code = a.cfg.Data.Timeframe
	}
	if tf, err = core.ParseTimeframe(code); err != nil {
		return
	}
	base, err = core.ParseTimeframe(a.cfg.Data.BaseTimeframe)
	if err != nil {
		return
	}
	if tf.Duration() < base.Duration() {
		err = core.WrapError(core.ErrInvalidTimeframe,
			fmt.Errorf("%s is finer than the stored %s bars", tf, base))
	}
	return
}

// barsPerYear prefers the configured override.
func (a *App) barsPerYear(tf core.Timeframe) float64 {
	if a.cfg.Backtest.BarsPerYear > 0 {
		return a.cfg.Backtest.BarsPerYear
	}
	return tf.BarsPerYear()
}
