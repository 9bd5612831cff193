package app

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/collector"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/meta"
	"github.com/newthinker/quantlab/internal/report"
	"github.com/newthinker/quantlab/internal/resample"
	"github.com/newthinker/quantlab/internal/storage/bars"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/factory"
	"github.com/newthinker/quantlab/internal/sweep"
)

// Window selects a symbol, timeframe and date range. Empty fields fall back
// to the data section of the config.
type Window struct {
	Symbol    string
	Timeframe string
	Start     time.Time
	End       time.Time
}

func (a *App) window(w Window) (Window, error) {
	if w.Symbol == "" {
		w.Symbol = a.cfg.Data.Symbol
	}
	w.Symbol = strings.ToUpper(w.Symbol)
	if w.Timeframe == "" {
		w.Timeframe = a.cfg.Data.Timeframe
	}
	if w.Start.IsZero() || w.End.IsZero() {
		start, end, err := a.cfg.Data.Range()
		if err != nil {
			return w, err
		}
		if w.Start.IsZero() {
			w.Start = start
		}
		if w.End.IsZero() {
			w.End = end
		}
	}
	return w, nil
}

// BacktestOptions selects what to backtest.
type BacktestOptions struct {
	Window
	Strategies []string       // Every kind when empty
	Params     map[string]any // Explicit params, only with a single strategy
	Archive    bool           // Save each report to the archive
	EquityOnly bool           // Metrics from the equity curve alone
}

// Backtest runs each selected strategy over the stored bars and returns one
// report per strategy.
func (a *App) Backtest(ctx context.Context, opts BacktestOptions) ([]*report.Report, error) {
	w, err := a.window(opts.Window)
	if err != nil {
		return nil, err
	}
	tf, base, err := a.timeframes(w.Timeframe)
	if err != nil {
		return nil, err
	}
	kinds, err := parseKinds(opts.Strategies)
	if err != nil {
		return nil, err
	}
	if len(opts.Params) > 0 && len(kinds) != 1 {
		return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("explicit params need exactly one strategy"))
	}

	bt, err := a.Backtester(ctx)
	if err != nil {
		return nil, err
	}
	store, err := a.Params()
	if err != nil {
		return nil, err
	}
	var archiver *report.Archiver
	if opts.Archive {
		if archiver, err = a.Reports(); err != nil {
			return nil, err
		}
	}

	mode := backtest.ModeTrades
	if opts.EquityOnly {
		mode = backtest.ModeEquity
	}
	overrides := a.cfg.Overrides()
	reports := make([]*report.Report, 0, len(kinds))
	for _, kind := range kinds {
		var s strategy.Strategy
		if len(opts.Params) > 0 {
			s, err = factory.New(kind, opts.Params)
		} else {
			key := params.Key{Symbol: w.Symbol, Timeframe: tf.String(), Strategy: string(kind)}
			var source factory.Source
			s, source, err = factory.Resolve(ctx, store, key, overrides[string(kind)])
			a.logger.Debug("strategy params resolved", zap.String("strategy", string(kind)), zap.String("source", string(source)))
		}
		if err != nil {
			return nil, err
		}

		res, err := bt.Run(ctx, backtest.Request{
			Symbol:        w.Symbol,
			Timeframe:     tf,
			BaseTimeframe: base,
			Start:         w.Start,
			End:           w.End,
			Strategy:      s,
			Config:        a.cfg.Backtest.Engine(),
			BarsPerYear:   a.cfg.Backtest.BarsPerYear,
			Mode:          mode,
		})
		if err != nil {
			return nil, fmt.Errorf("backtesting %s: %w", kind, err)
		}

		rep := report.FromResult(res, time.Now())
		if archiver != nil {
			path, err := archiver.Save(ctx, rep)
			if err != nil {
				return nil, err
			}
			a.logger.Info("report archived", zap.String("path", path))
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// TuneOptions selects what to sweep.
type TuneOptions struct {
	Window
	Strategies []string
}

// Tune grid-searches each selected strategy and records the winners in the
// params store.
func (a *App) Tune(ctx context.Context, opts TuneOptions) ([]*sweep.Outcome, error) {
	w, err := a.window(opts.Window)
	if err != nil {
		return nil, err
	}
	kinds, err := parseKinds(opts.Strategies)
	if err != nil {
		return nil, err
	}
	resampled, tf, err := a.loadResampled(ctx, w)
	if err != nil {
		return nil, err
	}
	tuner, err := a.Tuner()
	if err != nil {
		return nil, err
	}

	return tuner.TuneAll(ctx, sweep.Batch{
		Symbol:      w.Symbol,
		Timeframe:   tf.String(),
		Prices:      core.CloseSeries(resampled),
		Kinds:       kinds,
		Grids:       a.cfg.Tuning.Grids,
		Start:       w.Start,
		End:         w.End,
		BarsPerYear: a.barsPerYear(tf),
	})
}

// ResampleOptions selects bars to export.
type ResampleOptions struct {
	Window
	Out string // Parquet path, derived from the parquet dir when empty
}

// Resample aggregates stored base bars to the target timeframe and writes
// them to a Parquet file. It returns the path and bar count.
func (a *App) Resample(ctx context.Context, opts ResampleOptions) (string, int, error) {
	w, err := a.window(opts.Window)
	if err != nil {
		return "", 0, err
	}
	resampled, tf, err := a.loadResampled(ctx, w)
	if err != nil {
		return "", 0, err
	}
	out := opts.Out
	if out == "" {
		out = filepath.Join(a.cfg.Data.ParquetDir, fmt.Sprintf("%s_%s.parquet", w.Symbol, tf))
	}
	if err := bars.WriteParquet(out, resampled); err != nil {
		return "", 0, err
	}
	a.logger.Info("resampled bars written",
		zap.String("path", out),
		zap.String("timeframe", tf.String()),
		zap.Int("bars", len(resampled)))
	return out, len(resampled), nil
}

// FetchOptions selects exchange history to download.
type FetchOptions struct {
	Symbol   string
	Interval string // Base timeframe when empty
	Start    time.Time
	End      time.Time
	Resume   bool
}

// Fetch downloads klines from Binance into the bar store.
func (a *App) Fetch(ctx context.Context, opts FetchOptions) (*collector.SyncResult, error) {
	if opts.Symbol == "" {
		opts.Symbol = a.cfg.Data.Symbol
	}
	if opts.Interval == "" {
		opts.Interval = a.cfg.Data.BaseTimeframe
	}
	if opts.Start.IsZero() {
		start, _, err := a.cfg.Data.Range()
		if err != nil {
			return nil, err
		}
		opts.Start = start
	}
	store, err := a.Bars(ctx)
	if err != nil {
		return nil, err
	}
	return collector.Sync(ctx, a.Exchange(), store, collector.SyncRequest{
		Symbol:   opts.Symbol,
		Interval: opts.Interval,
		Start:    opts.Start,
		End:      opts.End,
		Resume:   opts.Resume,
	}, a.logger)
}

// AdviseOptions selects the market the advisor looks at.
type AdviseOptions struct {
	Window
	Position string
}

// Advise asks the LLM advisor for a decision on the latest bar.
func (a *App) Advise(ctx context.Context, opts AdviseOptions) (*meta.Decision, error) {
	w, err := a.window(opts.Window)
	if err != nil {
		return nil, err
	}
	advisor, err := a.Advisor()
	if err != nil {
		return nil, err
	}
	resampled, tf, err := a.loadResampled(ctx, w)
	if err != nil {
		return nil, err
	}
	store, err := a.Params()
	if err != nil {
		return nil, err
	}
	engine, err := factory.BuildEngine(ctx, store, w.Symbol, tf.String(), a.cfg.Overrides(), a.logger)
	if err != nil {
		return nil, err
	}
	actions, err := engine.LastActions(ctx, core.CloseSeries(resampled))
	if err != nil {
		return nil, err
	}

	recent := resampled
	if n := meta.ContextBars(tf, a.cfg.Meta.ContextHours); len(recent) > n {
		recent = recent[len(recent)-n:]
	}
	return advisor.Decide(ctx, meta.DecisionRequest{
		Symbol:    w.Symbol,
		Timeframe: tf,
		Actions:   actions,
		Recent:    recent,
		Position:  opts.Position,
	})
}

// ListReports loads archived reports matching f.
func (a *App) ListReports(ctx context.Context, f report.Filter) ([]*report.Report, error) {
	archiver, err := a.Reports()
	if err != nil {
		return nil, err
	}
	return archiver.List(ctx, f)
}

// Serve runs the HTTP API until ctx is canceled.
func (a *App) Serve(ctx context.Context) error {
	srv, err := a.Server(ctx)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadResampled reads base bars for w and aggregates them to w.Timeframe.
func (a *App) loadResampled(ctx context.Context, w Window) ([]core.Bar, core.Timeframe, error) {
	tf, base, err := a.timeframes(w.Timeframe)
	if err != nil {
		return nil, tf, err
	}
	store, err := a.Bars(ctx)
	if err != nil {
		return nil, tf, err
	}
	raw, err := store.LoadBars(ctx, w.Symbol, base.String(), w.Start, w.End)
	if err != nil {
		return nil, tf, err
	}
	if len(raw) == 0 {
		return nil, tf, core.WrapError(core.ErrNoData, fmt.Errorf("no %s bars for %s", base, w.Symbol))
	}
	resampled, err := resample.Resample(raw, tf)
	if err != nil {
		return nil, tf, err
	}
	return resampled, tf, nil
}

func parseKinds(names []string) ([]strategy.Kind, error) {
	if len(names) == 0 {
		return strategy.Kinds(), nil
	}
	kinds := make([]strategy.Kind, 0, len(names))
	for _, name := range names {
		if name == "all" {
			return strategy.Kinds(), nil
		}
		k, err := strategy.ParseKind(name)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
