// internal/sweep/tuner.go
package sweep

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/factory"
)

// MinBars is the shortest price history a sweep accepts.
const MinBars = 100

// Recorder receives one call per evaluated combination.
type Recorder interface {
	RecordSweepEvaluation(strategy string)
}

// Request describes one sweep over a single strategy.
type Request struct {
	Key    params.Key
	Prices core.Series
	Kind   strategy.Kind // Parsed from Key.Strategy when empty
	Grid   Grid          // DefaultGrid(Kind) when empty

	// Start and End label the stored period; the price index bounds are used
	// when zero.
	Start time.Time
	End   time.Time

	BarsPerYear float64
}

// Evaluation is the backtest outcome of one parameter combination.
type Evaluation struct {
	Params  map[string]any   `json:"params"`
	Metrics backtest.Metrics `json:"metrics"`
}

// Outcome summarizes a sweep.
type Outcome struct {
	Key         params.Key     `json:"key"`
	Best        map[string]any `json:"best"`
	Performance float64        `json:"performance"` // Total return of Best
	Evaluated   int            `json:"evaluated"`
	Skipped     int            `json:"skipped"`
	Evaluations []Evaluation   `json:"evaluations"`
	Stored      bool           `json:"stored"`
}

// Tuner grid-searches strategy parameters and records the winners.
type Tuner struct {
	store    params.Store
	config   backtest.Config
	workers  int
	logger   *zap.Logger
	recorder Recorder
	now      func() time.Time
}

type Option func(*Tuner)

func WithConfig(cfg backtest.Config) Option {
	return func(t *Tuner) { t.config = cfg }
}

func WithWorkers(n int) Option {
	return func(t *Tuner) {
		if n > 0 {
			t.workers = n
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(t *Tuner) { t.logger = logger }
}

func WithRecorder(r Recorder) Option {
	return func(t *Tuner) { t.recorder = r }
}

// New creates a tuner that records best parameters into store. A nil store
// disables recording.
func New(store params.Store, opts ...Option) *Tuner {
	cfg := backtest.DefaultConfig()
	cfg.Slippage = 0
	t := &Tuner{
		store:   store,
		config:  cfg,
		workers: runtime.GOMAXPROCS(0),
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

type candidate struct {
	index    int
	params   map[string]any
	strategy strategy.Strategy
}

// Tune backtests every valid combination of the grid and returns the one
// with the highest total return. Ties go to the earlier combination.
func (t *Tuner) Tune(ctx context.Context, req Request) (*Outcome, error) {
	kind := req.Kind
	if kind == "" {
		k, err := strategy.ParseKind(req.Key.Strategy)
		if err != nil {
			return nil, err
		}
		kind = k
	}
	req.Key.Strategy = string(kind)

	if req.Prices.Len() < MinBars {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("sweep needs %d bars, got %d", MinBars, req.Prices.Len()))
	}

	grid := req.Grid
	if len(grid) == 0 {
		grid = DefaultGrid(kind)
	}

	combos := grid.Combinations()
	outcome := &Outcome{Key: req.Key}
	candidates := make([]candidate, 0, len(combos))
	for _, combo := range combos {
		s, err := factory.New(kind, combo)
		if err != nil {
			outcome.Skipped++
			t.logger.Debug("combination rejected", zap.Any("params", combo), zap.Error(err))
			continue
		}
		if req.Prices.Len() < window(kind, s.Params()) {
			outcome.Skipped++
			continue
		}
		candidates = append(candidates, candidate{index: len(candidates), params: s.Params(), strategy: s})
	}

	results := make([]backtest.Metrics, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, c := range candidates {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			m, err := t.evaluate(req.Prices, c.strategy, req.BarsPerYear)
			if err != nil {
				return fmt.Errorf("%s %v: %w", kind, c.params, err)
			}
			results[c.index] = m
			if t.recorder != nil {
				t.recorder.RecordSweepEvaluation(string(kind))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	best := -1
	for i, c := range candidates {
		outcome.Evaluations = append(outcome.Evaluations, Evaluation{Params: c.params, Metrics: results[i]})
		if best < 0 || results[i].TotalReturn > results[best].TotalReturn {
			best = i
		}
	}
	outcome.Evaluated = len(candidates)

	if best < 0 {
		s, err := factory.New(kind, nil)
		if err != nil {
			return nil, err
		}
		outcome.Best = s.Params()
		t.logger.Warn("no combination evaluated, keeping defaults",
			zap.String("key", req.Key.String()),
			zap.Int("skipped", outcome.Skipped),
		)
		return outcome, nil
	}

	outcome.Best = candidates[best].params
	outcome.Performance = results[best].TotalReturn

	t.logger.Info("sweep complete",
		zap.String("key", req.Key.String()),
		zap.Int("evaluated", outcome.Evaluated),
		zap.Int("skipped", outcome.Skipped),
		zap.Any("best", outcome.Best),
		zap.Float64("total_return", outcome.Performance),
	)

	if t.store != nil {
		start, end := req.Start, req.End
		if start.IsZero() {
			start = req.Prices.Times[0]
		}
		if end.IsZero() {
			end = req.Prices.Times[req.Prices.Len()-1]
		}
		rec := params.Record{
			Params:      outcome.Best,
			Period:      params.FormatPeriod(start, end),
			Performance: params.FormatPerformance(outcome.Performance),
			UpdatedAt:   t.now().UTC(),
		}
		if err := t.store.Put(ctx, req.Key, rec); err != nil {
			return nil, err
		}
		outcome.Stored = true
	}
	return outcome, nil
}

// Batch sweeps several strategies over one price series.
type Batch struct {
	Symbol    string
	Timeframe string
	Prices    core.Series
	Kinds     []strategy.Kind // Every kind when empty
	Grids     map[string]Grid // Per strategy, DefaultGrid when missing

	Start       time.Time
	End         time.Time
	BarsPerYear float64
}

// TuneAll runs Tune for each kind of the batch in order.
func (t *Tuner) TuneAll(ctx context.Context, b Batch) ([]*Outcome, error) {
	kinds := b.Kinds
	if len(kinds) == 0 {
		kinds = strategy.Kinds()
	}
	outcomes := make([]*Outcome, 0, len(kinds))
	for _, kind := range kinds {
		out, err := t.Tune(ctx, Request{
			Key:         params.Key{Symbol: b.Symbol, Timeframe: b.Timeframe, Strategy: string(kind)},
			Prices:      b.Prices,
			Kind:        kind,
			Grid:        b.Grids[string(kind)],
			Start:       b.Start,
			End:         b.End,
			BarsPerYear: b.BarsPerYear,
		})
		if err != nil {
			return nil, fmt.Errorf("tuning %s: %w", kind, err)
		}
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}

func (t *Tuner) evaluate(prices core.Series, s strategy.Strategy, barsPerYear float64) (backtest.Metrics, error) {
	signals, err := s.Generate(prices)
	if err != nil {
		return backtest.Metrics{}, core.WrapError(core.ErrStrategyFailed, err)
	}
	sim, err := backtest.Simulate(prices, signals, t.config)
	if err != nil {
		return backtest.Metrics{}, err
	}
	return backtest.SummarizeTrades(sim.Equity, sim.Trades, barsPerYear), nil
}

// window is the longest lookback a parameter set needs.
func window(kind strategy.Kind, p map[string]any) int {
	get := func(name string) int {
		v, _ := p[name].(int)
		return v
	}
	switch kind {
	case strategy.KindSMA:
		return max(get("fast"), get("slow"))
	case strategy.KindMACD:
		return get("slow") + get("signal")
	default:
		return get("window")
	}
}
