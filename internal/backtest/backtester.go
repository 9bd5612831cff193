package backtest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/resample"
	"github.com/newthinker/quantlab/internal/strategy"
)

// BarProvider defines the interface for fetching historical bars
type BarProvider interface {
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// Recorder receives run outcomes. *metrics.Registry satisfies it.
type Recorder interface {
	RecordBacktest(status string, duration float64)
	RecordTrades(strategy string, count int)
}

// Request describes one backtest run.
type Request struct {
	Symbol        string
	Timeframe     core.Timeframe // Analysis resolution
	BaseTimeframe core.Timeframe // Resolution stored by the provider, 1m when zero
	Start         time.Time
	End           time.Time
	Strategy      strategy.Strategy
	Config        Config
	BarsPerYear   float64 // Derived from Timeframe when zero
	Mode          Mode    // ModeTrades when empty
}

// Backtester runs strategy backtests against historical data
type Backtester struct {
	provider BarProvider
	logger   *zap.Logger
	recorder Recorder
}

// Option configures a Backtester.
type Option func(*Backtester)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Backtester) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithRecorder reports run outcomes to r.
func WithRecorder(r Recorder) Option {
	return func(b *Backtester) {
		b.recorder = r
	}
}

// New creates a new Backtester with the given bar provider
func New(provider BarProvider, opts ...Option) *Backtester {
	b := &Backtester{
		provider: provider,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run fetches base bars, resamples them, generates signals and simulates the
// strategy. Cancellation is honored between stages.
func (b *Backtester) Run(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	res, err := b.run(ctx, req)
	if b.recorder != nil {
		status := "success"
		if err != nil {
			status = "failed"
		}
		b.recorder.RecordBacktest(status, time.Since(start).Seconds())
		if res != nil {
			b.recorder.RecordTrades(res.Strategy, len(res.Simulation.Trades))
		}
	}
	return res, err
}

func (b *Backtester) run(ctx context.Context, req Request) (*Result, error) {
	if req.Strategy == nil {
		return nil, core.WrapError(core.ErrPrecondition, fmt.Errorf("no strategy"))
	}
	if req.Timeframe.IsZero() {
		return nil, core.WrapError(core.ErrInvalidTimeframe, fmt.Errorf("no analysis timeframe"))
	}
	baseTF := req.BaseTimeframe
	if baseTF.IsZero() {
		baseTF = core.MustParseTimeframe("1m")
	}
	name := string(req.Strategy.Name())

	log := b.logger.With(
		zap.String("symbol", req.Symbol),
		zap.String("timeframe", req.Timeframe.String()),
		zap.String("strategy", name),
	)

	bars, err := b.provider.FetchHistory(ctx, req.Symbol, req.Start, req.End, baseTF.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s bars: %w", req.Symbol, err)
	}
	if len(bars) == 0 {
		return nil, core.ErrNoData
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	bars, err = resample.Resample(bars, req.Timeframe)
	if err != nil {
		return nil, err
	}
	prices := core.CloseSeries(bars)
	log.Debug("bars prepared", zap.Int("bars", prices.Len()))

	if need := req.Strategy.RequiredData().PriceHistory; prices.Len() < need {
		return nil, core.WrapError(core.ErrInsufficientData,
			fmt.Errorf("%s needs %d bars, have %d", name, need, prices.Len()))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	signals, err := req.Strategy.Generate(prices)
	if err != nil {
		return nil, core.WrapError(core.ErrStrategyFailed, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sim, err := Simulate(prices, signals, req.Config)
	if err != nil {
		return nil, err
	}

	bpy := req.BarsPerYear
	if bpy <= 0 {
		bpy = req.Timeframe.BarsPerYear()
	}
	var metrics Metrics
	if req.Mode == ModeEquity {
		metrics = Summarize(sim.Equity, bpy)
	} else {
		metrics = SummarizeTrades(sim.Equity, sim.Trades, bpy)
	}

	log.Info("backtest complete",
		zap.Int("trades", metrics.TradeCount),
		zap.Float64("total_return", metrics.TotalReturn),
		zap.Float64("sharpe", metrics.Sharpe),
		zap.Bool("open_position", sim.Open != nil),
	)

	return &Result{
		Strategy:    name,
		Params:      req.Strategy.Params(),
		Symbol:      req.Symbol,
		Timeframe:   req.Timeframe.String(),
		StartDate:   prices.Times[0],
		EndDate:     prices.Times[prices.Len()-1],
		Bars:        prices.Len(),
		Config:      req.Config,
		BarsPerYear: bpy,
		Simulation:  sim,
		Metrics:     metrics,
	}, nil
}
