package strategy

import (
	"context"
	"sort"
	"sync"

	"github.com/newthinker/quantlab/internal/core"
	"go.uber.org/zap"
)

// Engine holds a set of configured strategies and runs them over one series
type Engine struct {
	mu         sync.RWMutex
	strategies map[Kind]Strategy
	logger     *zap.Logger
}

// NewEngine creates a new strategy engine
func NewEngine(logger ...*zap.Logger) *Engine {
	var l *zap.Logger
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0]
	} else {
		l = zap.NewNop()
	}
	return &Engine{
		strategies: make(map[Kind]Strategy),
		logger:     l,
	}
}

// Register adds a strategy, replacing any other of the same kind
func (e *Engine) Register(s Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strategies[s.Name()] = s
}

// Get retrieves a strategy by kind
func (e *Engine) Get(kind Kind) (Strategy, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.strategies[kind]
	return s, ok
}

// GetAll returns all registered strategies ordered by kind
func (e *Engine) GetAll() []Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := make([]Strategy, 0, len(e.strategies))
	for _, s := range e.strategies {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name() < result[j].Name() })
	return result
}

// Generate runs every registered strategy over prices. Strategies that fail
// are logged and left out of the result.
func (e *Engine) Generate(ctx context.Context, prices core.Series) (map[Kind]core.Signals, error) {
	out := make(map[Kind]core.Signals)

	for _, s := range e.GetAll() {
		select {
		case <-ctx.Done():
			return out, ctx.Err()
		default:
		}

		if need := s.RequiredData().PriceHistory; prices.Len() < need {
			e.logger.Debug("not enough bars for strategy",
				zap.String("strategy", string(s.Name())),
				zap.Int("have", prices.Len()),
				zap.Int("need", need),
			)
		}

		signals, err := s.Generate(prices)
		if err != nil {
			e.logger.Warn("strategy signal generation failed",
				zap.String("strategy", string(s.Name())),
				zap.Error(err),
			)
			continue
		}
		out[s.Name()] = signals
	}

	return out, nil
}

// LastActions reduces each strategy's signals on the final bar to BUY, SELL or HOLD.
func (e *Engine) LastActions(ctx context.Context, prices core.Series) (map[Kind]core.Action, error) {
	all, err := e.Generate(ctx, prices)
	if err != nil {
		return nil, err
	}
	actions := make(map[Kind]core.Action, len(all))
	for k, sig := range all {
		actions[k] = sig.LastAction()
	}
	return actions, nil
}
