// internal/strategy/factory/factory.go
package factory

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/params"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/strategy/bollinger"
	"github.com/newthinker/quantlab/internal/strategy/ma_crossover"
	"github.com/newthinker/quantlab/internal/strategy/macd"
	"github.com/newthinker/quantlab/internal/strategy/rsi"
)

// Source reports where a resolved strategy's parameters came from.
type Source string

const (
	SourceStore    Source = "store"
	SourceConfig   Source = "config"
	SourceDefaults Source = "defaults"
)

// New creates a strategy of the given kind, decoding overrides on top of its
// default parameters.
func New(kind strategy.Kind, overrides map[string]any) (strategy.Strategy, error) {
	switch kind {
	case strategy.KindSMA:
		p := ma_crossover.DefaultParams()
		if err := decode(kind, overrides, &p, func() error { return p.Validate() }); err != nil {
			return nil, err
		}
		return ma_crossover.New(p), nil
	case strategy.KindRSI:
		p := rsi.DefaultParams()
		if err := decode(kind, overrides, &p, func() error { return p.Validate() }); err != nil {
			return nil, err
		}
		return rsi.New(p), nil
	case strategy.KindMACD:
		p := macd.DefaultParams()
		if err := decode(kind, overrides, &p, func() error { return p.Validate() }); err != nil {
			return nil, err
		}
		return macd.New(p), nil
	case strategy.KindBollinger:
		p := bollinger.DefaultParams()
		if err := decode(kind, overrides, &p, func() error { return p.Validate() }); err != nil {
			return nil, err
		}
		return bollinger.New(p), nil
	default:
		return nil, core.WrapError(core.ErrUnknownStrategy, fmt.Errorf("%q", kind))
	}
}

// Resolve picks parameters for key.Strategy: the best-known record in store,
// else the configured overrides, else the defaults.
func Resolve(ctx context.Context, store params.Store, key params.Key, overrides map[string]any) (strategy.Strategy, Source, error) {
	kind, err := strategy.ParseKind(key.Strategy)
	if err != nil {
		return nil, "", err
	}

	if store != nil {
		rec, ok, err := store.Get(ctx, key)
		if err != nil {
			return nil, "", err
		}
		if ok && len(rec.Params) > 0 {
			s, err := New(kind, rec.Params)
			if err != nil {
				return nil, "", fmt.Errorf("stored params for %s: %w", key, err)
			}
			return s, SourceStore, nil
		}
	}

	source := SourceDefaults
	if len(overrides) > 0 {
		source = SourceConfig
	}
	s, err := New(kind, overrides)
	if err != nil {
		return nil, "", err
	}
	return s, source, nil
}

// BuildEngine resolves every supported strategy for a symbol and timeframe and
// registers them on a new engine.
func BuildEngine(ctx context.Context, store params.Store, symbol, timeframe string, overrides map[string]map[string]any, logger *zap.Logger) (*strategy.Engine, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	engine := strategy.NewEngine(logger)
	for _, kind := range strategy.Kinds() {
		key := params.Key{Symbol: symbol, Timeframe: timeframe, Strategy: string(kind)}
		s, source, err := Resolve(ctx, store, key, overrides[string(kind)])
		if err != nil {
			return nil, err
		}
		logger.Debug("strategy resolved",
			zap.String("strategy", string(kind)),
			zap.String("source", string(source)),
			zap.String("description", s.Description()),
		)
		engine.Register(s)
	}
	return engine, nil
}

// decode merges in over the defaults already in out, then validates the result.
func decode(kind strategy.Kind, in map[string]any, out any, check func() error) error {
	if len(in) > 0 {
		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:           out,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
		})
		if err != nil {
			return err
		}
		if err := dec.Decode(in); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s params: %w", kind, err))
		}
	}
	if err := check(); err != nil {
		return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s params: %w", kind, err))
	}
	return nil
}
