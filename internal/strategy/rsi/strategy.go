package rsi

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Params configures the RSI window and thresholds.
type Params struct {
	Window int     `mapstructure:"window" json:"window"`
	Lower  float64 `mapstructure:"lower" json:"lower"`
	Upper  float64 `mapstructure:"upper" json:"upper"`
}

// DefaultParams returns RSI(14) with 30/70 bands.
func DefaultParams() Params {
	return Params{Window: 14, Lower: 30, Upper: 70}
}

// Validate checks window and threshold ordering.
func (p Params) Validate() error {
	if p.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", p.Window)
	}
	if p.Lower < 0 || p.Upper > 100 || p.Lower >= p.Upper {
		return fmt.Errorf("thresholds must satisfy 0 <= lower < upper <= 100, got %v/%v", p.Lower, p.Upper)
	}
	return nil
}

// Strategy buys oversold and sells overbought readings.
type Strategy struct {
	params Params
}

// New creates an RSI strategy.
func New(p Params) *Strategy {
	return &Strategy{params: p}
}

func (s *Strategy) Name() strategy.Kind { return strategy.KindRSI }

func (s *Strategy) Description() string {
	return fmt.Sprintf("RSI(%d) %g/%g", s.params.Window, s.params.Lower, s.params.Upper)
}

func (s *Strategy) Params() map[string]any {
	return map[string]any{"window": s.params.Window, "lower": s.params.Lower, "upper": s.params.Upper}
}

func (s *Strategy) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{PriceHistory: s.params.Window + 1}
}

// Generate flags an entry while RSI is below the lower band and an exit while
// it is above the upper band. Undefined readings produce no signal.
func (s *Strategy) Generate(prices core.Series) (core.Signals, error) {
	if err := s.params.Validate(); err != nil {
		return core.Signals{}, err
	}
	rsi := indicator.RSI(prices.Values, s.params.Window)

	sig := core.NewSignals(prices.Times)
	for i, v := range rsi {
		// NaN compares false on both sides.
		sig.Entries[i] = v < s.params.Lower
		sig.Exits[i] = v > s.params.Upper
	}
	return sig, nil
}
