package bollinger

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Params configures the band window and width.
type Params struct {
	Window int     `mapstructure:"window" json:"window"`
	Std    float64 `mapstructure:"std" json:"std"`
}

// DefaultParams returns 20-bar bands at two standard deviations.
func DefaultParams() Params {
	return Params{Window: 20, Std: 2}
}

// Validate checks window and width.
func (p Params) Validate() error {
	if p.Window <= 1 {
		return fmt.Errorf("window must be at least 2, got %d", p.Window)
	}
	if p.Std <= 0 {
		return fmt.Errorf("std must be positive, got %v", p.Std)
	}
	return nil
}

// Strategy is a Bollinger band mean-reversion strategy.
type Strategy struct {
	params Params
}

// New creates a Bollinger band strategy.
func New(p Params) *Strategy {
	return &Strategy{params: p}
}

func (s *Strategy) Name() strategy.Kind { return strategy.KindBollinger }

func (s *Strategy) Description() string {
	return fmt.Sprintf("Bollinger(%d, %g)", s.params.Window, s.params.Std)
}

func (s *Strategy) Params() map[string]any {
	return map[string]any{"window": s.params.Window, "std": s.params.Std}
}

func (s *Strategy) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{PriceHistory: s.params.Window}
}

// Generate enters when the close is below the lower band and exits when it
// is above the upper band.
func (s *Strategy) Generate(prices core.Series) (core.Signals, error) {
	if err := s.params.Validate(); err != nil {
		return core.Signals{}, err
	}
	_, upper, lower := indicator.Bollinger(prices.Values, s.params.Window, s.params.Std)

	sig := core.NewSignals(prices.Times)
	for i, p := range prices.Values {
		sig.Entries[i] = p < lower[i]
		sig.Exits[i] = p > upper[i]
	}
	return sig, nil
}
