package ma_crossover

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Params configures the crossover windows.
type Params struct {
	Fast int `mapstructure:"fast" json:"fast"`
	Slow int `mapstructure:"slow" json:"slow"`
}

// DefaultParams returns the stock 10/50 crossover.
func DefaultParams() Params {
	return Params{Fast: 10, Slow: 50}
}

// Validate checks that the windows are usable.
func (p Params) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 {
		return fmt.Errorf("windows must be positive, got fast=%d slow=%d", p.Fast, p.Slow)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("fast window %d must be shorter than slow window %d", p.Fast, p.Slow)
	}
	return nil
}

// MACrossover implements a moving average crossover strategy
type MACrossover struct {
	params Params
}

// New creates a new MA Crossover strategy
func New(p Params) *MACrossover {
	return &MACrossover{params: p}
}

func (m *MACrossover) Name() strategy.Kind {
	return strategy.KindSMA
}

func (m *MACrossover) Description() string {
	return fmt.Sprintf("SMA crossover (%d/%d)", m.params.Fast, m.params.Slow)
}

func (m *MACrossover) Params() map[string]any {
	return map[string]any{"fast": m.params.Fast, "slow": m.params.Slow}
}

func (m *MACrossover) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{
		PriceHistory: m.params.Slow + 1, // One extra bar to see the cross
	}
}

// Generate enters on a golden cross and exits on a death cross.
func (m *MACrossover) Generate(prices core.Series) (core.Signals, error) {
	if err := m.params.Validate(); err != nil {
		return core.Signals{}, err
	}

	fast := indicator.RollingMean(prices.Values, m.params.Fast)
	slow := indicator.RollingMean(prices.Values, m.params.Slow)

	sig := core.NewSignals(prices.Times)
	for i := range prices.Values {
		// Golden Cross: fast crosses above slow
		sig.Entries[i] = indicator.CrossedAbove(fast, slow, i)
		// Death Cross: fast crosses below slow
		sig.Exits[i] = indicator.CrossedBelow(fast, slow, i)
	}
	return sig, nil
}
