package macd

import (
	"fmt"

	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/indicator"
	"github.com/newthinker/quantlab/internal/strategy"
)

// Params configures the MACD EMAs.
type Params struct {
	Fast   int `mapstructure:"fast" json:"fast"`
	Slow   int `mapstructure:"slow" json:"slow"`
	Signal int `mapstructure:"signal" json:"signal"`
}

// DefaultParams returns MACD(12, 26, 9).
func DefaultParams() Params {
	return Params{Fast: 12, Slow: 26, Signal: 9}
}

// Validate checks the EMA periods.
func (p Params) Validate() error {
	if p.Fast <= 0 || p.Slow <= 0 || p.Signal <= 0 {
		return fmt.Errorf("periods must be positive, got %d/%d/%d", p.Fast, p.Slow, p.Signal)
	}
	if p.Fast >= p.Slow {
		return fmt.Errorf("fast period %d must be shorter than slow period %d", p.Fast, p.Slow)
	}
	return nil
}

// Strategy trades crossings of the MACD line and its signal line.
//
// Entries fire when MACD crosses below the signal line and exits when it
// crosses back above. This is the contrarian reading the research tooling
// was tuned with; swap the two to trade momentum.
type Strategy struct {
	params Params
}

// New creates a MACD strategy.
func New(p Params) *Strategy {
	return &Strategy{params: p}
}

func (s *Strategy) Name() strategy.Kind { return strategy.KindMACD }

func (s *Strategy) Description() string {
	return fmt.Sprintf("MACD(%d,%d,%d)", s.params.Fast, s.params.Slow, s.params.Signal)
}

func (s *Strategy) Params() map[string]any {
	return map[string]any{"fast": s.params.Fast, "slow": s.params.Slow, "signal": s.params.Signal}
}

func (s *Strategy) RequiredData() strategy.DataRequirements {
	return strategy.DataRequirements{PriceHistory: s.params.Slow + s.params.Signal}
}

func (s *Strategy) Generate(prices core.Series) (core.Signals, error) {
	if err := s.params.Validate(); err != nil {
		return core.Signals{}, err
	}
	line, signal := indicator.MACD(prices.Values, s.params.Fast, s.params.Slow, s.params.Signal)

	sig := core.NewSignals(prices.Times)
	for i := range prices.Values {
		sig.Entries[i] = indicator.CrossedBelow(line, signal, i)
		sig.Exits[i] = indicator.CrossedAbove(line, signal, i)
	}
	return sig, nil
}
