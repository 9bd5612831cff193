package strategy

import (
	"fmt"
	"strings"

	"github.com/newthinker/quantlab/internal/core"
)

// Kind enumerates the supported signal generators.
type Kind string

const (
	KindSMA       Kind = "sma"
	KindRSI       Kind = "rsi"
	KindMACD      Kind = "macd"
	KindBollinger Kind = "bollinger"
)

// Kinds returns every supported strategy kind in a stable order.
func Kinds() []Kind {
	return []Kind{KindSMA, KindRSI, KindMACD, KindBollinger}
}

// ParseKind resolves a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range Kinds() {
		if k == known {
			return k, nil
		}
	}
	return "", core.WrapError(core.ErrUnknownStrategy, fmt.Errorf("%q", name))
}

// DataRequirements specifies what data a strategy needs
type DataRequirements struct {
	PriceHistory int // Bars needed before the first signal can fire
}

// Strategy turns a closing price series into aligned entry/exit signals.
type Strategy interface {
	Name() Kind
	Description() string
	Params() map[string]any
	RequiredData() DataRequirements
	Generate(prices core.Series) (core.Signals, error)
}
