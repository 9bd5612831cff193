package sweep

import (
	"github.com/newthinker/quantlab/internal/strategy"
)

// Axis is one named parameter and the values to try for it.
type Axis struct {
	Name   string `mapstructure:"name" json:"name" yaml:"name"`
	Values []any  `mapstructure:"values" json:"values" yaml:"values"`
}

// Grid is an ordered set of axes. Combinations are enumerated with the last
// axis varying fastest, so grid order is stable across runs.
type Grid []Axis

// DefaultGrid returns the search space used when a request carries no grid.
func DefaultGrid(kind strategy.Kind) Grid {
	switch kind {
	case strategy.KindSMA:
		return Grid{
			{Name: "fast", Values: []any{5, 10, 20, 25}},
			{Name: "slow", Values: []any{50, 80, 100, 200}},
		}
	case strategy.KindRSI:
		return Grid{
			{Name: "window", Values: []any{14, 21, 26}},
			{Name: "lower", Values: []any{20, 30}},
			{Name: "upper", Values: []any{70, 80}},
		}
	case strategy.KindMACD:
		return Grid{
			{Name: "fast", Values: []any{9, 12}},
			{Name: "slow", Values: []any{26, 39}},
			{Name: "signal", Values: []any{5, 9}},
		}
	case strategy.KindBollinger:
		return Grid{
			{Name: "window", Values: []any{20, 29}},
			{Name: "std", Values: []any{2, 3}},
		}
	}
	return nil
}

// Size returns the number of combinations in the grid.
func (g Grid) Size() int {
	if len(g) == 0 {
		return 0
	}
	n := 1
	for _, axis := range g {
		n *= len(axis.Values)
	}
	return n
}

// Combinations expands the cartesian product of the grid.
func (g Grid) Combinations() []map[string]any {
	size := g.Size()
	if size == 0 {
		return nil
	}

	combos := make([]map[string]any, 0, size)
	idx := make([]int, len(g))
	for {
		combo := make(map[string]any, len(g))
		for i, axis := range g {
			combo[axis.Name] = axis.Values[idx[i]]
		}
		combos = append(combos, combo)

		// odometer increment, last axis first
		i := len(g) - 1
		for ; i >= 0; i-- {
			idx[i]++
			if idx[i] < len(g[i].Values) {
				break
			}
			idx[i] = 0
		}
		if i < 0 {
			return combos
		}
	}
}
