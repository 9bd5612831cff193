package core

import (
	"math"
	"time"
)

// Bar represents one fixed-interval OHLCV candlestick
type Bar struct {
	Symbol   string
	Interval string // "1m", "5m", "1h", "1d"
	Time     time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// MissingFields returns the names of OHLCV fields that carry no usable value.
func (b Bar) MissingFields() []string {
	var missing []string
	for _, f := range []struct {
		name string
		v    float64
	}{
		{"open", b.Open},
		{"high", b.High},
		{"low", b.Low},
		{"close", b.Close},
		{"volume", b.Volume},
	} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			missing = append(missing, f.name)
		}
	}
	return missing
}

// Series is a timestamp-indexed sequence of values, usually closing prices.
type Series struct {
	Times  []time.Time
	Values []float64
}

// Len returns the number of points in the series.
func (s Series) Len() int {
	return len(s.Values)
}

// CloseSeries extracts closing prices from bars.
func CloseSeries(bars []Bar) Series {
	s := Series{
		Times:  make([]time.Time, len(bars)),
		Values: make([]float64, len(bars)),
	}
	for i, b := range bars {
		s.Times[i] = b.Time
		s.Values[i] = b.Close
	}
	return s
}

// Signals holds the entry/exit flags a strategy produces over a price index.
// A nil Entries or Exits slice means no value was supplied and reads as false.
type Signals struct {
	Times   []time.Time
	Entries []bool
	Exits   []bool
}

// NewSignals allocates all-false signals over the given index.
func NewSignals(times []time.Time) Signals {
	return Signals{
		Times:   times,
		Entries: make([]bool, len(times)),
		Exits:   make([]bool, len(times)),
	}
}

// EntryAt reports the entry flag at i, treating missing values as false.
func (s Signals) EntryAt(i int) bool {
	return i < len(s.Entries) && s.Entries[i]
}

// ExitAt reports the exit flag at i, treating missing values as false.
func (s Signals) ExitAt(i int) bool {
	return i < len(s.Exits) && s.Exits[i]
}

// Action represents a discretionary trading decision
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
	ActionHold Action = "HOLD"
)

// LastAction converts the flags on the final bar into a decision.
// An entry outranks an exit on the same bar.
func (s Signals) LastAction() Action {
	n := len(s.Times)
	if n == 0 {
		n = max(len(s.Entries), len(s.Exits))
	}
	if n == 0 {
		return ActionHold
	}
	switch {
	case s.EntryAt(n - 1):
		return ActionBuy
	case s.ExitAt(n - 1):
		return ActionSell
	default:
		return ActionHold
	}
}
