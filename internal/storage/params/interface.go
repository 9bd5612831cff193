// internal/storage/params/interface.go
package params

import (
	"context"
	"fmt"
	"time"
)

// Key identifies the best-known parameters for one strategy on one market.
type Key struct {
	Symbol    string
	Timeframe string
	Strategy  string
}

// String renders the key as SYMBOL_timeframe_strategy, e.g. BTCUSDT_15m_sma.
func (k Key) String() string {
	return fmt.Sprintf("%s_%s_%s", k.Symbol, k.Timeframe, k.Strategy)
}

// Record holds tuned parameters and the backtest that selected them.
type Record struct {
	Params      map[string]any `json:"params"`
	Period      string         `json:"period,omitempty"`      // "start→end"
	Performance string         `json:"performance,omitempty"` // Total return, e.g. "12.34%"
	UpdatedAt   time.Time      `json:"updated_at,omitzero"`
}

// Store persists best-known parameters.
type Store interface {
	// Get returns the record for key; ok is false when none is stored.
	Get(ctx context.Context, key Key) (rec Record, ok bool, err error)

	// Put replaces the record for key.
	Put(ctx context.Context, key Key, rec Record) error
}

// FormatPeriod renders a tuning window the way records store it.
func FormatPeriod(start, end time.Time) string {
	return start.UTC().Format("2006-01-02") + "→" + end.UTC().Format("2006-01-02")
}

// FormatPerformance renders a fractional return as a percentage string.
func FormatPerformance(totalReturn float64) string {
	return fmt.Sprintf("%.2f%%", totalReturn*100)
}
