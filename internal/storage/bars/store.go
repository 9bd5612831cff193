// Package bars persists OHLCV bars for backtests: a SQLite kline table for
// the base-resolution history and Parquet files for resampled exports.
package bars

import (
	"context"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// Store persists and retrieves OHLCV bars.
type Store interface {
	// SaveBars upserts bars keyed by (time, symbol, interval).
	SaveBars(ctx context.Context, bars []core.Bar) error

	// LoadBars returns bars for symbol and interval within [start, end],
	// ordered by time. A zero start or end leaves that side open.
	LoadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error)
}

// inRange reports whether t falls in [start, end], treating zero bounds as open.
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && t.After(end) {
		return false
	}
	return true
}
