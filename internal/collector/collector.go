// Package collector downloads exchange history into the local bar store.
package collector

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/core"
)

// Source fetches historical bars from an exchange.
type Source interface {
	Name() string
	FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error)
}

// Sink receives downloaded bars. *bars.SQLiteStore satisfies it.
type Sink interface {
	SaveBars(ctx context.Context, bars []core.Bar) error
	Latest(ctx context.Context, symbol, interval string) (time.Time, bool, error)
}

// SyncRequest describes one download.
type SyncRequest struct {
	Symbol   string
	Interval string
	Start    time.Time
	End      time.Time // Zero means now
	Resume   bool      // Continue after the newest stored bar when it is past Start
}

// SyncResult summarizes a download.
type SyncResult struct {
	Symbol  string
	From    time.Time
	To      time.Time
	Fetched int
}

// Sync downloads bars from src and saves them into dst.
func Sync(ctx context.Context, src Source, dst Sink, req SyncRequest, logger *zap.Logger) (*SyncResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	symbol := NormalizeSymbol(req.Symbol, DefaultQuote)
	if err := ValidateSymbol(symbol); err != nil {
		return nil, err
	}
	tf, err := core.ParseTimeframe(req.Interval)
	if err != nil {
		return nil, err
	}

	from, to := req.Start, req.End
	if to.IsZero() {
		to = time.Now().UTC()
	}
	if req.Resume {
		latest, ok, err := dst.Latest(ctx, symbol, tf.String())
		if err != nil {
			return nil, err
		}
		if ok && latest.After(from) {
			from = latest.Add(tf.Duration())
		}
	}

	result := &SyncResult{Symbol: symbol, From: from, To: to}
	if !from.Before(to) {
		logger.Info("bar store already up to date",
			zap.String("symbol", symbol),
			zap.String("interval", tf.String()))
		return result, nil
	}

	logger.Info("fetching history",
		zap.String("source", src.Name()),
		zap.String("symbol", symbol),
		zap.String("interval", tf.String()),
		zap.Time("from", from),
		zap.Time("to", to))

	bars, err := src.FetchHistory(ctx, symbol, from, to, tf.String())
	if err != nil {
		return nil, fmt.Errorf("fetching %s from %s: %w", symbol, src.Name(), err)
	}
	if err := dst.SaveBars(ctx, bars); err != nil {
		return nil, err
	}
	result.Fetched = len(bars)

	logger.Info("history saved", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
	return result, nil
}
