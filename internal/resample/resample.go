// Package resample aggregates base-resolution OHLCV bars into coarser timeframes.
package resample

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// weekOrigin is the first Sunday 00:00 UTC after the Unix epoch.
var weekOrigin = time.Unix(0, 0).UTC().AddDate(0, 0, 3)

// Resample converts bars to the target timeframe.
//
// Windows are right-closed and right-labeled: the output bar labeled T holds every
// source bar with T-width < t <= T. Windows are aligned to the Unix epoch, weeks to
// Sunday 00:00 UTC. Windows without source bars are dropped.
func Resample(bars []core.Bar, target core.Timeframe) ([]core.Bar, error) {
	if target.Duration() <= 0 {
		return nil, core.WrapError(core.ErrInvalidTimeframe, fmt.Errorf("target %q has no width", target))
	}
	if err := Validate(bars); err != nil {
		return nil, err
	}
	if len(bars) == 0 {
		return []core.Bar{}, nil
	}

	sorted := make([]core.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	if native, ok := NativeResolution(sorted); ok && native == target.Duration() {
		return sorted, nil
	}

	width := target.Duration()
	origin := time.Unix(0, 0).UTC()
	if target.Unit == core.UnitWeek {
		origin = weekOrigin
	}

	out := make([]core.Bar, 0, len(sorted))
	var cur *core.Bar
	for _, b := range sorted {
		label := windowLabel(b.Time, origin, width)
		if cur != nil && cur.Time.Equal(label) {
			cur.High = max(cur.High, b.High)
			cur.Low = min(cur.Low, b.Low)
			cur.Close = b.Close
			cur.Volume += b.Volume
			continue
		}
		out = append(out, core.Bar{
			Symbol:   b.Symbol,
			Interval: target.String(),
			Time:     label,
			Open:     b.Open,
			High:     b.High,
			Low:      b.Low,
			Close:    b.Close,
			Volume:   b.Volume,
		})
		cur = &out[len(out)-1]
	}
	return out, nil
}

// windowLabel returns the right edge of the window containing t.
func windowLabel(t, origin time.Time, width time.Duration) time.Time {
	d := t.Sub(origin)
	n := d / width
	if d%width > 0 {
		n++
	}
	return origin.Add(n * width).In(t.Location())
}

// Validate checks that every bar carries finite OHLCV values and that the
// timestamps form a strictly sortable index.
func Validate(bars []core.Bar) error {
	seen := make(map[int64]struct{}, len(bars))
	for i, b := range bars {
		if missing := b.MissingFields(); len(missing) > 0 {
			return core.WrapError(core.ErrSchema,
				fmt.Errorf("bar %d (%s): missing %s", i, b.Time.Format(time.RFC3339), strings.Join(missing, ", ")))
		}
		if b.Time.IsZero() {
			return core.WrapError(core.ErrIndexNotTemporal, fmt.Errorf("bar %d has no timestamp", i))
		}
		key := b.Time.UnixNano()
		if _, dup := seen[key]; dup {
			return core.WrapError(core.ErrIndexNotTemporal,
				fmt.Errorf("duplicate timestamp %s", b.Time.Format(time.RFC3339)))
		}
		seen[key] = struct{}{}
	}
	return nil
}

// NativeResolution reports the bar width of a sorted series. The Interval code of
// the first bar wins; otherwise the smallest gap between consecutive bars is used.
func NativeResolution(sorted []core.Bar) (time.Duration, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	if code := sorted[0].Interval; code != "" {
		if tf, err := core.ParseTimeframe(code); err == nil {
			return tf.Duration(), true
		}
	}
	var best time.Duration
	for i := 1; i < len(sorted); i++ {
		gap := sorted[i].Time.Sub(sorted[i-1].Time)
		if gap > 0 && (best == 0 || gap < best) {
			best = gap
		}
	}
	return best, best > 0
}
