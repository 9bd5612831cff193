package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Unit is the time unit of a timeframe code.
type Unit string

const (
	UnitMinute Unit = "m"
	UnitHour   Unit = "h"
	UnitDay    Unit = "d"
	UnitWeek   Unit = "w"
)

var unitDurations = map[Unit]time.Duration{
	UnitMinute: time.Minute,
	UnitHour:   time.Hour,
	UnitDay:    24 * time.Hour,
	UnitWeek:   7 * 24 * time.Hour,
}

var timeframePattern = regexp.MustCompile(`^(\d+)([mhdw])$`)

// minutesPerYear uses a 365-day calendar year; crypto venues trade around the clock.
const minutesPerYear = 365 * 24 * 60

// Timeframe is a bar width such as 5m or 1h, parsed into count and unit.
type Timeframe struct {
	Count int
	Unit  Unit
}

// ParseTimeframe parses a short code like "1m", "15m", "4h", "1d" or "1w".
func ParseTimeframe(code string) (Timeframe, error) {
	m := timeframePattern.FindStringSubmatch(strings.ToLower(strings.TrimSpace(code)))
	if m == nil {
		return Timeframe{}, WrapError(ErrInvalidTimeframe, fmt.Errorf("unrecognized code %q", code))
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return Timeframe{}, WrapError(ErrInvalidTimeframe, fmt.Errorf("count must be positive in %q", code))
	}
	unit := Unit(m[2])
	if int64(n) > math.MaxInt64/int64(unitDurations[unit]) {
		return Timeframe{}, WrapError(ErrInvalidTimeframe, fmt.Errorf("width of %q overflows", code))
	}
	return Timeframe{Count: n, Unit: unit}, nil
}

// MustParseTimeframe parses a code or panics. Intended for constants and tests.
func MustParseTimeframe(code string) Timeframe {
	tf, err := ParseTimeframe(code)
	if err != nil {
		panic(err)
	}
	return tf
}

// String returns the short code.
func (tf Timeframe) String() string {
	return fmt.Sprintf("%d%s", tf.Count, tf.Unit)
}

// IsZero reports whether the timeframe is unset.
func (tf Timeframe) IsZero() bool {
	return tf.Count == 0
}

// Duration returns the bar width.
func (tf Timeframe) Duration() time.Duration {
	return time.Duration(tf.Count) * unitDurations[tf.Unit]
}

// BarsPerYear returns the annualization factor for bars of this width.
func (tf Timeframe) BarsPerYear() float64 {
	minutes := tf.Duration().Minutes()
	if minutes <= 0 {
		return 0
	}
	return minutesPerYear / minutes
}

// TimeframeFromDuration maps a bar width back to the coarsest exact code.
func TimeframeFromDuration(d time.Duration) (Timeframe, bool) {
	if d <= 0 {
		return Timeframe{}, false
	}
	for _, u := range []Unit{UnitWeek, UnitDay, UnitHour, UnitMinute} {
		width := unitDurations[u]
		if d%width == 0 {
			return Timeframe{Count: int(d / width), Unit: u}, true
		}
	}
	return Timeframe{}, false
}
