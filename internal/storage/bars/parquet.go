package bars

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/newthinker/quantlab/internal/core"
)

// BarRecord is the Parquet schema for bar files.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Interval  string  `parquet:"interval"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// WriteParquet writes bars to path, replacing any existing file.
func WriteParquet(path string, bars []core.Bar) error {
	records := make([]BarRecord, len(bars))
	for i, b := range bars {
		records[i] = BarRecord{
			Symbol:    b.Symbol,
			Interval:  b.Interval,
			Timestamp: b.Time.UnixMilli(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	if err := parquet.WriteFile(path, records); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("writing %s: %w", path, err))
	}
	return nil
}

// ReadParquet reads every bar in path, ordered by time.
func ReadParquet(path string) ([]core.Bar, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, core.WrapError(core.ErrNotFound, err)
		}
		return nil, core.WrapError(core.ErrStorageFailed, fmt.Errorf("reading %s: %w", path, err))
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].Timestamp < records[j].Timestamp
	})
	bars := make([]core.Bar, len(records))
	for i, r := range records {
		bars[i] = core.Bar{
			Symbol:   r.Symbol,
			Interval: r.Interval,
			Time:     time.UnixMilli(r.Timestamp).UTC(),
			Open:     r.Open,
			High:     r.High,
			Low:      r.Low,
			Close:    r.Close,
			Volume:   r.Volume,
		}
	}
	return bars, nil
}

// ParquetFile serves bars from a single Parquet file to the backtester.
type ParquetFile struct {
	Path string
}

// FetchHistory returns the file's bars matching symbol and interval within
// [start, end]. An empty interval matches any.
func (f ParquetFile) FetchHistory(_ context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	all, err := ReadParquet(f.Path)
	if err != nil {
		return nil, err
	}

	var out []core.Bar
	for _, b := range all {
		if !strings.EqualFold(b.Symbol, symbol) {
			continue
		}
		if interval != "" && b.Interval != interval {
			continue
		}
		if inRange(b.Time, start, end) {
			out = append(out, b)
		}
	}
	return out, nil
}
