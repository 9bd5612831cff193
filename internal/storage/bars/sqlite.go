package bars

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/newthinker/quantlab/internal/core"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Store = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS klines (
	timestamp INTEGER,
	symbol    TEXT,
	interval  TEXT,
	open      REAL,
	high      REAL,
	low       REAL,
	close     REAL,
	volume    REAL,
	PRIMARY KEY (timestamp, symbol, interval)
)`

const upsertKline = `
INSERT INTO klines (timestamp, symbol, interval, open, high, low, close, volume)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (timestamp, symbol, interval) DO UPDATE SET
	open = excluded.open,
	high = excluded.high,
	low = excluded.low,
	close = excluded.close,
	volume = excluded.volume`

const selectKlines = `
SELECT timestamp, open, high, low, close, volume
FROM klines
WHERE symbol = ? AND interval = ? AND timestamp >= ? AND timestamp <= ?
ORDER BY timestamp`

// SQLiteStore keeps klines in a SQLite database. Timestamps are Unix
// milliseconds of the bar time, symbols are stored upper-case.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and makes sure
// the klines table exists.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.Init(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Init creates the klines table if it does not exist.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return core.WrapError(core.ErrStorageFailed, fmt.Errorf("create klines: %w", err))
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveBars upserts bars in a single transaction.
func (s *SQLiteStore) SaveBars(ctx context.Context, bars []core.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertKline)
	if err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx,
			b.Time.UnixMilli(), strings.ToUpper(b.Symbol), b.Interval,
			b.Open, b.High, b.Low, b.Close, b.Volume,
		); err != nil {
			return core.WrapError(core.ErrStorageFailed, fmt.Errorf("upsert %s %s: %w", b.Symbol, b.Time, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

// LoadBars returns stored bars for symbol and interval within [start, end].
func (s *SQLiteStore) LoadBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]core.Bar, error) {
	from, to := int64(math.MinInt64), int64(math.MaxInt64)
	if !start.IsZero() {
		from = start.UnixMilli()
	}
	if !end.IsZero() {
		to = end.UnixMilli()
	}

	symbol = strings.ToUpper(symbol)
	rows, err := s.db.QueryContext(ctx, selectKlines, symbol, interval, from, to)
	if err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	defer rows.Close()

	var bars []core.Bar
	for rows.Next() {
		var ts int64
		b := core.Bar{Symbol: symbol, Interval: interval}
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, core.WrapError(core.ErrStorageFailed, err)
		}
		b.Time = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, core.WrapError(core.ErrStorageFailed, err)
	}
	return bars, nil
}

// FetchHistory serves stored bars to the backtester.
func (s *SQLiteStore) FetchHistory(ctx context.Context, symbol string, start, end time.Time, interval string) ([]core.Bar, error) {
	return s.LoadBars(ctx, symbol, interval, start, end)
}

// Latest returns the time of the newest stored bar; ok is false when the
// table holds nothing for symbol and interval.
func (s *SQLiteStore) Latest(ctx context.Context, symbol, interval string) (t time.Time, ok bool, err error) {
	var ts sql.NullInt64
	err = s.db.QueryRowContext(ctx,
		`SELECT MAX(timestamp) FROM klines WHERE symbol = ? AND interval = ?`,
		strings.ToUpper(symbol), interval,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, false, core.WrapError(core.ErrStorageFailed, err)
	}
	if !ts.Valid {
		return time.Time{}, false, nil
	}
	return time.UnixMilli(ts.Int64).UTC(), true, nil
}

// Count returns the number of stored bars for symbol and interval.
func (s *SQLiteStore) Count(ctx context.Context, symbol, interval string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM klines WHERE symbol = ? AND interval = ?`,
		strings.ToUpper(symbol), interval,
	).Scan(&n)
	if err != nil {
		return 0, core.WrapError(core.ErrStorageFailed, err)
	}
	return n, nil
}
