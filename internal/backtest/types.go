package backtest

import (
	"time"

	"github.com/newthinker/quantlab/internal/core"
)

// Config holds the cost model and starting capital for a simulation.
type Config struct {
	Fee         float64 `json:"fee"`      // Fraction charged on a round trip
	Slippage    float64 `json:"slippage"` // Fraction lost to fills
	InitialCash float64 `json:"initial_cash"`
}

// DefaultConfig mirrors the defaults used by the research tooling.
func DefaultConfig() Config {
	return Config{
		Fee:         0.001,
		Slippage:    0.0005,
		InitialCash: 10000,
	}
}

// Trade is a closed round trip from entry to exit
type Trade struct {
	EntryDate  time.Time `json:"entry_date"`
	ExitDate   time.Time `json:"exit_date"`
	EntryPrice float64   `json:"entry_price"`
	ExitPrice  float64   `json:"exit_price"`
	Return     float64   `json:"return"` // Fractional, after fee and slippage
}

// IsWin returns true if the trade was profitable
func (t Trade) IsWin() bool {
	return t.Return > 0
}

// Holding returns how long the position was open.
func (t Trade) Holding() time.Duration {
	return t.ExitDate.Sub(t.EntryDate)
}

// OpenPosition describes a position still held on the final bar.
// It never appears in the trade log.
type OpenPosition struct {
	EntryDate  time.Time `json:"entry_date"`
	EntryPrice float64   `json:"entry_price"`
	MarkPrice  float64   `json:"mark_price"`
	Unrealized float64   `json:"unrealized_return"` // Before costs
}

// Simulation is the raw output of one engine run
type Simulation struct {
	Times  []time.Time   `json:"times"`
	Equity []float64     `json:"equity"`
	Trades []Trade       `json:"trades"`
	Open   *OpenPosition `json:"open,omitempty"`
}

// EquitySeries returns the equity curve indexed by bar time.
func (s *Simulation) EquitySeries() core.Series {
	return core.Series{Times: s.Times, Values: s.Equity}
}

// FinalEquity returns the last marked equity value.
func (s *Simulation) FinalEquity() float64 {
	if len(s.Equity) == 0 {
		return 0
	}
	return s.Equity[len(s.Equity)-1]
}

// Result holds the complete backtest output
type Result struct {
	Strategy    string         `json:"strategy"`
	Params      map[string]any `json:"params,omitempty"`
	Symbol      string         `json:"symbol"`
	Timeframe   string         `json:"timeframe"`
	StartDate   time.Time      `json:"start_date"`
	EndDate     time.Time      `json:"end_date"`
	Bars        int            `json:"bars"`
	Config      Config         `json:"config"`
	BarsPerYear float64        `json:"bars_per_year"`
	Simulation  *Simulation    `json:"simulation"`
	Metrics     Metrics        `json:"metrics"`
}
