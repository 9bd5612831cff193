// Package report turns backtest results into archived JSON reports, summary
// tables and CSV exports.
package report

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/newthinker/quantlab/internal/backtest"
)

// Root is the archive prefix every report is stored under.
const Root = "reports"

// Report is the archived outcome of one backtest.
type Report struct {
	ID          string                 `json:"id"`
	Symbol      string                 `json:"symbol"`
	Timeframe   string                 `json:"timeframe"`
	Strategy    string                 `json:"strategy"`
	Params      map[string]any         `json:"params"`
	Start       time.Time              `json:"start"`
	End         time.Time              `json:"end"`
	Bars        int                    `json:"bars"`
	Fee         float64                `json:"fee"`
	Slippage    float64                `json:"slippage"`
	InitialCash float64                `json:"initial_cash"`
	FinalEquity float64                `json:"final_equity"`
	Metrics     backtest.Metrics       `json:"metrics"`
	Trades      []backtest.Trade       `json:"trades"`
	Open        *backtest.OpenPosition `json:"open_position,omitempty"`
	GeneratedAt time.Time              `json:"generated_at"`
}

// FromResult builds a report with a fresh ID.
func FromResult(r *backtest.Result, now time.Time) *Report {
	rep := &Report{
		ID:          uuid.NewString(),
		Symbol:      r.Symbol,
		Timeframe:   r.Timeframe,
		Strategy:    r.Strategy,
		Params:      r.Params,
		Start:       r.StartDate,
		End:         r.EndDate,
		Bars:        r.Bars,
		Fee:         r.Config.Fee,
		Slippage:    r.Config.Slippage,
		InitialCash: r.Config.InitialCash,
		Metrics:     r.Metrics,
		GeneratedAt: now.UTC(),
	}
	if sim := r.Simulation; sim != nil {
		rep.Trades = sim.Trades
		rep.Open = sim.Open
		rep.FinalEquity = sim.FinalEquity()
	}
	if rep.Trades == nil {
		rep.Trades = []backtest.Trade{}
	}
	return rep
}

// Path is where the report lives in the archive:
// reports/<symbol>/<timeframe>/<strategy>/<id>.json
func (r *Report) Path() string {
	return path.Join(Root, strings.ToUpper(r.Symbol), r.Timeframe, r.Strategy, r.ID+".json")
}

// Label identifies the run in tables, e.g. "BTCUSDT 15m sma".
func (r *Report) Label() string {
	return fmt.Sprintf("%s %s %s", r.Symbol, r.Timeframe, r.Strategy)
}
