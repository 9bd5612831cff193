package report

import (
	"fmt"
	"io"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/newthinker/quantlab/internal/backtest"
)

// TradeRow is the CSV layout of the trade log.
type TradeRow struct {
	EntryDate  string  `csv:"entry_date"`
	ExitDate   string  `csv:"exit_date"`
	EntryPrice float64 `csv:"entry_price"`
	ExitPrice  float64 `csv:"exit_price"`
	Return     float64 `csv:"return"`
}

// SummaryRow is the CSV layout of the summary report.
type SummaryRow struct {
	Symbol           string  `csv:"symbol"`
	Timeframe        string  `csv:"timeframe"`
	Strategy         string  `csv:"strategy"`
	TotalReturn      float64 `csv:"total_return"`
	AnnualizedReturn float64 `csv:"annualized_return"`
	Sharpe           float64 `csv:"sharpe"`
	MaxDrawdown      float64 `csv:"max_dd"`
	WinRate          float64 `csv:"win_rate"`
	ProfitFactor     string  `csv:"profit_factor"` // Empty in equity-only mode
	Trades           int     `csv:"trades"`
}

// WriteTradesCSV writes the trade log with RFC 3339 dates.
func WriteTradesCSV(w io.Writer, trades []backtest.Trade) error {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = TradeRow{
			EntryDate:  t.EntryDate.UTC().Format(time.RFC3339),
			ExitDate:   t.ExitDate.UTC().Format(time.RFC3339),
			EntryPrice: t.EntryPrice,
			ExitPrice:  t.ExitPrice,
			Return:     t.Return,
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing trades csv: %w", err)
	}
	return nil
}

// WriteSummaryCSV writes one row per report, sorted by total return.
func WriteSummaryCSV(w io.Writer, reports []*Report) error {
	sorted := SortByReturn(reports)
	rows := make([]SummaryRow, len(sorted))
	for i, r := range sorted {
		m := r.Metrics
		rows[i] = SummaryRow{
			Symbol:           r.Symbol,
			Timeframe:        r.Timeframe,
			Strategy:         r.Strategy,
			TotalReturn:      m.TotalReturn,
			AnnualizedReturn: m.AnnualizedReturn,
			Sharpe:           m.Sharpe,
			MaxDrawdown:      m.MaxDrawdown,
			WinRate:          m.WinRate,
			Trades:           m.TradeCount,
		}
		if m.Mode == backtest.ModeTrades {
			rows[i].ProfitFactor = fmt.Sprintf("%g", m.ProfitFactor)
		}
	}
	if err := gocsv.Marshal(&rows, w); err != nil {
		return fmt.Errorf("writing summary csv: %w", err)
	}
	return nil
}
