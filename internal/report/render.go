package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/newthinker/quantlab/internal/backtest"
)

// SortByReturn orders reports by total return, best first. Equal returns
// keep their input order.
func SortByReturn(reports []*Report) []*Report {
	out := make([]*Report, len(reports))
	copy(out, reports)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Metrics.TotalReturn > out[j].Metrics.TotalReturn
	})
	return out
}

// RenderSummary writes one row per report, sorted by total return.
func RenderSummary(w io.Writer, reports []*Report) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Symbol", "Timeframe", "Strategy", "Total Return", "Annualized", "Sharpe", "Max DD", "Win Rate", "Profit Factor", "Trades"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for _, r := range SortByReturn(reports) {
		m := r.Metrics
		table.Append([]string{
			r.Symbol,
			r.Timeframe,
			r.Strategy,
			percent(m.TotalReturn),
			percent(m.AnnualizedReturn),
			fmt.Sprintf("%.2f", m.Sharpe),
			percent(m.MaxDrawdown),
			percent(m.WinRate),
			profitFactor(m),
			strconv.Itoa(m.TradeCount),
		})
	}
	table.Render()
}

// RenderTrades writes a trade log table.
func RenderTrades(w io.Writer, trades []backtest.Trade) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Entry", "Exit", "Entry Price", "Exit Price", "Return", "Held"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)

	for i, t := range trades {
		table.Append([]string{
			strconv.Itoa(i + 1),
			t.EntryDate.UTC().Format("2006-01-02 15:04"),
			t.ExitDate.UTC().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.2f", t.EntryPrice),
			fmt.Sprintf("%.2f", t.ExitPrice),
			percent(t.Return),
			t.Holding().String(),
		})
	}
	table.Render()
}

func percent(v float64) string {
	return fmt.Sprintf("%.2f%%", v*100)
}

func profitFactor(m backtest.Metrics) string {
	if m.Mode != backtest.ModeTrades {
		return "-"
	}
	return fmt.Sprintf("%.2f", m.ProfitFactor)
}
