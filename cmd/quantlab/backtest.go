package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
	"github.com/newthinker/quantlab/internal/report"
)

var (
	backtestWindow  windowFlags
	backtestParams  string
	backtestArchive bool
	backtestTrades  bool
	backtestCSVDir  string
	backtestJSON    bool
	backtestEquity  bool
)

var backtestCmd = &cobra.Command{
	Use:   "backtest [strategy...]",
	Short: "Run backtests over stored bars",
	Long: `Run one or more strategies (sma, rsi, macd, bollinger, or all) against the
stored base bars resampled to the analysis timeframe, and show performance
statistics. Parameters come from --params, else the best-params store, else
the config file, else the strategy defaults.`,
	RunE: runBacktest,
}

func init() {
	backtestWindow.register(backtestCmd)
	backtestCmd.Flags().StringVar(&backtestParams, "params", "", `strategy params as JSON, e.g. '{"fast":5,"slow":20}'`)
	backtestCmd.Flags().BoolVar(&backtestArchive, "archive", false, "save reports to the archive")
	backtestCmd.Flags().BoolVar(&backtestTrades, "trades", false, "print the trade log of each run")
	backtestCmd.Flags().StringVar(&backtestCSVDir, "csv", "", "directory to write per-strategy trade CSV files into")
	backtestCmd.Flags().BoolVar(&backtestJSON, "json", false, "print reports as JSON")
	backtestCmd.Flags().BoolVar(&backtestEquity, "equity-only", false, "estimate win rate and trade count from the equity curve")

	rootCmd.AddCommand(backtestCmd)
}

func runBacktest(cmd *cobra.Command, args []string) error {
	w, err := backtestWindow.window()
	if err != nil {
		return err
	}
	var params map[string]any
	if backtestParams != "" {
		if err := json.Unmarshal([]byte(backtestParams), &params); err != nil {
			return fmt.Errorf("invalid --params: %w", err)
		}
	}

	return withApp(func(a *app.App) error {
		reports, err := a.Backtest(cmd.Context(), app.BacktestOptions{
			Window:     w,
			Strategies: args,
			Params:     params,
			Archive:    backtestArchive,
			EquityOnly: backtestEquity,
		})
		if err != nil {
			return err
		}

		if backtestCSVDir != "" {
			if err := writeTradeCSVs(backtestCSVDir, reports); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if backtestJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(reports)
		}

		report.RenderSummary(out, reports)
		if backtestTrades {
			for _, r := range reports {
				fmt.Fprintf(out, "\n%s (%d trades)\n", r.Label(), len(r.Trades))
				report.RenderTrades(out, r.Trades)
				if r.Open != nil {
					fmt.Fprintf(out, "open position since %s at %.2f, marked %.2f (%+.2f%%)\n",
						r.Open.EntryDate.Format("2006-01-02 15:04"), r.Open.EntryPrice, r.Open.MarkPrice, r.Open.Unrealized*100)
				}
			}
		}
		return nil
	})
}

func writeTradeCSVs(dir string, reports []*report.Report) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	for _, r := range reports {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_%s_trades.csv", r.Symbol, r.Timeframe, r.Strategy))
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		if err := report.WriteTradesCSV(f, r.Trades); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
	}
	return nil
}
