package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
	"github.com/newthinker/quantlab/internal/report"
)

var (
	reportFilter report.Filter
	reportCSV    string
	reportSort   bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "List archived backtest reports",
	RunE: func(cmd *cobra.Command, args []string) error {
		f := reportFilter
		f.Symbol = strings.ToUpper(f.Symbol)
		return withApp(func(a *app.App) error {
			reports, err := a.ListReports(cmd.Context(), f)
			if err != nil {
				return err
			}
			if reportSort {
				reports = report.SortByReturn(reports)
			}

			if reportCSV != "" {
				file, err := os.Create(reportCSV)
				if err != nil {
					return err
				}
				defer file.Close()
				if err := report.WriteSummaryCSV(file, reports); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "wrote %d rows to %s\n", len(reports), reportCSV)
				return file.Close()
			}

			if len(reports) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no reports found")
				return nil
			}
			report.RenderSummary(cmd.OutOrStdout(), reports)
			return nil
		})
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportFilter.Symbol, "symbol", "", "only reports for this symbol")
	reportCmd.Flags().StringVar(&reportFilter.Timeframe, "timeframe", "", "only reports for this timeframe")
	reportCmd.Flags().StringVar(&reportFilter.Strategy, "strategy", "", "only reports for this strategy")
	reportCmd.Flags().StringVar(&reportCSV, "csv", "", "write the summary to a CSV file instead of printing it")
	reportCmd.Flags().BoolVar(&reportSort, "best", false, "order by total return, best first")
	rootCmd.AddCommand(reportCmd)
}
