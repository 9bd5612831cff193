package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
)

var (
	fetchSymbol   string
	fetchInterval string
	fetchFrom     string
	fetchTo       string
	fetchResume   bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download Binance klines into the bar store",
	RunE: func(cmd *cobra.Command, args []string) error {
		start, err := parseDate("from", fetchFrom)
		if err != nil {
			return err
		}
		end, err := parseDate("to", fetchTo)
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			res, err := a.Fetch(cmd.Context(), app.FetchOptions{
				Symbol:   fetchSymbol,
				Interval: fetchInterval,
				Start:    start,
				End:      end,
				Resume:   fetchResume,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %d bars from %s to %s\n",
				res.Symbol, res.Fetched, res.From.Format("2006-01-02 15:04"), res.To.Format("2006-01-02 15:04"))
			return nil
		})
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchSymbol, "symbol", "", "symbol, e.g. BTCUSDT or btc (default from config)")
	fetchCmd.Flags().StringVar(&fetchInterval, "interval", "", "kline interval (default data.base_timeframe)")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "start date YYYY-MM-DD (default data.start)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "end date YYYY-MM-DD (default now)")
	fetchCmd.Flags().BoolVar(&fetchResume, "resume", true, "continue after the newest stored bar")
	rootCmd.AddCommand(fetchCmd)
}
