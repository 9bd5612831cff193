package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
	"github.com/newthinker/quantlab/internal/strategy"
)

var (
	adviseWindow     windowFlags
	advisePosition   string
	adviseShowPrompt bool
)

var adviseCmd = &cobra.Command{
	Use:   "advise",
	Short: "Ask the LLM advisor for BUY, SELL or HOLD",
	Long: `Evaluate every strategy on the latest bar, decorate the signals with the
best-known parameters and backtest performance, and let the configured LLM
pick one action. The advisor is live-only and is never backtested.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := adviseWindow.window()
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			decision, err := a.Advise(cmd.Context(), app.AdviseOptions{Window: w, Position: advisePosition})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if adviseShowPrompt {
				fmt.Fprintf(out, "%s\n\n", decision.Prompt)
			}
			kinds := make([]strategy.Kind, 0, len(decision.Strategies))
			for k := range decision.Strategies {
				kinds = append(kinds, k)
			}
			sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
			for _, k := range kinds {
				fmt.Fprintf(out, "%-10s %s\n", k, decision.Strategies[k])
			}
			fmt.Fprintf(out, "decision   %s\n", decision.Action)
			return nil
		})
	},
}

func init() {
	adviseWindow.register(adviseCmd)
	adviseCmd.Flags().StringVar(&advisePosition, "position", "", "current holdings, e.g. 'BTC: 0.1, USDT: 500'")
	adviseCmd.Flags().BoolVar(&adviseShowPrompt, "show-prompt", false, "print the prompt sent to the model")
	rootCmd.AddCommand(adviseCmd)
}
