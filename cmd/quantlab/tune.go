package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
	"github.com/newthinker/quantlab/internal/sweep"
)

var tuneWindow windowFlags

var tuneCmd = &cobra.Command{
	Use:   "tune [strategy...]",
	Short: "Grid-search strategy parameters",
	Long: `Sweep each strategy's parameter grid over the stored bars, pick the
combination with the highest total return and record it in the best-params
store. Grids come from the tuning.grids config section or the built-in
defaults.`,
	RunE: runTune,
}

func init() {
	tuneWindow.register(tuneCmd)
	rootCmd.AddCommand(tuneCmd)
}

func runTune(cmd *cobra.Command, args []string) error {
	w, err := tuneWindow.window()
	if err != nil {
		return err
	}
	return withApp(func(a *app.App) error {
		outcomes, err := a.Tune(cmd.Context(), app.TuneOptions{Window: w, Strategies: args})
		if err != nil {
			return err
		}
		renderOutcomes(cmd, outcomes)
		return nil
	})
}

func renderOutcomes(cmd *cobra.Command, outcomes []*sweep.Outcome) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Key", "Best Params", "Total Return", "Evaluated", "Skipped", "Stored"})
	for _, o := range outcomes {
		table.Append([]string{
			o.Key.String(),
			formatParams(o.Best),
			fmt.Sprintf("%.2f%%", o.Performance*100),
			strconv.Itoa(o.Evaluated),
			strconv.Itoa(o.Skipped),
			strconv.FormatBool(o.Stored),
		})
	}
	table.Render()
}

func formatParams(p map[string]any) string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return strings.Join(parts, ", ")
}
