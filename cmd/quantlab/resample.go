package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
)

var (
	resampleWindow windowFlags
	resampleOut    string
)

var resampleCmd = &cobra.Command{
	Use:   "resample",
	Short: "Resample stored bars into a Parquet file",
	RunE: func(cmd *cobra.Command, args []string) error {
		w, err := resampleWindow.window()
		if err != nil {
			return err
		}
		return withApp(func(a *app.App) error {
			path, n, err := a.Resample(cmd.Context(), app.ResampleOptions{Window: w, Out: resampleOut})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d bars to %s\n", n, path)
			return nil
		})
	},
}

func init() {
	resampleWindow.register(resampleCmd)
	resampleCmd.Flags().StringVar(&resampleOut, "out", "", "output Parquet path (default <parquet_dir>/<symbol>_<timeframe>.parquet)")
	rootCmd.AddCommand(resampleCmd)
}
