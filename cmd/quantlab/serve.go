package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/newthinker/quantlab/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the backtest API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withApp(func(a *app.App) error {
			cfg := a.Config()
			a.Logger().Sugar().Infof("starting quantlab API on %s:%d", cfg.Server.Host, cfg.Server.Port)
			if err := a.Serve(ctx); err != nil {
				return err
			}
			a.Logger().Info("server stopped")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
