package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/newthinker/quantlab/internal/app"
	"github.com/newthinker/quantlab/internal/config"
	"github.com/newthinker/quantlab/internal/logger"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "quantlab",
	Short: "quantlab - crypto strategy research and backtesting",
	Long: `quantlab resamples exchange klines, backtests long-only strategies,
sweeps their parameters and asks an LLM to arbitrate between them.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading .env: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&debug, "debug", "d", false, "enable debug mode")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the --config file, or the defaults when none is given.
func loadConfig(log *zap.Logger) (*config.Config, error) {
	var cfg *config.Config
	if cfgFile != "" {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
	} else {
		cfg = config.Defaults()
		log.Debug("no config file specified, using defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// withApp builds the application for one command and tears it down after.
func withApp(fn func(a *app.App) error) error {
	log := logger.Must(debug)
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	a := app.New(cfg, log)
	defer a.Close()
	return fn(a)
}

// parseDate parses an optional YYYY-MM-DD flag value.
func parseDate(flag, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(config.DateLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s date (expected YYYY-MM-DD): %w", flag, err)
	}
	return t, nil
}

// parseWindow reads the shared --symbol/--timeframe/--from/--to flags.
func parseWindow(symbol, timeframe, from, to string) (app.Window, error) {
	start, err := parseDate("from", from)
	if err != nil {
		return app.Window{}, err
	}
	end, err := parseDate("to", to)
	if err != nil {
		return app.Window{}, err
	}
	if !start.IsZero() && !end.IsZero() && !end.After(start) {
		return app.Window{}, fmt.Errorf("end date must be after start date")
	}
	return app.Window{Symbol: symbol, Timeframe: timeframe, Start: start, End: end}, nil
}

type windowFlags struct {
	symbol, timeframe, from, to string
}

func (w *windowFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&w.symbol, "symbol", "", "symbol, e.g. BTCUSDT (default from config)")
	cmd.Flags().StringVar(&w.timeframe, "timeframe", "", "analysis timeframe, e.g. 15m (default from config)")
	cmd.Flags().StringVar(&w.from, "from", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&w.to, "to", "", "end date YYYY-MM-DD")
}

func (w *windowFlags) window() (app.Window, error) {
	return parseWindow(w.symbol, w.timeframe, w.from, w.to)
}
