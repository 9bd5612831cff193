package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/quantlab/internal/backtest"
	"github.com/newthinker/quantlab/internal/core"
	"github.com/newthinker/quantlab/internal/storage/archive"
	"github.com/newthinker/quantlab/internal/strategy"
	"github.com/newthinker/quantlab/internal/sweep"
)

// DateLayout is the format of data.start and data.end.
const DateLayout = "2006-01-02"

type Config struct {
	Data        DataConfig                `mapstructure:"data" yaml:"data"`
	Backtest    BacktestConfig            `mapstructure:"backtest" yaml:"backtest"`
	Strategies  map[string]StrategyConfig `mapstructure:"strategies" yaml:"strategies"`
	Tuning      TuningConfig              `mapstructure:"tuning" yaml:"tuning"`
	Archive     ArchiveConfig             `mapstructure:"archive" yaml:"archive"`
	ParamsStore ParamsStoreConfig         `mapstructure:"params_store" yaml:"params_store"`
	LLM         LLMConfig                 `mapstructure:"llm" yaml:"llm"`
	Meta        MetaConfig                `mapstructure:"meta" yaml:"meta"`
	Server      ServerConfig              `mapstructure:"server" yaml:"server"`
	Metrics     MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
}

// DataConfig locates market data and the default market to study.
type DataConfig struct {
	SQLitePath    string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	ParquetDir    string `mapstructure:"parquet_dir" yaml:"parquet_dir"`
	Symbol        string `mapstructure:"symbol" yaml:"symbol"`
	BaseTimeframe string `mapstructure:"base_timeframe" yaml:"base_timeframe"`
	Timeframe     string `mapstructure:"timeframe" yaml:"timeframe"`
	Start         string `mapstructure:"start" yaml:"start"` // YYYY-MM-DD, empty for open
	End           string `mapstructure:"end" yaml:"end"`
	BinanceURL    string `mapstructure:"binance_url" yaml:"binance_url"`
}

// Range parses Start and End. Empty values give zero times.
func (d DataConfig) Range() (start, end time.Time, err error) {
	if d.Start != "" {
		if start, err = time.Parse(DateLayout, d.Start); err != nil {
			return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.start: %w", err))
		}
	}
	if d.End != "" {
		if end, err = time.Parse(DateLayout, d.End); err != nil {
			return time.Time{}, time.Time{}, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("data.end: %w", err))
		}
	}
	return start, end, nil
}

type BacktestConfig struct {
	Fee         float64 `mapstructure:"fee" yaml:"fee"`
	Slippage    float64 `mapstructure:"slippage" yaml:"slippage"`
	InitialCash float64 `mapstructure:"initial_cash" yaml:"initial_cash"`
	BarsPerYear float64 `mapstructure:"bars_per_year" yaml:"bars_per_year"` // 0 derives from the timeframe
}

// Engine returns the engine settings.
func (b BacktestConfig) Engine() backtest.Config {
	return backtest.Config{Fee: b.Fee, Slippage: b.Slippage, InitialCash: b.InitialCash}
}

type StrategyConfig struct {
	Params map[string]any `mapstructure:"params" yaml:"params"`
}

// Overrides returns configured params keyed by strategy kind.
func (c *Config) Overrides() map[string]map[string]any {
	out := make(map[string]map[string]any, len(c.Strategies))
	for name, sc := range c.Strategies {
		out[strings.ToLower(name)] = sc.Params
	}
	return out
}

type TuningConfig struct {
	Workers int                   `mapstructure:"workers" yaml:"workers"` // 0 uses GOMAXPROCS
	Fee     float64               `mapstructure:"fee" yaml:"fee"`
	Grids   map[string]sweep.Grid `mapstructure:"grids" yaml:"grids,omitempty"`
}

type ArchiveConfig struct {
	Type string   `mapstructure:"type" yaml:"type"` // "localfs" or "s3"
	Path string   `mapstructure:"path" yaml:"path"` // For localfs
	S3   S3Config `mapstructure:"s3" yaml:"s3"`     // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	Region    string `mapstructure:"region" yaml:"region"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
}

// Options converts the section into archive options.
func (a ArchiveConfig) Options() archive.Options {
	return archive.Options{
		Type: a.Type,
		Path: a.Path,
		S3: archive.S3Config{
			Bucket:    a.S3.Bucket,
			Endpoint:  a.S3.Endpoint,
			Region:    a.S3.Region,
			AccessKey: a.S3.AccessKey,
			SecretKey: a.S3.SecretKey,
			Prefix:    a.S3.Prefix,
		},
	}
}

type ParamsStoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"` // Document path inside the archive
}

type LLMConfig struct {
	Provider string       `mapstructure:"provider" yaml:"provider"`
	Claude   ClaudeConfig `mapstructure:"claude" yaml:"claude"`
	OpenAI   OpenAIConfig `mapstructure:"openai" yaml:"openai"`
}

type ClaudeConfig struct {
	APIKey string `mapstructure:"api_key" yaml:"api_key"`
	Model  string `mapstructure:"model" yaml:"model"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
}

// MetaConfig holds the LLM advisor settings.
type MetaConfig struct {
	ContextHours int  `mapstructure:"context_hours" yaml:"context_hours"`
	ShowPrompt   bool `mapstructure:"show_prompt" yaml:"show_prompt"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	APIKey      string `mapstructure:"api_key" yaml:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours" yaml:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs" yaml:"max_jobs"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	engine := backtest.DefaultConfig()
	return &Config{
		Data: DataConfig{
			SQLitePath:    "data/local_data.db",
			ParquetDir:    "data/parquet",
			Symbol:        "BTCUSDT",
			BaseTimeframe: "1m",
			Timeframe:     "15m",
			BinanceURL:    "https://api.binance.com",
		},
		Backtest: BacktestConfig{
			Fee:         engine.Fee,
			Slippage:    engine.Slippage,
			InitialCash: engine.InitialCash,
		},
		Tuning: TuningConfig{
			Fee: 0.001,
		},
		Archive: ArchiveConfig{
			Type: "localfs",
			Path: "data/archive",
		},
		ParamsStore: ParamsStoreConfig{
			Path: "best_params.json",
		},
		LLM: LLMConfig{
			Claude: ClaudeConfig{Model: "claude-sonnet-4-20250514"},
			OpenAI: OpenAIConfig{Model: "gpt-4o-mini"},
		},
		Meta: MetaConfig{
			ContextHours: 4,
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("port must be between 1 and 65535, got %d", c.Server.Port))
	}

	// Data validation
	for name, tf := range map[string]string{
		"data.base_timeframe": c.Data.BaseTimeframe,
		"data.timeframe":      c.Data.Timeframe,
	} {
		if _, err := core.ParseTimeframe(tf); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("%s: %w", name, err))
		}
	}
	start, end, err := c.Data.Range()
	if err != nil {
		return err
	}
	if !start.IsZero() && !end.IsZero() && !start.Before(end) {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("data.start %s must be before data.end %s", c.Data.Start, c.Data.End))
	}

	// Backtest validation
	b := c.Backtest
	if b.Fee < 0 || b.Slippage < 0 || b.Fee+b.Slippage >= 1 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("fee and slippage must be non-negative and sum below 1, got %g and %g", b.Fee, b.Slippage))
	}
	if b.InitialCash <= 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("initial_cash must be positive, got %g", b.InitialCash))
	}
	if b.BarsPerYear < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("bars_per_year cannot be negative, got %g", b.BarsPerYear))
	}

	// Strategy names must be known
	for name := range c.Strategies {
		if _, err := strategy.ParseKind(name); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("strategies.%s: %w", name, err))
		}
	}
	for name := range c.Tuning.Grids {
		if _, err := strategy.ParseKind(name); err != nil {
			return core.WrapError(core.ErrConfigInvalid, fmt.Errorf("tuning.grids.%s: %w", name, err))
		}
	}
	if c.Tuning.Workers < 0 {
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("tuning.workers cannot be negative, got %d", c.Tuning.Workers))
	}

	// Archive validation
	switch c.Archive.Type {
	case "", "localfs":
	case "s3":
		if c.Archive.S3.Bucket == "" {
			return core.WrapError(core.ErrConfigMissing,
				fmt.Errorf("archive.s3.bucket required when type is s3"))
		}
	default:
		return core.WrapError(core.ErrConfigInvalid,
			fmt.Errorf("archive.type must be localfs or s3, got %q", c.Archive.Type))
	}

	// LLM validation - if provider set, check config exists
	if c.LLM.Provider != "" {
		switch c.LLM.Provider {
		case "claude":
			if c.LLM.Claude.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("claude api_key required when provider is claude"))
			}
		case "openai":
			if c.LLM.OpenAI.APIKey == "" {
				return core.WrapError(core.ErrConfigMissing,
					fmt.Errorf("openai api_key required when provider is openai"))
			}
		default:
			return core.WrapError(core.ErrConfigInvalid,
				fmt.Errorf("llm.provider must be claude or openai, got %q", c.LLM.Provider))
		}
	}

	return nil
}
