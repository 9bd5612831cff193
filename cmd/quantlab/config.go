package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/newthinker/quantlab/internal/config"
)

var configDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Defaults()
		if !configDefaults {
			var err error
			if cfg, err = loadConfig(zap.NewNop()); err != nil {
				return err
			}
		}
		redact(cfg)

		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(cfg)
	},
}

func init() {
	configCmd.Flags().BoolVar(&configDefaults, "defaults", false, "print the built-in defaults, ignoring --config")
	rootCmd.AddCommand(configCmd)
}

func redact(cfg *config.Config) {
	for _, s := range []*string{
		&cfg.LLM.Claude.APIKey,
		&cfg.LLM.OpenAI.APIKey,
		&cfg.Archive.S3.SecretKey,
		&cfg.Server.APIKey,
	} {
		if *s != "" {
			*s = "***"
		}
	}
}
