// Package cli implements the contentpipe command line.
package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ContentPipeline/internal/config"
)

// Version is overridden at build time with -ldflags.
var Version = "dev"

const envPrefix = "CONTENT_PIPELINE"

// NewRootCommand assembles the command tree. Each call uses its own viper
// instance so commands can be built repeatedly in tests.
func NewRootCommand() *cobra.Command {
	v := viper.New()

	root := &cobra.Command{
		Use:   "contentpipe",
		Short: "Content ingestion and publishing pipeline",
		Long: `contentpipe pulls candidate stories from configured feeds, selects a
bounded batch, enriches each item through research and drafting stages and
publishes the result, handing social distribution to a job queue.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (CONTENT_PIPELINE_*, OPENAI_API_KEY, ...)
  3. Config file (YAML, or TOML by extension)
  4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().String("config", "", "config file (default: $"+config.PathEnv+")")
	root.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = v.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	_ = v.BindPFlag("log-level", root.PersistentFlags().Lookup("log-level"))

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root.AddCommand(
		newRunCommand(v),
		newServeCommand(v),
		newHistoryCommand(v),
		newConfigCommand(v),
		newVersionCommand(),
	)
	return root
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// loadConfig resolves the configuration and applies flag overrides.
func loadConfig(v *viper.Viper) (config.Config, error) {
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return config.Config{}, err
	}
	if level := v.GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if v.IsSet("batch-size") && v.GetInt("batch-size") != 0 {
		cfg.Pipeline.BatchSize = v.GetInt("batch-size")
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "contentpipe %s\n", Version)
		},
	}
}
