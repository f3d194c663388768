package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"ContentPipeline/internal/config"
)

const masked = "****"

func newConfigCommand(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect contentpipe configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration with secrets masked",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			raw, err := yaml.Marshal(maskSecrets(cfg))
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(raw)
			return err
		},
	})
	return cmd
}

func maskSecrets(cfg config.Config) config.Config {
	for _, secret := range []*string{
		&cfg.LLM.APIKey,
		&cfg.Publisher.APIKey,
		&cfg.Search.APIKey,
		&cfg.Cover.APIKey,
		&cfg.Dedupe.APIKey,
		&cfg.Queue.Token,
		&cfg.Notifications.Telegram.BotToken,
	} {
		if *secret != "" {
			*secret = masked
		}
	}
	return cfg
}
