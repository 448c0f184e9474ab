package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/uwbsessiond/internal/config"
)

func validateConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Load and validate the configuration file without starting the daemon",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("validate-config: %w", err)
			}
			fmt.Printf("configuration valid: grpc=%s metrics=%s chips=%d\n",
				cfg.GRPC.Addr, cfg.Metrics.Addr, len(cfg.Chips))
			return nil
		},
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return config.DefaultConfig(), nil
}
