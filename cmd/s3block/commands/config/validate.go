package config

import (
	"fmt"

	"github.com/marmos91/s3block/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Load and validate an s3block configuration file without starting
the server.

Examples:
  # Validate the default configuration
  s3block config validate

  # Validate a specific file
  s3block config validate --config /etc/s3block/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")

	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("configuration is invalid: %w", err)
	}

	fmt.Println("Configuration is valid.")
	return nil
}
