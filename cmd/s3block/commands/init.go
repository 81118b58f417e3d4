package commands

import (
	"fmt"
	"os"

	"github.com/marmos91/s3block/internal/cli/prompt"
	"github.com/marmos91/s3block/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a sample configuration file",
	Long: `Initialize a sample s3block configuration file.

By default, the configuration file is created at $XDG_CONFIG_HOME/s3block/config.yaml.
Use --config to specify a custom path.

Examples:
  # Initialize with default location
  s3block init

  # Initialize with custom path
  s3block init --config /etc/s3block/config.yaml

  # Force overwrite existing config
  s3block init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Force overwrite existing config file")
}

func runInit(cmd *cobra.Command, args []string) error {
	configFile := GetConfigFile()

	configPath := configFile
	if configPath == "" {
		configPath = config.GetDefaultConfigPath()
	}

	force := initForce
	if !force {
		if _, err := os.Stat(configPath); err == nil {
			confirmed, err := prompt.ConfirmWithForce(
				fmt.Sprintf("%s already exists, overwrite?", configPath), false)
			if err != nil {
				if prompt.IsAborted(err) {
					fmt.Println("Aborted.")
					return nil
				}
				return err
			}
			if !confirmed {
				fmt.Println("Aborted.")
				return nil
			}
			force = true
		}
	}

	var err error
	if configFile != "" {
		err = config.InitConfigToPath(configFile, force)
	} else {
		configPath, err = config.InitConfig(force)
	}

	if err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Configuration file created at: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Set httpio.bucket (and credentials) and blockcache.num_blocks")
	fmt.Println("  2. Start the server with: s3block serve")
	fmt.Printf("  3. Or specify custom config: s3block serve --config %s\n", configPath)

	return nil
}
