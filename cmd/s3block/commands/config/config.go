// Package config implements configuration management subcommands.
package config

import (
	"github.com/spf13/cobra"
)

// Cmd is the config subcommand.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management",
	Long: `Manage s3block configuration files.

Use 's3block init' to create a new configuration file.

Subcommands:
  show      Display current configuration
  validate  Validate configuration file
  schema    Generate JSON schema for IDE/validation`,
}

func init() {
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(schemaCmd)
}
