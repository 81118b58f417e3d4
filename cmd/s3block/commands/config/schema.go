package config

import (
	"fmt"

	"github.com/marmos91/s3block/pkg/config"
	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Generate JSON schema for IDE/validation",
	Long: `Print the JSON Schema describing the s3block configuration file,
suitable for editor autocompletion and CI validation.

Examples:
  s3block config schema > s3block.schema.json`,
	RunE: runConfigSchema,
}

func runConfigSchema(cmd *cobra.Command, args []string) error {
	schema, err := config.GenerateSchema()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Println(string(schema))
	return nil
}
