package cmd

import (
	"fmt"

	cobra "github.com/spf13/cobra"
	yaml "gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the fully resolved configuration: built-in defaults layered with
the config file and LLMETER_* environment variables. Useful for checking what
the server will actually run with.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		redacted := *cfg
		if redacted.Gateway.APIKey != "" {
			redacted.Gateway.APIKey = "********"
		}
		if redacted.Storage.Postgres.Password != "" {
			redacted.Storage.Postgres.Password = "********"
		}
		if redacted.Ingest.Redis.Password != "" {
			redacted.Ingest.Redis.Password = "********"
		}

		out, err := yaml.Marshal(&redacted)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}

		fmt.Print(string(out))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}
