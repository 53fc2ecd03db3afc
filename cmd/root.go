package cmd

import (
	"fmt"
	"os"

	cobra "github.com/spf13/cobra"

	config "github.com/llmeter/llmeter/config"
	logger "github.com/llmeter/llmeter/internal/logger"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "llmeter",
	Short: "Metrics ingestion and query API for LLM completion traffic",
	Long: `llmeter accepts generation requests, simulates timed completions,
computes derived performance metrics (tokens, cost, throughput), and records
them in a Prometheus registry and a relational store. It answers aggregate
summary and cost-breakdown queries over the persisted data.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("Use 'llmeter serve' to start the API server or --help to see available commands.")
	},
}

func Execute() {
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", fmt.Sprintf("config file (default is %s)", config.DefaultConfigPath))
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "verbose output")

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	verbose, _ := rootCmd.PersistentFlags().GetBool("verbose")
	configPath, _ := rootCmd.PersistentFlags().GetString("config")

	loaded, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	cfg = loaded

	logger.Init(verbose, cfg.Logging.Level)
}
