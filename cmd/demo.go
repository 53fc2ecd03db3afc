package cmd

import (
	"context"
	"fmt"
	"time"

	cobra "github.com/spf13/cobra"

	container "github.com/llmeter/llmeter/internal/container"
	domain "github.com/llmeter/llmeter/internal/domain"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run a batch of synthetic completion traffic",
	Long: `Run the demo batch generator directly against the configured storage
backend without starting the API server. Useful for seeding a dashboard with
realistic-looking data.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		count, _ := cmd.Flags().GetInt("count")
		includeErrors, _ := cmd.Flags().GetBool("include-errors")

		services, err := container.NewServiceContainer(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize services: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = services.Shutdown(ctx)
		}()

		fmt.Printf("Generating %d demo completions (errors: %v)...\n", count, includeErrors)

		outcomes := services.GetDemoService().Run(context.Background(), count, includeErrors)

		errorCount := 0
		var totalCost float64
		for _, outcome := range outcomes {
			if outcome.Status == domain.StatusError {
				errorCount++
				continue
			}
			totalCost += outcome.CostUSD
		}

		fmt.Printf("Done: %d completions, %d errors, total cost $%.4f\n",
			len(outcomes), errorCount, totalCost)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)

	demoCmd.Flags().Int("count", 25, "number of requests to generate")
	demoCmd.Flags().Bool("include-errors", false, "inject simulated failures at the configured rate")
}
