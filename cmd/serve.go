package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cobra "github.com/spf13/cobra"

	config "github.com/llmeter/llmeter/config"
	container "github.com/llmeter/llmeter/internal/container"
	handlers "github.com/llmeter/llmeter/internal/handlers"
	logger "github.com/llmeter/llmeter/internal/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the metrics API server",
	Long: `Start the HTTP API server that accepts completion requests, records
their derived metrics, and answers aggregate summary and cost queries.

The server provides:
  - Completion generation with simulated latency
  - Metrics summary and cost breakdown queries
  - Prometheus exposition for scraping
  - A websocket feed of live outcomes`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetInt("port")
		host, _ := cmd.Flags().GetString("host")

		if port != 0 {
			cfg.Server.Port = port
		}
		if host != "" {
			cfg.Server.Host = host
		}

		return startAPIServer(cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "API server port (default: 8000)")
	serveCmd.Flags().String("host", "", "API server host (default: 0.0.0.0)")
}

func startAPIServer(cfg *config.Config) error {
	services, err := container.NewServiceContainer(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	defer cleanupServices(services)

	if err := checkStorageHealth(services); err != nil {
		return fmt.Errorf("storage backend unavailable: %w", err)
	}

	ingestCtx, stopIngest := context.WithCancel(context.Background())
	defer stopIngest()
	if consumer := services.GetIngestConsumer(); consumer != nil {
		go consumer.Run(ingestCtx)
	}

	handler := setupHTTPHandlers(cfg, services)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting API server", "address", addr)
		serverErrors <- server.ListenAndServe()
	}()

	printServerInfo(addr, cfg)

	return waitForShutdown(server, serverErrors)
}

func cleanupServices(services *container.ServiceContainer) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := services.Shutdown(ctx); err != nil {
		logger.Warn("Service shutdown reported an error", "error", err)
	}
}

func checkStorageHealth(services *container.ServiceContainer) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return services.GetStore().Health(ctx)
}

func setupHTTPHandlers(cfg *config.Config, services *container.ServiceContainer) http.Handler {
	apiHandler := handlers.NewAPIHandler(
		services.GetCompletionService(),
		services.GetDemoService(),
		services.GetStore(),
	)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", apiHandler.HandleHealth)
	mux.HandleFunc("/v1/completions", apiHandler.HandleCompletions)
	mux.HandleFunc("/v1/metrics/summary", apiHandler.HandleMetricsSummary)
	mux.HandleFunc("/v1/metrics/costs", apiHandler.HandleMetricsCosts)
	mux.HandleFunc("/v1/demo/generate", apiHandler.HandleDemoGenerate)
	mux.HandleFunc("/ws", services.GetOutcomeFeed().HandleWebSocket)
	mux.Handle("/metrics", services.GetRegistry().Handler())

	handler := http.Handler(mux)
	if cfg.Server.CORS.Enabled {
		handler = enableCORS(handler, cfg.Server.CORS)
	}

	return handler
}

func printServerInfo(addr string, cfg *config.Config) {
	fmt.Printf("API server listening on http://%s\n", addr)
	fmt.Printf("   Storage: %s\n", cfg.Storage.Type)
	fmt.Printf("\nAvailable endpoints:\n")
	fmt.Printf("   GET  /health              - Health check\n")
	fmt.Printf("   POST /v1/completions      - Generate a completion\n")
	fmt.Printf("   GET  /v1/metrics/summary  - Aggregate metrics summary\n")
	fmt.Printf("   GET  /v1/metrics/costs    - Cost breakdown by time bucket\n")
	fmt.Printf("   POST /v1/demo/generate    - Run a demo traffic batch\n")
	fmt.Printf("   GET  /metrics             - Prometheus exposition\n")
	fmt.Printf("   WS   /ws                  - Live outcome feed\n\n")
}

func waitForShutdown(server *http.Server, serverErrors chan error) error {
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("Shutting down API server", "signal", sig)
		fmt.Printf("\nShutting down gracefully...\n")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Warn("Failed to force close server", "error", closeErr)
			}
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// enableCORS wraps the handler with CORS middleware
func enableCORS(next http.Handler, corsConfig config.CORSConfig) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range corsConfig.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else if len(corsConfig.AllowedOrigins) > 0 {
				w.Header().Set("Access-Control-Allow-Origin", corsConfig.AllowedOrigins[0])
			}
			w.Header().Set("Access-Control-Allow-Methods", strings.Join(corsConfig.AllowedMethods, ", "))
			w.Header().Set("Access-Control-Allow-Headers", strings.Join(corsConfig.AllowedHeaders, ", "))
			w.Header().Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
