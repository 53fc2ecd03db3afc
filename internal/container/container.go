package container

import (
	"context"
	"fmt"

	config "github.com/llmeter/llmeter/config"
	handlers "github.com/llmeter/llmeter/internal/handlers"
	ingest "github.com/llmeter/llmeter/internal/ingest"
	logger "github.com/llmeter/llmeter/internal/logger"
	metrics "github.com/llmeter/llmeter/internal/metrics"
	services "github.com/llmeter/llmeter/internal/services"
	simulator "github.com/llmeter/llmeter/internal/simulator"
	storage "github.com/llmeter/llmeter/internal/storage"
)

// ServiceContainer wires the service graph from configuration: storage,
// metrics registry, simulator, completion and demo services, live feed and
// the optional ingest consumer.
type ServiceContainer struct {
	cfg         *config.Config
	store       storage.OutcomeStore
	registry    *metrics.Registry
	completions *services.CompletionService
	demo        *services.DemoService
	feed        *handlers.OutcomeFeed
	consumer    *ingest.Consumer
}

// NewServiceContainer builds the full service graph. An unreachable store
// is an unrecoverable startup failure; a broker connection failure only
// disables the ingest path.
func NewServiceContainer(cfg *config.Config) (*ServiceContainer, error) {
	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	registry := metrics.NewRegistry()
	sim := simulator.New()
	feed := handlers.NewOutcomeFeed()

	completions := services.NewCompletionService(sim, registry, store, cfg.Pricing, cfg.Simulator.DefaultModel)
	completions.SetPublisher(feed)

	demo := services.NewDemoService(completions, cfg.Demo)

	var consumer *ingest.Consumer
	if cfg.Ingest.Enabled {
		consumer, err = ingest.NewConsumer(cfg.Ingest, store)
		if err != nil {
			logger.Warn("Ingest consumer unavailable, continuing without it", "error", err)
			consumer = nil
		}
	}

	return &ServiceContainer{
		cfg:         cfg,
		store:       store,
		registry:    registry,
		completions: completions,
		demo:        demo,
		feed:        feed,
		consumer:    consumer,
	}, nil
}

// GetStore returns the outcome store
func (c *ServiceContainer) GetStore() storage.OutcomeStore {
	return c.store
}

// GetRegistry returns the metrics registry
func (c *ServiceContainer) GetRegistry() *metrics.Registry {
	return c.registry
}

// GetCompletionService returns the completion orchestrator
func (c *ServiceContainer) GetCompletionService() *services.CompletionService {
	return c.completions
}

// GetDemoService returns the demo batch generator
func (c *ServiceContainer) GetDemoService() *services.DemoService {
	return c.demo
}

// GetOutcomeFeed returns the live websocket feed
func (c *ServiceContainer) GetOutcomeFeed() *handlers.OutcomeFeed {
	return c.feed
}

// GetIngestConsumer returns the broker consumer, nil when disabled
func (c *ServiceContainer) GetIngestConsumer() *ingest.Consumer {
	return c.consumer
}

// Shutdown releases held resources
func (c *ServiceContainer) Shutdown(ctx context.Context) error {
	if c.consumer != nil {
		if err := c.consumer.Close(); err != nil {
			logger.Warn("Failed to close ingest consumer", "error", err)
		}
	}

	if c.store != nil {
		if err := c.store.Close(); err != nil {
			return fmt.Errorf("failed to close storage: %w", err)
		}
	}

	return nil
}
