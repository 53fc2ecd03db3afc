package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/go-redis/redis/v8"

	config "github.com/llmeter/llmeter/config"
	domain "github.com/llmeter/llmeter/internal/domain"
	logger "github.com/llmeter/llmeter/internal/logger"
	storage "github.com/llmeter/llmeter/internal/storage"
)

// Consumer reads external events from a Redis stream and writes them to the
// ingest_events table. This path is infrastructure glue: it shares a
// database with the completion pipeline but never touches its rows.
type Consumer struct {
	client   *redis.Client
	store    storage.OutcomeStore
	stream   string
	group    string
	consumer string
}

// NewConsumer connects to the broker and ensures the consumer group exists.
func NewConsumer(cfg config.IngestConfig, store storage.OutcomeStore) (*Consumer, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.Database,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	err := client.XGroupCreateMkStream(ctx, cfg.Stream, cfg.Group, "$").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		_ = client.Close()
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return &Consumer{
		client:   client,
		store:    store,
		stream:   cfg.Stream,
		group:    cfg.Group,
		consumer: cfg.Consumer,
	}, nil
}

// Run consumes the stream until the context is canceled. Messages are acked
// only after the store write succeeds; failed writes stay pending for
// redelivery.
func (c *Consumer) Run(ctx context.Context) {
	logger.Info("Starting ingest consumer",
		"stream", c.stream, "group", c.group, "consumer", c.consumer)

	for {
		select {
		case <-ctx.Done():
			logger.Info("Ingest consumer stopping")
			return
		default:
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    10,
			Block:    5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Error("Failed to read from stream", "stream", c.stream, "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				c.handleMessage(ctx, msg)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	event := eventFromMessage(msg)

	if err := c.store.SaveEvent(ctx, event); err != nil {
		logger.Error("Failed to persist event", "id", event.ID, "error", err)
		return
	}

	if err := c.client.XAck(ctx, c.stream, c.group, msg.ID).Err(); err != nil {
		logger.Warn("Failed to ack message", "id", msg.ID, "error", err)
	}
}

// eventFromMessage maps stream fields onto an IngestEvent. Missing fields
// get neutral defaults; the stream message ID backs the row ID when the
// producer did not supply one.
func eventFromMessage(msg redis.XMessage) domain.IngestEvent {
	event := domain.IngestEvent{
		ID:        msg.ID,
		Source:    "unknown",
		EventType: "unknown",
		CreatedAt: time.Now().UTC(),
	}

	if id, ok := msg.Values["id"].(string); ok && id != "" {
		event.ID = id
	}
	if source, ok := msg.Values["source"].(string); ok && source != "" {
		event.Source = source
	}
	if eventType, ok := msg.Values["type"].(string); ok && eventType != "" {
		event.EventType = eventType
	}
	if payload, ok := msg.Values["payload"].(string); ok {
		event.Payload = payload
	}

	return event
}

// Close closes the broker connection.
func (c *Consumer) Close() error {
	return c.client.Close()
}
