package storage

import (
	"fmt"

	config "github.com/llmeter/llmeter/config"
)

// NewStore creates a store instance based on the provided configuration
func NewStore(cfg config.StorageConfig) (OutcomeStore, error) {
	switch cfg.Type {
	case "postgres":
		return NewPostgresStore(cfg.Postgres)
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}
