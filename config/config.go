package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	viper "github.com/spf13/viper"
)

// DefaultConfigPath is where the service looks for its config file when no
// --config flag is given.
const DefaultConfigPath = "llmeter.yaml"

// Config is the full service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Gateway   GatewayConfig   `yaml:"gateway" mapstructure:"gateway"`
	Storage   StorageConfig   `yaml:"storage" mapstructure:"storage"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Simulator SimulatorConfig `yaml:"simulator" mapstructure:"simulator"`
	Demo      DemoConfig      `yaml:"demo" mapstructure:"demo"`
	Ingest    IngestConfig    `yaml:"ingest" mapstructure:"ingest"`
	Logging   LoggingConfig   `yaml:"logging" mapstructure:"logging"`
}

// ServerConfig contains HTTP listener settings
type ServerConfig struct {
	Host         string     `yaml:"host" mapstructure:"host"`
	Port         int        `yaml:"port" mapstructure:"port"`
	ReadTimeout  int        `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout int        `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout  int        `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	CORS         CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// CORSConfig contains cross-origin settings for the API server
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" mapstructure:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" mapstructure:"allowed_headers"`
}

// GatewayConfig contains upstream provider settings. The API key is a
// placeholder: the simulator never calls a real provider.
type GatewayConfig struct {
	URL     string `yaml:"url" mapstructure:"url"`
	APIKey  string `yaml:"api_key" mapstructure:"api_key"`
	Timeout int    `yaml:"timeout" mapstructure:"timeout"`
}

// StorageConfig contains configuration for outcome storage backends
type StorageConfig struct {
	// Type specifies the storage backend type (postgres, sqlite, memory)
	Type     string         `yaml:"type" mapstructure:"type"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite" mapstructure:"sqlite"`
}

// PostgresConfig contains Postgres-specific configuration
type PostgresConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Database string `yaml:"database" mapstructure:"database"`
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	SSLMode  string `yaml:"ssl_mode" mapstructure:"ssl_mode"`

	MaxOpenConns    int `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime int `yaml:"conn_max_idle_time" mapstructure:"conn_max_idle_time"`
}

// SQLiteConfig contains SQLite-specific configuration
type SQLiteConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// SimulatorConfig contains settings for the completion simulator
type SimulatorConfig struct {
	DefaultModel string `yaml:"default_model" mapstructure:"default_model"`
}

// DemoConfig contains settings for the demo batch generator
type DemoConfig struct {
	ErrorRate float64 `yaml:"error_rate" mapstructure:"error_rate"`
	PauseMs   int     `yaml:"pause_ms" mapstructure:"pause_ms"`
	MaxCount  int     `yaml:"max_count" mapstructure:"max_count"`
}

// IngestConfig contains settings for the broker event consumer
type IngestConfig struct {
	Enabled  bool        `yaml:"enabled" mapstructure:"enabled"`
	Stream   string      `yaml:"stream" mapstructure:"stream"`
	Group    string      `yaml:"group" mapstructure:"group"`
	Consumer string      `yaml:"consumer" mapstructure:"consumer"`
	Redis    RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig contains broker connection settings
type RedisConfig struct {
	Host     string `yaml:"host" mapstructure:"host"`
	Port     int    `yaml:"port" mapstructure:"port"`
	Password string `yaml:"password" mapstructure:"password"`
	Database int    `yaml:"database" mapstructure:"database"`
}

// LoggingConfig contains log verbosity settings
type LoggingConfig struct {
	Level string `yaml:"level" mapstructure:"level"`
}

// DefaultConfig returns a configuration suitable for local/demo operation
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			ReadTimeout:  30,
			WriteTimeout: 30,
			IdleTimeout:  120,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Gateway: GatewayConfig{
			URL:     "",
			APIKey:  "",
			Timeout: 30,
		},
		Storage: StorageConfig{
			Type: "postgres",
			Postgres: PostgresConfig{
				Host:            "localhost",
				Port:            5432,
				Database:        "llm_metrics",
				Username:        "llmeter",
				Password:        "llmeter",
				SSLMode:         "disable",
				MaxOpenConns:    10,
				MaxIdleConns:    5,
				ConnMaxLifetime: 1800,
				ConnMaxIdleTime: 300,
			},
			SQLite: SQLiteConfig{
				Path: ".llmeter/metrics.db",
			},
		},
		Pricing:   DefaultPricingConfig(),
		Simulator: SimulatorConfig{DefaultModel: "gpt-3.5-turbo"},
		Demo: DemoConfig{
			ErrorRate: 0.1,
			PauseMs:   100,
			MaxCount:  1000,
		},
		Ingest: IngestConfig{
			Enabled:  false,
			Stream:   "events",
			Group:    "llmeter",
			Consumer: "llmeter-1",
			Redis: RedisConfig{
				Host:     "localhost",
				Port:     6379,
				Password: "",
				Database: 0,
			},
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Load reads configuration from the given path, layered over defaults, with
// LLMETER_* environment variables taking precedence. A missing config file
// is not an error; defaults apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LLMETER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		configPath = defaultConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

func defaultConfigPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return DefaultConfigPath
	}
	return filepath.Join(wd, DefaultConfigPath)
}
