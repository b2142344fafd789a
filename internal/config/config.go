package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/utafrali/gomarketplace/internal/snapshot"
	pkgconfig "github.com/utafrali/gomarketplace/pkg/config"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort        int           `env:"CART_HTTP_PORT" envDefault:"8003"`
	ShutdownTimeout time.Duration `env:"CART_SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Cart storage
	StorageBackend string        `env:"CART_STORAGE_BACKEND" envDefault:"memory"`
	StorageLayout  string        `env:"CART_STORAGE_LAYOUT" envDefault:"single"`
	KeyPrefix      string        `env:"CART_KEY_PREFIX" envDefault:"@GoMarketplace"`
	PersistTimeout time.Duration `env:"CART_PERSIST_TIMEOUT" envDefault:"3s"`
	SessionID      string        `env:"CART_SESSION_ID" envDefault:"default"`
	BreakerEnabled bool          `env:"BREAKER_ENABLED" envDefault:"true"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Cart TTL in hours for redis keys (default: 7 days, 0 disables expiry)
	CartTTL int `env:"CART_TTL_HOURS" envDefault:"168"`

	// SQLite
	SQLitePath string `env:"SQLITE_PATH" envDefault:"gomarketplace-cart.db"`

	// PostgreSQL
	PostgresDSN string `env:"POSTGRES_DSN" envDefault:""`

	// Kafka; no brokers disables cart events
	KafkaBrokers   []string `env:"KAFKA_BROKERS" envSeparator:","`
	EventQueueSize int      `env:"EVENT_QUEUE_SIZE" envDefault:"64"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CartTTLDuration returns CartTTL as a duration.
func (c *Config) CartTTLDuration() time.Duration {
	return time.Duration(c.CartTTL) * time.Hour
}

// EventsEnabled reports whether cart events go to Kafka.
func (c *Config) EventsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func (c *Config) normalize() {
	c.StorageBackend = strings.ToLower(strings.TrimSpace(c.StorageBackend))
	c.StorageLayout = strings.ToLower(strings.TrimSpace(c.StorageLayout))

	brokers := c.KafkaBrokers[:0]
	for _, b := range c.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	c.KafkaBrokers = brokers
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.StorageBackend {
	case BackendMemory:
	case BackendRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required for the postgres backend")
		}
	default:
		return fmt.Errorf("invalid CART_STORAGE_BACKEND: %q", c.StorageBackend)
	}

	if c.StorageLayout != snapshot.LayoutSingle && c.StorageLayout != snapshot.LayoutPerItem {
		return fmt.Errorf("invalid CART_STORAGE_LAYOUT: %q", c.StorageLayout)
	}
	if c.KeyPrefix == "" {
		return fmt.Errorf("CART_KEY_PREFIX must not be empty")
	}
	if c.PersistTimeout < 0 {
		return fmt.Errorf("CART_PERSIST_TIMEOUT must not be negative")
	}
	if c.CartTTL < 0 {
		return fmt.Errorf("CART_TTL_HOURS must not be negative")
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("EVENT_QUEUE_SIZE must be positive")
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0 and 1, got %v", c.OTELSampleRate)
	}
	return nil
}
