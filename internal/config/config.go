// Package config loads notify server settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Feed source kinds.
const (
	SourcePostgres = "postgres"
	SourceNATS     = "nats"
)

// Config holds every tunable of the notify server.
type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":6687"`

	// FeedSource selects the change feed transport: postgres | nats.
	FeedSource  string `envconfig:"FEED_SOURCE" default:"postgres"`
	DatabaseURL string `envconfig:"DATABASE_URL"`
	NATSURL     string `envconfig:"NATS_URL" default:"nats://localhost:4222"`

	// RedisAddr enables presence tracking and connect rate limiting when
	// set; empty disables both.
	RedisAddr  string `envconfig:"REDIS_ADDR"`
	ServerName string `envconfig:"SERVER_NAME"`

	JWTSecret string `envconfig:"JWT_SECRET" required:"true"`
	JWTIssuer string `envconfig:"JWT_ISSUER" default:"chat-api"`

	// EventBufferSize is the per-receiver buffer; a subscriber further
	// behind than this starts losing events and gets its stream closed.
	EventBufferSize int           `envconfig:"EVENT_BUFFER_SIZE" default:"256"`
	PingInterval    time.Duration `envconfig:"PING_INTERVAL" default:"30s"`

	MigrateOnStart bool   `envconfig:"MIGRATE_ON_START" default:"false"`
	MigrationsPath string `envconfig:"MIGRATIONS_PATH" default:"file://migrations"`
}

// Load reads the configuration from the environment. A .env file in the
// working directory is merged in first if present.
func Load() (Config, error) {
	if err := godotenv.Load(); err == nil {
		log.Printf("[config] loaded .env file")
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	if cfg.ServerName == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.ServerName = host
		} else {
			cfg.ServerName = "notify-1"
		}
	}

	return cfg, nil
}

func (c Config) validate() error {
	switch c.FeedSource {
	case SourcePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("config: FEED_SOURCE=postgres requires DATABASE_URL")
		}
	case SourceNATS:
		if c.NATSURL == "" {
			return fmt.Errorf("config: FEED_SOURCE=nats requires NATS_URL")
		}
	default:
		return fmt.Errorf("config: unknown FEED_SOURCE %q", c.FeedSource)
	}

	if c.MigrateOnStart && c.DatabaseURL == "" {
		return fmt.Errorf("config: MIGRATE_ON_START requires DATABASE_URL")
	}

	return nil
}
