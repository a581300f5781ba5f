// Package config loads runtime configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration. A .env file, if present, is
// loaded into the environment before this is parsed.
type Config struct {
	Addr string `envconfig:"ADDR" default:":8080"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// PlatformAPIURL and PlatformWSURL point at the chat platform's REST and
	// event-stream endpoints.
	PlatformAPIURL string `envconfig:"PLATFORM_API_URL" required:"true"`
	PlatformWSURL  string `envconfig:"PLATFORM_WS_URL" required:"true"`
	PlatformToken  string `envconfig:"PLATFORM_TOKEN" required:"true"`

	SweepInterval time.Duration `envconfig:"SWEEP_INTERVAL" default:"60s"`

	RenameWindow time.Duration `envconfig:"RENAME_WINDOW" default:"10m"`
	RenameBurst  int           `envconfig:"RENAME_BURST" default:"3"`

	// TokenTTL of 0 means session tokens never expire.
	TokenTTL   time.Duration `envconfig:"TOKEN_TTL" default:"0"`
	PairingTTL time.Duration `envconfig:"PAIRING_TTL" default:"5m"`

	// Key paths are optional; without them a fresh key pair is generated at
	// startup and existing sessions are invalidated.
	PrivateKeyPath string `envconfig:"PRIVATE_KEY_PATH"`
	PublicKeyPath  string `envconfig:"PUBLIC_KEY_PATH"`

	// AdminToken guards the mapping provisioning endpoint. Empty disables it.
	AdminToken string `envconfig:"ADMIN_TOKEN"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// Load parses the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.RenameBurst < 1 {
		return nil, fmt.Errorf("RENAME_BURST must be at least 1")
	}
	return &cfg, nil
}
