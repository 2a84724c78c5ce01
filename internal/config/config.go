package config

import (
	"encoding/base64"
	"fmt"
	"log/slog"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/IsakPetersson/Orient/internal/vault"
)

// Config is built once at process start and passed by reference into the
// components that need it.
type Config struct {
	Port              string `env:"SERVER_PORT" envDefault:"8080"`
	DatabaseURL       string `env:"DATABASE_URL,required,notEmpty"`
	PlatformKeyBase64 string `env:"PLATFORM_ENCRYPTION_KEY_BASE64,required,notEmpty"`
	CallbackBaseURL   string `env:"SWISH_CALLBACK_BASE_URL,required,notEmpty"`
	Env               string `env:"ENVIRONMENT" envDefault:"development"`

	platformKey []byte
}

// Load reads an optional .env file, parses the environment and validates the
// platform encryption key.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file found, relying on process environment")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	key, err := base64.StdEncoding.DecodeString(cfg.PlatformKeyBase64)
	if err != nil {
		return nil, fmt.Errorf("config: PLATFORM_ENCRYPTION_KEY_BASE64 is not valid base64: %w", err)
	}
	if len(key) != vault.KeySize {
		return nil, fmt.Errorf("config: platform encryption key must be %d bytes, got %d", vault.KeySize, len(key))
	}
	cfg.platformKey = key

	return cfg, nil
}

// PlatformKey returns the decoded 32-byte encryption key.
func (c *Config) PlatformKey() []byte {
	return c.platformKey
}
