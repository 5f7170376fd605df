// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go-simpler.org/env"

	"github.com/Tyrowin/roomrelay/internal/relay"
)

const (
	defaultPort           = "10000"
	defaultSendBufferSize = 256
	defaultShutdown       = 10 * time.Second
)

// RateLimitConfig defines per-connection inbound frame throttling. A zero
// Burst disables the limit.
type RateLimitConfig struct {
	Burst          int           `env:"RATE_LIMIT_BURST" default:"0"`
	RefillInterval time.Duration `env:"RATE_LIMIT_REFILL_INTERVAL" default:"1s"`
}

// Config holds the relay settings. Size and length limits default to zero,
// meaning unlimited.
type Config struct {
	Port              string        `env:"PORT" default:"10000"`
	AllowedOrigins    string        `env:"ALLOWED_ORIGINS" default:"http://localhost:10000"`
	MaxMessageSize    int64         `env:"MAX_MESSAGE_SIZE" default:"0"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL" default:"30s"`
	SendBufferSize    int           `env:"SEND_BUFFER_SIZE" default:"256"`
	MaxRoomNameLength int           `env:"MAX_ROOM_NAME_LENGTH" default:"0"`
	MaxUsernameLength int           `env:"MAX_USERNAME_LENGTH" default:"0"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT" default:"10s"`
	LogLevel          string        `env:"LOG_LEVEL" default:"info"`
	LogFormat         string        `env:"LOG_FORMAT" default:"text"`
	RateLimit         RateLimitConfig
}

// NewConfig creates a Config populated with default values for all settings.
func NewConfig() *Config {
	return &Config{
		Port:              defaultPort,
		AllowedOrigins:    "http://localhost:" + defaultPort,
		HeartbeatInterval: relay.DefaultHeartbeatInterval,
		SendBufferSize:    defaultSendBufferSize,
		ShutdownTimeout:   defaultShutdown,
		LogLevel:          "info",
		LogFormat:         "text",
		RateLimit: RateLimitConfig{
			RefillInterval: time.Second,
		},
	}
}

// Load reads the configuration from the environment, after merging a .env
// file when one is present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	sanitizeConfig(&cfg)
	return &cfg, nil
}

func sanitizeConfig(cfg *Config) {
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.MaxMessageSize < 0 {
		cfg.MaxMessageSize = 0
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = relay.DefaultHeartbeatInterval
	}
	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = defaultSendBufferSize
	}
	if cfg.MaxRoomNameLength < 0 {
		cfg.MaxRoomNameLength = 0
	}
	if cfg.MaxUsernameLength < 0 {
		cfg.MaxUsernameLength = 0
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdown
	}
	if cfg.RateLimit.Burst < 0 {
		cfg.RateLimit.Burst = 0
	}
	if cfg.RateLimit.RefillInterval <= 0 {
		cfg.RateLimit.RefillInterval = time.Second
	}
}

// Addr returns the listen address for the configured port.
func (c *Config) Addr() string {
	return ":" + c.Port
}

// Origins splits AllowedOrigins on commas.
func (c *Config) Origins() []string {
	return parseOrigins(c.AllowedOrigins)
}

// Limits returns the room and username length limits.
func (c *Config) Limits() relay.Limits {
	return relay.Limits{
		MaxRoomName: c.MaxRoomNameLength,
		MaxUsername: c.MaxUsernameLength,
	}
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
