package config

import (
	"fmt"
	"net"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all service configuration shared by the relay, scale and
// client binaries.
type Config struct {
	Relay     RelayConfig
	Scale     ScaleConfig
	Artifacts ArtifactConfig
	Network   NetworkConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Shutdown  ShutdownConfig
}

// RelayConfig holds the client-facing relay listener configuration.
type RelayConfig struct {
	Host string `envconfig:"RELAY_HOST" default:"0.0.0.0"`
	Port string `envconfig:"RELAY_PORT" default:"9000"`
}

// ScaleConfig holds the scale service listener and the address the relay
// dials to reach it.
type ScaleConfig struct {
	Host    string  `envconfig:"SCALE_HOST" default:"127.0.0.1"`
	Port    string  `envconfig:"SCALE_PORT" default:"8001"`
	Address string  `envconfig:"SCALE_ADDR" default:"127.0.0.1:8001"`
	Factor  float64 `envconfig:"SCALE_FACTOR" default:"0.5"`
}

// ArtifactConfig holds persistence and static serving configuration.
type ArtifactConfig struct {
	Dir     string `envconfig:"ARTIFACT_DIR" default:"./scaled_images"`
	Addr    string `envconfig:"ARTIFACT_ADDR" default:"127.0.0.1:8082"`
	BaseURL string `envconfig:"ARTIFACT_BASE_URL" default:"http://127.0.0.1:8082"`
}

// NetworkConfig holds timeouts and frame limits for both protocol legs.
type NetworkConfig struct {
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	IOTimeout    time.Duration `envconfig:"IO_TIMEOUT" default:"30s"`
	MaxFrameSize uint32        `envconfig:"MAX_FRAME_SIZE" default:"67108864"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds relay accept rate limiting configuration.
type RateLimitConfig struct {
	ConnectionsPerSecond int  `envconfig:"RATE_LIMIT_CPS" default:"100"`
	Burst                int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled              bool `envconfig:"RATE_LIMIT_ENABLED" default:"false"`
}

// ShutdownConfig bounds how long draining may take after an interrupt.
type ShutdownConfig struct {
	DrainTimeout time.Duration `envconfig:"DRAIN_TIMEOUT" default:"10s"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Relay: RelayConfig{
			Host: "0.0.0.0",
			Port: "9000",
		},
		Scale: ScaleConfig{
			Host:    "127.0.0.1",
			Port:    "8001",
			Address: "127.0.0.1:8001",
			Factor:  0.5,
		},
		Artifacts: ArtifactConfig{
			Dir:     "./scaled_images",
			Addr:    "127.0.0.1:8082",
			BaseURL: "http://127.0.0.1:8082",
		},
		Network: NetworkConfig{
			DialTimeout:  5 * time.Second,
			IOTimeout:    30 * time.Second,
			MaxFrameSize: 64 << 20,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			ConnectionsPerSecond: 100,
			Burst:                200,
			Enabled:              false,
		},
		Shutdown: ShutdownConfig{
			DrainTimeout: 10 * time.Second,
		},
	}
}

// RelayAddr returns the relay listen address.
func (c *Config) RelayAddr() string {
	return net.JoinHostPort(c.Relay.Host, c.Relay.Port)
}

// ScaleAddr returns the scale service listen address.
func (c *Config) ScaleAddr() string {
	return net.JoinHostPort(c.Scale.Host, c.Scale.Port)
}
