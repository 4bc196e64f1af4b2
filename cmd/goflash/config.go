package main

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Config holds the defaults every command starts from
type Config struct {
	// Device endpoint
	Addr string `envconfig:"ADDR" default:"127.0.0.1:5554"`

	// Per transfer I/O timeout
	Timeout time.Duration `envconfig:"TIMEOUT" default:"3s"`

	// Data phase transfer unit in bytes, 0 picks the built-in default
	ChunkSize uint32 `envconfig:"CHUNK_SIZE" default:"0"`

	// Log level: trace, debug, info, warn, error
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig loads configuration from GOFLASH_* environment variables
func LoadConfig() (*Config, error) {
	var config Config
	if err := envconfig.Process("goflash", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Addr == "" {
		return fmt.Errorf("GOFLASH_ADDR is required")
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("GOFLASH_TIMEOUT must be positive")
	}
	if _, err := zerolog.ParseLevel(config.LogLevel); err != nil {
		return fmt.Errorf("GOFLASH_LOG_LEVEL: %w", err)
	}

	return nil
}
