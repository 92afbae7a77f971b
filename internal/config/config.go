// Package config reads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"
)

// ErrMissingDatabaseURL is returned when DATABASE_URL is required but unset.
var ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")

// Config holds the server and migration settings.
type Config struct {
	DatabaseURL     string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestTimeout  time.Duration
	SlowRequest     time.Duration
	RuleCacheTTL    time.Duration
	CELCostLimit    uint64
}

// Default returns the settings used when no variable is set.
func Default() *Config {
	return &Config{
		Port:            "8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestTimeout:  60 * time.Second,
		SlowRequest:     500 * time.Millisecond,
		CELCostLimit:    1000000,
	}
}

// Load reads the environment on top of Default.
func Load() (*Config, error) {
	return load(os.Getenv)
}

// LoadDatabase is Load for commands that cannot run without a database.
func LoadDatabase() (*Config, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func load(getenv func(string) string) (*Config, error) {
	cfg := Default()
	cfg.DatabaseURL = getenv("DATABASE_URL")
	if port := getenv("PORT"); port != "" {
		cfg.Port = port
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"READ_TIMEOUT", &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"SLOW_REQUEST_THRESHOLD", &cfg.SlowRequest},
		{"RULE_CACHE_TTL", &cfg.RuleCacheTTL},
	}
	for _, d := range durations {
		v := getenv(d.name)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", d.name, v, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("invalid %s %q: must not be negative", d.name, v)
		}
		*d.dst = parsed
	}

	if v := getenv("CEL_COST_LIMIT"); v != "" {
		limit, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid CEL_COST_LIMIT %q: %w", v, err)
		}
		cfg.CELCostLimit = limit
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
