package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all runtime settings, loaded from PUNCHCLOCK_* environment
// variables.
type Config struct {
	Addr           string        `env:"PUNCHCLOCK_ADDR" envDefault:":8080"`
	GRPCHealthAddr string        `env:"PUNCHCLOCK_GRPC_ADDR"` // empty disables the gRPC health listener
	PGDSN          string        `env:"PUNCHCLOCK_PG_DSN"`    // empty runs on the in-memory stores
	Timezone       string        `env:"PUNCHCLOCK_TZ" envDefault:"UTC"`
	TokenTTL       time.Duration `env:"PUNCHCLOCK_TOKEN_TTL" envDefault:"12h"`
	RateBurst      int           `env:"PUNCHCLOCK_RATE_BURST" envDefault:"20"`
	RatePerSec     int           `env:"PUNCHCLOCK_RATE_PER_SEC" envDefault:"10"`
}

// Load parses and validates the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail at first use.
func (c Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("PUNCHCLOCK_TZ: %w", err)
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("PUNCHCLOCK_TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	if c.RateBurst <= 0 || c.RatePerSec <= 0 {
		return fmt.Errorf("rate limit settings must be positive")
	}
	return nil
}

// Location resolves the configured group timezone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
