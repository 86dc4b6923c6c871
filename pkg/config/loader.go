package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables according to its `env` tags.
// Defaults come from `envDefault`; list values split on `envSeparator`.
//
//	type Config struct {
//	    HTTPPort     int           `env:"AUTH_HTTP_PORT" envDefault:"8001"`
//	    KafkaBrokers []string      `env:"KAFKA_BROKERS" envSeparator:","`
//	    AccessExpiry time.Duration `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
//	}
//
// Validation beyond parsing (ranges, secret strength) belongs to the
// caller's own Load.
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}
