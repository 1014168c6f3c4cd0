// Package config loads the authcontextd service configuration from the
// environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Session backends.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
)

// Config controls the authcontextd service.
type Config struct {
	ListenAddr  string `env:"AUTHCONTEXT_LISTEN_ADDR"  envDefault:":8080"`
	GRPCAddr    string `env:"AUTHCONTEXT_GRPC_ADDR"`
	DatabaseDSN string `env:"AUTHCONTEXT_DATABASE_DSN" envDefault:"file:authcontext.db?cache=shared"`

	// SeedEmail and SeedPassword create a user at startup when both are set
	// and the email is not registered yet.
	SeedEmail    string `env:"AUTHCONTEXT_SEED_EMAIL"`
	SeedPassword string `env:"AUTHCONTEXT_SEED_PASSWORD"`

	SessionBackend string        `env:"AUTHCONTEXT_SESSION_BACKEND" envDefault:"memory"`
	SessionTTL     time.Duration `env:"AUTHCONTEXT_SESSION_TTL"     envDefault:"30m"`
	RedisAddr      string        `env:"AUTHCONTEXT_REDIS_ADDR"      envDefault:"localhost:6379"`
	RedisPassword  string        `env:"AUTHCONTEXT_REDIS_PASSWORD"`
	RedisDB        int           `env:"AUTHCONTEXT_REDIS_DB"        envDefault:"0"`

	CookieName   string `env:"AUTHCONTEXT_COOKIE_NAME"   envDefault:"AUTHSESSID"`
	CookieSecure bool   `env:"AUTHCONTEXT_COOKIE_SECURE" envDefault:"true"`

	BcryptCost int `env:"AUTHCONTEXT_BCRYPT_COST" envDefault:"12"`

	LogLevel  string `env:"AUTHCONTEXT_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"AUTHCONTEXT_LOG_FORMAT" envDefault:"json"`

	BearerSecret   string        `env:"AUTHCONTEXT_BEARER_SECRET"`
	BearerIssuer   string        `env:"AUTHCONTEXT_BEARER_ISSUER"   envDefault:"authcontextd"`
	BearerAudience string        `env:"AUTHCONTEXT_BEARER_AUDIENCE"`
	BearerTTL      time.Duration `env:"AUTHCONTEXT_BEARER_TTL"      envDefault:"15m"`
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports configuration values that cannot be served.
func (c Config) Validate() error {
	var errs []error
	switch c.SessionBackend {
	case SessionMemory, SessionRedis:
	default:
		errs = append(errs, fmt.Errorf("unknown session backend %q", c.SessionBackend))
	}
	if c.SessionTTL <= 0 {
		errs = append(errs, errors.New("session ttl must be positive"))
	}
	if c.CookieName == "" {
		errs = append(errs, errors.New("cookie name cannot be empty"))
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("bcrypt cost %d out of range [4, 31]", c.BcryptCost))
	}
	if c.BearerSecret != "" && len(c.BearerSecret) < 32 {
		errs = append(errs, errors.New("bearer secret must be at least 32 bytes"))
	}
	if (c.SeedEmail == "") != (c.SeedPassword == "") {
		errs = append(errs, errors.New("seed email and seed password must be set together"))
	}
	if c.GRPCAddr != "" && !c.BearerEnabled() {
		errs = append(errs, errors.New("grpc listener requires a bearer secret"))
	}
	if c.BearerTTL <= 0 {
		errs = append(errs, errors.New("bearer ttl must be positive"))
	}
	return errors.Join(errs...)
}

// BearerEnabled reports whether bearer tokens are issued and accepted.
func (c Config) BearerEnabled() bool {
	return c.BearerSecret != ""
}
