package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const defaultJWTSecret = "dev-secret-change-in-production"

// minProductionSecretLen is the shortest HS256 secret accepted in production.
const minProductionSecretLen = 32

type Config struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	Env             string        `envconfig:"ENV" default:"development"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`

	DatabaseDriver  string `envconfig:"DATABASE_DRIVER" default:"mysql"`
	DatabaseDSN     string `envconfig:"DATABASE_DSN" default:"root:password@tcp(127.0.0.1:3306)/gatekeep?parseTime=true"`
	DatabaseMigrate bool   `envconfig:"DATABASE_MIGRATE" default:"true"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	JWTSecret   string        `envconfig:"JWT_SECRET" default:"dev-secret-change-in-production"`
	JWTIssuer   string        `envconfig:"JWT_ISSUER" default:"gatekeep"`
	JWTAudience string        `envconfig:"JWT_AUDIENCE" default:"gatekeep-api"`
	SessionTTL  time.Duration `envconfig:"SESSION_TTL" default:"168h"`
	BcryptCost  int           `envconfig:"BCRYPT_COST" default:"10"`

	CookieName string `envconfig:"SESSION_COOKIE_NAME" default:"session"`
	// CookieSecure is resolved by Load from COOKIE_SECURE and Env.
	CookieSecure bool `ignored:"true"`
}

// Load reads the configuration from the environment and checks it.
func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}

	secure, err := resolveCookieSecure(os.Getenv("COOKIE_SECURE"), cfg.Env)
	if err != nil {
		return Config{}, err
	}
	cfg.CookieSecure = secure

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// IsProduction returns true when the service runs in production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// IsLocal returns true for environments that run on a developer machine.
func (c Config) IsLocal() bool {
	return isLocalEnv(c.Env)
}

// SlogLevel returns the configured log level, defaulting to info.
func (c Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func (c Config) validate() error {
	switch c.DatabaseDriver {
	case "mysql", "postgres", "memory":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.SessionTTL <= 0 {
		return errors.New("SESSION_TTL must be positive")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}

	if !c.IsLocal() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be set outside local development")
		}
		if !c.CookieSecure {
			return errors.New("COOKIE_SECURE cannot be false outside local development")
		}
	}
	if c.IsProduction() {
		if len(c.JWTSecret) < minProductionSecretLen {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLen)
		}
		if c.DatabaseDriver == "memory" {
			return errors.New("DATABASE_DRIVER=memory is not allowed in production")
		}
	}
	return nil
}

// resolveCookieSecure decides the Secure cookie attribute once at startup:
// an explicit COOKIE_SECURE wins, otherwise only local environments may send
// the session cookie over plain HTTP.
func resolveCookieSecure(raw, env string) (bool, error) {
	if raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return false, fmt.Errorf("invalid COOKIE_SECURE %q: %w", raw, err)
		}
		return v, nil
	}
	return !isLocalEnv(env), nil
}

func isLocalEnv(env string) bool {
	switch strings.ToLower(env) {
	case "development", "local", "test":
		return true
	}
	return false
}
