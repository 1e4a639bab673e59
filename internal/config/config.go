package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Lock backends.
const (
	LockMemory   = "memory"
	LockRedis    = "redis"
	LockPostgres = "postgres"
)

const configFileEnvVar = "CONFIG_FILE"

// Config captures application runtime configuration.
type Config struct {
	AppName         string        `yaml:"app_name"          env:"APP_NAME"`
	AppEnv          string        `yaml:"app_env"           env:"APP_ENV"`
	Port            string        `yaml:"port"              env:"PORT"`
	LogLevel        string        `yaml:"log_level"         env:"LOG_LEVEL"`
	StoreDriver     string        `yaml:"store_driver"      env:"STORE_DRIVER"`
	DatabaseURL     string        `yaml:"database_url"      env:"DATABASE_URL"`
	SQLitePath      string        `yaml:"sqlite_path"       env:"SQLITE_PATH"`
	RedisURL        string        `yaml:"redis_url"         env:"REDIS_URL"`
	LockBackend     string        `yaml:"lock_backend"      env:"LOCK_BACKEND"`
	LockTimeout     time.Duration `yaml:"lock_timeout"      env:"LOCK_TIMEOUT"`
	LockTTL         time.Duration `yaml:"lock_ttl"          env:"LOCK_TTL"`
	LockPoolSize    int32         `yaml:"lock_pool_size"    env:"LOCK_POOL_SIZE"`
	StoreTimeout    time.Duration `yaml:"store_timeout"     env:"STORE_TIMEOUT"`
	ShutdownPeriod  time.Duration `yaml:"shutdown_timeout"  env:"SHUTDOWN_TIMEOUT"`
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"   env:"IDEMPOTENCY_TTL"`
	SubmitRateLimit int           `yaml:"submit_rate_limit" env:"SUBMIT_RATE_LIMIT"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		AppName:         "RevoBank",
		AppEnv:          "development",
		Port:            "8080",
		LogLevel:        "info",
		StoreDriver:     DriverMemory,
		SQLitePath:      "data/ledger.db",
		LockBackend:     LockMemory,
		LockTimeout:     5 * time.Second,
		LockTTL:         30 * time.Second,
		LockPoolSize:    32,
		StoreTimeout:    10 * time.Second,
		ShutdownPeriod:  10 * time.Second,
		IdempotencyTTL:  24 * time.Hour,
		SubmitRateLimit: 60,
	}
}

// Load builds the configuration from defaults, the optional YAML file named by
// CONFIG_FILE, and finally environment variables.
func Load() (Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv(configFileEnvVar)); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)
	cfg.LockBackend = strings.ToLower(cfg.LockBackend)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks that the selected backends have what they need.
func (c Config) Validate() error {
	var errs []error

	switch c.StoreDriver {
	case DriverMemory:
	case DriverSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			errs = append(errs, errors.New("SQLITE_PATH must be set for the sqlite driver"))
		}
	case DriverPostgres, DriverMySQL:
		if c.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL must be set for the %s driver", c.StoreDriver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver))
	}

	switch c.LockBackend {
	case LockMemory:
	case LockRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL must be set for the redis lock backend"))
		}
	case LockPostgres:
		if c.StoreDriver != DriverPostgres {
			errs = append(errs, errors.New("the postgres lock backend requires STORE_DRIVER=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend))
	}

	if c.LockTimeout <= 0 {
		errs = append(errs, errors.New("LOCK_TIMEOUT must be positive"))
	}
	if c.LockTTL <= 0 {
		errs = append(errs, errors.New("LOCK_TTL must be positive"))
	}
	if c.LockBackend == LockPostgres && c.LockPoolSize < 1 {
		errs = append(errs, errors.New("LOCK_POOL_SIZE must be at least 1"))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.SubmitRateLimit < 0 {
		errs = append(errs, errors.New("SUBMIT_RATE_LIMIT must not be negative"))
	}

	return errors.Join(errs...)
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// IsDev reports whether the service runs in a development environment.
func (c Config) IsDev() bool {
	return c.AppEnv == "" || c.AppEnv == "development" || c.AppEnv == "dev"
}
