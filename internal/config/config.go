// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Cache drivers
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	NYT   NYTConfig   `envPrefix:"NYT_"`
	Cache CacheConfig `envPrefix:"CACHE_"`
	Redis RedisConfig `envPrefix:"REDIS_"`
}

// NYTConfig holds the upstream Books API settings
type NYTConfig struct {
	APIKey      string        `env:"API_KEY"`
	BaseURL     string        `env:"BASE_URL" envDefault:"https://api.nytimes.com/svc/books/v3"`
	HistoryPath string        `env:"HISTORY_PATH" envDefault:"/lists/best-sellers/history.json"`
	CacheTTL    int           `env:"CACHE_TTL" envDefault:"3600"` // seconds
	Timeout     time.Duration `env:"TIMEOUT" envDefault:"10s"`
	Attempts    uint          `env:"RETRY_ATTEMPTS" envDefault:"3"`
	RetryDelay  time.Duration `env:"RETRY_DELAY" envDefault:"100ms"`
	RateLimit   int           `env:"RATE_LIMIT" envDefault:"0"` // requests per minute, 0 = unlimited
}

// CacheConfig selects the response cache backend
type CacheConfig struct {
	Driver string `env:"DRIVER" envDefault:"memory"`
	Prefix string `env:"PREFIX"`
}

// RedisConfig is used when Cache.Driver is "redis"
type RedisConfig struct {
	Addr     string `env:"ADDR"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &cfg, nil
}

// TTL returns the cache TTL as a duration
func (c *Config) TTL() time.Duration {
	return time.Duration(c.NYT.CacheTTL) * time.Second
}

// UsesRedis returns true if the Redis cache backend is selected
func (c *Config) UsesRedis() bool {
	return c.Cache.Driver == DriverRedis
}

// Validate ensures the configuration is usable
func (c *Config) Validate() error {
	if c.NYT.APIKey == "" {
		return fmt.Errorf("NYT_API_KEY is required")
	}
	if c.NYT.CacheTTL <= 0 {
		return fmt.Errorf("NYT_CACHE_TTL must be positive, got %d", c.NYT.CacheTTL)
	}
	if c.NYT.Timeout <= 0 {
		return fmt.Errorf("NYT_TIMEOUT must be positive, got %s", c.NYT.Timeout)
	}
	if c.NYT.Attempts == 0 {
		return fmt.Errorf("NYT_RETRY_ATTEMPTS must be at least 1")
	}
	if c.NYT.RateLimit < 0 {
		return fmt.Errorf("NYT_RATE_LIMIT must not be negative, got %d", c.NYT.RateLimit)
	}
	switch c.Cache.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when CACHE_DRIVER=redis")
		}
	default:
		return fmt.Errorf("unknown CACHE_DRIVER %q (want %q or %q)", c.Cache.Driver, DriverMemory, DriverRedis)
	}
	return nil
}
