// Package config loads netpager configuration from a YAML file and
// NETPAGER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Sternrassler/netpager/pkg/logging"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. NETPAGER_API_BASE_URL.
const EnvPrefix = "NETPAGER"

// Config holds all application configuration
type Config struct {
	API     APIConfig     `mapstructure:"api"`
	Paging  PagingConfig  `mapstructure:"paging"`
	Query   QueryConfig   `mapstructure:"query"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// APIConfig describes the listing API
type APIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	UserAgent      string        `mapstructure:"user_agent"`
	Timeout        time.Duration `mapstructure:"timeout"`
	RetryAttempts  int           `mapstructure:"retry_attempts"` // 1 disables transport retries
	InitialBackoff time.Duration `mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff"`
}

// PagingConfig holds page sizes and the fetch worker pool
type PagingConfig struct {
	PageSize         int `mapstructure:"page_size"`
	InitialLoadSize  int `mapstructure:"initial_load_size"` // 0 means 3 * page_size
	PrefetchDistance int `mapstructure:"prefetch_distance"` // 0 means page_size
	Workers          int `mapstructure:"workers"`
	QueueSize        int `mapstructure:"queue_size"`
}

// QueryConfig selects what the demo loads
type QueryConfig struct {
	Key   string `mapstructure:"key"`
	Pages int    `mapstructure:"pages"`
}

// RedisConfig enables the shared rate limit budget
type RedisConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// ServerConfig holds the health and metrics endpoint
type ServerConfig struct {
	Serve bool   `mapstructure:"serve"` // keep running after the demo load
	Addr  string `mapstructure:"addr"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:        "http://www.typany.com/api/",
			UserAgent:      "netpager/1.0",
			Timeout:        30 * time.Second,
			RetryAttempts:  3,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     10 * time.Second,
		},
		Paging: PagingConfig{
			PageSize:  30,
			Workers:   5,
			QueueSize: 64,
		},
		Query: QueryConfig{
			Key:   "summer",
			Pages: 3,
		},
		Redis: RedisConfig{
			Enabled:   false,
			Addr:      "localhost:6379",
			KeyPrefix: "netpager:ratelimit",
		},
		Server: ServerConfig{
			Serve: false,
			Addr:  ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// setDefaults registers every key so environment overrides reach Unmarshal.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("api.base_url", cfg.API.BaseURL)
	v.SetDefault("api.user_agent", cfg.API.UserAgent)
	v.SetDefault("api.timeout", cfg.API.Timeout)
	v.SetDefault("api.retry_attempts", cfg.API.RetryAttempts)
	v.SetDefault("api.initial_backoff", cfg.API.InitialBackoff)
	v.SetDefault("api.max_backoff", cfg.API.MaxBackoff)

	v.SetDefault("paging.page_size", cfg.Paging.PageSize)
	v.SetDefault("paging.initial_load_size", cfg.Paging.InitialLoadSize)
	v.SetDefault("paging.prefetch_distance", cfg.Paging.PrefetchDistance)
	v.SetDefault("paging.workers", cfg.Paging.Workers)
	v.SetDefault("paging.queue_size", cfg.Paging.QueueSize)

	v.SetDefault("query.key", cfg.Query.Key)
	v.SetDefault("query.pages", cfg.Query.Pages)

	v.SetDefault("redis.enabled", cfg.Redis.Enabled)
	v.SetDefault("redis.addr", cfg.Redis.Addr)
	v.SetDefault("redis.password", cfg.Redis.Password)
	v.SetDefault("redis.db", cfg.Redis.DB)
	v.SetDefault("redis.key_prefix", cfg.Redis.KeyPrefix)

	v.SetDefault("server.serve", cfg.Server.Serve)
	v.SetDefault("server.addr", cfg.Server.Addr)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.pretty", cfg.Logging.Pretty)
}

// defaultConfigPath returns the per-user config directory
func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "netpager")
}

// Load reads configuration from path, or from netpager.yaml in the working
// directory or ~/.config/netpager when path is empty. A missing default file
// is fine; a missing explicit file is not. Environment variables override
// both.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	setDefaults(v, cfg)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("netpager")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if dir := defaultConfigPath(); dir != "" {
			v.AddConfigPath(dir)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api.base_url must be an http(s) URL (got %q)", c.API.BaseURL)
	}
	if c.API.UserAgent == "" {
		return fmt.Errorf("api.user_agent is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive (got %s)", c.API.Timeout)
	}
	if c.API.RetryAttempts < 1 {
		return fmt.Errorf("api.retry_attempts must be >= 1 (got %d)", c.API.RetryAttempts)
	}
	if c.Paging.PageSize < 1 {
		return fmt.Errorf("paging.page_size must be >= 1 (got %d)", c.Paging.PageSize)
	}
	if c.Paging.InitialLoadSize < 0 || c.Paging.PrefetchDistance < 0 {
		return fmt.Errorf("paging.initial_load_size and paging.prefetch_distance must not be negative")
	}
	if c.Paging.Workers < 1 {
		return fmt.Errorf("paging.workers must be >= 1 (got %d)", c.Paging.Workers)
	}
	if c.Query.Pages < 1 {
		return fmt.Errorf("query.pages must be >= 1 (got %d)", c.Query.Pages)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}
	if c.Server.Serve && c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required when serving")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// LogConfig converts the logging section for logging.Setup.
func (c *Config) LogConfig() logging.Config {
	level, _ := logging.ParseLevel(c.Logging.Level)
	cfg := logging.DefaultConfig()
	cfg.Level = level
	cfg.Pretty = c.Logging.Pretty
	return cfg
}
