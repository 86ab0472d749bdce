// Package config loads runtime settings from the environment and an optional
// taskboard.yaml in the working directory. Environment variables win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"taskboard/internal/kv"
)

// Config holds the runtime settings.
type Config struct {
	Port            string `mapstructure:"port"`
	StoreDriver     string `mapstructure:"store_driver"`
	StoreDSN        string `mapstructure:"store_dsn"`
	RedisPrefix     string `mapstructure:"redis_prefix"`
	DefaultPageSize int    `mapstructure:"default_page_size"`
	Debug           bool   `mapstructure:"debug"`
	LogFormat       string `mapstructure:"log_format"`
}

// DefaultConfig returns the settings used when nothing overrides them.
func DefaultConfig() *Config {
	return &Config{
		Port:            "8080",
		StoreDriver:     kv.DriverSQLite,
		StoreDSN:        "./data/taskboard.db",
		RedisPrefix:     "taskboard:",
		DefaultPageSize: 10,
		LogFormat:       "text",
	}
}

// Load merges defaults, the config file at path (if it exists) and the environment.
// An empty path looks for taskboard.yaml in the working directory.
func Load(path string) (*Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("port", def.Port)
	v.SetDefault("store_driver", def.StoreDriver)
	v.SetDefault("store_dsn", def.StoreDSN)
	v.SetDefault("redis_prefix", def.RedisPrefix)
	v.SetDefault("default_page_size", def.DefaultPageSize)
	v.SetDefault("debug", def.Debug)
	v.SetDefault("log_format", def.LogFormat)

	// Keys match the upper-cased env names: PORT, STORE_DRIVER, ...
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path == "" {
		path = "taskboard.yaml"
	}
	if _, err := os.Stat(path); err == nil {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings for values the server cannot start with. The
// store driver is rewritten to its canonical name.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}
	if c.DefaultPageSize <= 0 {
		return errors.New("default_page_size must be greater than zero")
	}
	driver, ok := kv.NormalizeDriver(c.StoreDriver)
	if !ok {
		return fmt.Errorf("unknown store_driver %q", c.StoreDriver)
	}
	c.StoreDriver = driver
	if c.StoreDriver != kv.DriverMemory && c.StoreDSN == "" {
		return fmt.Errorf("store_dsn is required for the %s driver", c.StoreDriver)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.New("log_format must be 'text' or 'json'")
	}
	return nil
}

// KV returns the key-value store settings.
func (c *Config) KV() kv.Config {
	return kv.Config{
		Driver: c.StoreDriver,
		DSN:    c.StoreDSN,
		Prefix: c.RedisPrefix,
	}
}
