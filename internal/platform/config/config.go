// Package config loads the server configuration from a YAML file with
// sensible defaults for local runs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`

	RedisAddr     string        `yaml:"redis_addr"` // empty disables the cache
	RedisPassword string        `yaml:"redis_password"`
	CacheTTL      time.Duration `yaml:"cache_ttl"`

	GrowthTickInterval time.Duration `yaml:"growth_tick_interval"`
	CountFlushInterval time.Duration `yaml:"count_flush_interval"`

	ArchiveDir      string        `yaml:"archive_dir"`
	ArchiveInterval time.Duration `yaml:"archive_interval"`
	EventRetention  time.Duration `yaml:"event_retention"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr:         ":8080",
		DBPath:             "garden.db",
		CacheTTL:           5 * time.Minute,
		GrowthTickInterval: 24 * time.Hour,
		CountFlushInterval: time.Minute,
		ArchiveDir:         "archive",
		ArchiveInterval:    6 * time.Hour,
		EventRetention:     30 * 24 * time.Hour,
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}
