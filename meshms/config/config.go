// Package config defines the TOML configuration format for the meshms
// command, loaded with github.com/BurntSushi/toml the way kapacitord's
// run.Config loads its own TOML configuration.
package config

import (
	"errors"

	"github.com/BurntSushi/toml"
)

// StoreConfig selects and configures a bundle-store backend.
type StoreConfig struct {
	// Backend is one of "memory", "bolt", "postgres".
	Backend string `toml:"backend"`
	// Path is the bbolt database file, used when Backend is "bolt".
	Path string `toml:"path"`
	// DSN is the PostgreSQL connection string, used when Backend is
	// "postgres".
	DSN string `toml:"dsn"`
}

// LoggingConfig controls op/go-logging.v1 output.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// Config is the meshms command's top-level configuration.
type Config struct {
	SID     string        `toml:"sid"`
	Secret  string        `toml:"secret"`
	Store   StoreConfig   `toml:"store"`
	Logging LoggingConfig `toml:"logging"`
}

// Load parses the TOML file at path into a Config.
func Load(path string) (*Config, error) {
	var c Config
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return nil, err
	}
	if c.SID == "" {
		return nil, errors.New("config: sid is required")
	}
	if c.Secret == "" {
		return nil, errors.New("config: secret is required")
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "memory"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	return &c, nil
}
