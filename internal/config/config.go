// Package config handles loading and managing chatvault configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// StoreConfig holds Messages store configuration.
type StoreConfig struct {
	Path         string `toml:"path"`          // chat.db path; empty means the macOS default
	QueryTimeout int    `toml:"query_timeout"` // seconds per query (default: 30)
}

// SearchConfig tunes the two-phase search.
type SearchConfig struct {
	DefaultLimit      int `toml:"default_limit"`      // results per page when unset (default: 50)
	DecodeParallelism int `toml:"decode_parallelism"` // concurrent payload decodes (default: 8)
	PoolMultiplier    int `toml:"pool_multiplier"`    // phase-2 pool = multiplier * remaining need
	PoolCap           int `toml:"pool_cap"`           // hard ceiling on the phase-2 pool
}

// DecodeConfig tunes the rich-text decoder.
type DecodeConfig struct {
	ConverterTimeout int `toml:"converter_timeout"` // seconds for the legacy converter hook
}

type Config struct {
	Store  StoreConfig  `toml:"store"`
	Search SearchConfig `toml:"search"`
	Decode DecodeConfig `toml:"decode"`

	// Computed paths (not from config file)
	HomeDir string `toml:"-"`
}

// DefaultHome returns the default chatvault home directory.
// Respects CHATVAULT_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("CHATVAULT_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatvault"
	}
	return filepath.Join(home, ".chatvault")
}

// DefaultStorePath returns the standard macOS chat.db location.
func DefaultStorePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "chat.db"
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.chatvault/config.toml).
func Load(path string) (*Config, error) {
	homeDir := DefaultHome()

	if path == "" {
		path = filepath.Join(homeDir, "config.toml")
	}

	cfg := &Config{
		HomeDir: homeDir,
		// Defaults
		Store: StoreConfig{
			QueryTimeout: 30,
		},
		Search: SearchConfig{
			DefaultLimit:      50,
			DecodeParallelism: 8,
			PoolMultiplier:    20,
			PoolCap:           500,
		},
		Decode: DecodeConfig{
			ConverterTimeout: 10,
		},
	}

	// Config file is optional - use defaults if not present
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg.Store.Path = DefaultStorePath()
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	// Expand ~ in paths
	cfg.Store.Path = expandPath(cfg.Store.Path)
	if cfg.Store.Path == "" {
		cfg.Store.Path = DefaultStorePath()
	}

	return cfg, nil
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
