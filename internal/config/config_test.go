package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	// Create a temp dir without a config file
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join("Library", "Messages", "chat.db")) &&
		cfg.Store.Path != "chat.db" {
		t.Errorf("Store.Path = %q, want macOS default", cfg.Store.Path)
	}
	if cfg.Store.QueryTimeout != 30 {
		t.Errorf("Store.QueryTimeout = %d, want 30", cfg.Store.QueryTimeout)
	}
	if cfg.Search.DefaultLimit != 50 {
		t.Errorf("Search.DefaultLimit = %d, want 50", cfg.Search.DefaultLimit)
	}
	if cfg.Search.DecodeParallelism != 8 {
		t.Errorf("Search.DecodeParallelism = %d, want 8", cfg.Search.DecodeParallelism)
	}
	if cfg.Search.PoolMultiplier != 20 || cfg.Search.PoolCap != 500 {
		t.Errorf("Search pool = %d x cap %d, want 20 x 500",
			cfg.Search.PoolMultiplier, cfg.Search.PoolCap)
	}
	if cfg.Decode.ConverterTimeout != 10 {
		t.Errorf("Decode.ConverterTimeout = %d, want 10", cfg.Decode.ConverterTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	configContent := `
[store]
path = "/backups/chat.db"
query_timeout = 60

[search]
default_limit = 25
decode_parallelism = 4
pool_multiplier = 10
pool_cap = 200

[decode]
converter_timeout = 5
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Store.Path != "/backups/chat.db" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Store.QueryTimeout != 60 {
		t.Errorf("Store.QueryTimeout = %d, want 60", cfg.Store.QueryTimeout)
	}
	if cfg.Search.DefaultLimit != 25 {
		t.Errorf("Search.DefaultLimit = %d, want 25", cfg.Search.DefaultLimit)
	}
	if cfg.Search.PoolCap != 200 {
		t.Errorf("Search.PoolCap = %d, want 200", cfg.Search.PoolCap)
	}
	if cfg.Decode.ConverterTimeout != 5 {
		t.Errorf("Decode.ConverterTimeout = %d, want 5", cfg.Decode.ConverterTimeout)
	}
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	configContent := `
[store]
path = "/backups/chat.db"
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Search.DefaultLimit != 50 {
		t.Errorf("Search.DefaultLimit = %d, want default 50", cfg.Search.DefaultLimit)
	}
	if cfg.Store.QueryTimeout != 30 {
		t.Errorf("Store.QueryTimeout = %d, want default 30", cfg.Store.QueryTimeout)
	}
}

func TestLoadExpandsTilde(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	configContent := `
[store]
path = "~/backups/chat.db"
`
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if strings.HasPrefix(cfg.Store.Path, "~") {
		t.Errorf("Store.Path = %q, tilde not expanded", cfg.Store.Path)
	}
	if !strings.HasSuffix(cfg.Store.Path, filepath.Join("backups", "chat.db")) {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
}

func TestLoadBadTOML(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("CHATVAULT_HOME", tmpDir)

	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("not [valid toml"), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	if _, err := Load(configPath); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestDefaultHomeEnvOverride(t *testing.T) {
	t.Setenv("CHATVAULT_HOME", "/custom/home")
	if got := DefaultHome(); got != "/custom/home" {
		t.Errorf("DefaultHome() = %q", got)
	}
}
