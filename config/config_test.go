package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Fleet.Workers != 4 {
		t.Errorf("Expected Workers=4, got %d", cfg.Fleet.Workers)
	}
	if cfg.Fleet.WorkerExe != "soasim-worker" {
		t.Errorf("Expected WorkerExe=soasim-worker, got %s", cfg.Fleet.WorkerExe)
	}

	if cfg.Paths.UserDirTemplate != "worker-%d" {
		t.Errorf("Expected UserDirTemplate=worker-%%d, got %s", cfg.Paths.UserDirTemplate)
	}

	if cfg.Timeouts.ReadyMs != 20000 {
		t.Errorf("Expected ReadyMs=20000, got %d", cfg.Timeouts.ReadyMs)
	}
	if cfg.Timeouts.AckMs != 5000 {
		t.Errorf("Expected AckMs=5000, got %d", cfg.Timeouts.AckMs)
	}
	if cfg.Timeouts.OpMs != 5000 {
		t.Errorf("Expected OpMs=5000, got %d", cfg.Timeouts.OpMs)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Expected Level=info, got %s", cfg.Logging.Level)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Default config should validate, got %v", err)
	}
}

func TestGetConfigPath(t *testing.T) {
	path := GetConfigPath()

	if path == "" {
		t.Error("GetConfigPath returned empty string")
	}
	if filepath.Base(path) != "config.toml" {
		t.Errorf("Expected path to end with config.toml, got %s", path)
	}
	dir := filepath.Dir(path)
	if filepath.Base(dir) != "soasim" {
		t.Errorf("Expected path in soasim directory, got %s", path)
	}
}

func TestSaveAndLoad(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "test_config.toml")

	cfg := DefaultConfig()
	cfg.Fleet.Workers = 8
	cfg.Paths.ISO = "/games/soa.iso"
	cfg.Paths.Savestate = "/saves/battle-start.sav"
	cfg.Timeouts.RunMs = 120000
	cfg.Explorer.MaxRetryCount = 3

	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	loaded, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Fleet.Workers != 8 {
		t.Errorf("Expected Workers=8, got %d", loaded.Fleet.Workers)
	}
	if loaded.Paths.ISO != "/games/soa.iso" {
		t.Errorf("Expected ISO=/games/soa.iso, got %s", loaded.Paths.ISO)
	}
	if loaded.Paths.Savestate != "/saves/battle-start.sav" {
		t.Errorf("Expected Savestate=/saves/battle-start.sav, got %s", loaded.Paths.Savestate)
	}
	if loaded.Timeouts.RunMs != 120000 {
		t.Errorf("Expected RunMs=120000, got %d", loaded.Timeouts.RunMs)
	}
	if loaded.Explorer.MaxRetryCount != 3 {
		t.Errorf("Expected MaxRetryCount=3, got %d", loaded.Explorer.MaxRetryCount)
	}
}

func TestLoadNonExistent(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "nonexistent.toml")

	cfg, err := LoadFrom(configPath)
	if err != nil {
		t.Fatalf("LoadFrom should not error on non-existent file: %v", err)
	}

	if cfg.Fleet.Workers != 4 {
		t.Error("Expected default config when file doesn't exist")
	}
}

func TestLoadInvalidTOML(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "invalid.toml")

	invalidTOML := `
[fleet]
workers = "not a number"
`
	if err := os.WriteFile(configPath, []byte(invalidTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("Expected error when loading invalid TOML")
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "bad.toml")

	badTOML := `
[fleet]
workers = 0
worker_exe = "soasim-worker"
`
	if err := os.WriteFile(configPath, []byte(badTOML), 0644); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	if _, err := LoadFrom(configPath); err == nil {
		t.Error("Expected error for workers=0")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		wantOK bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"zero workers", func(c *Config) { c.Fleet.Workers = 0 }, false},
		{"empty worker exe", func(c *Config) { c.Fleet.WorkerExe = "" }, false},
		{"empty user dir template", func(c *Config) { c.Paths.UserDirTemplate = "" }, false},
		{"zero ready timeout", func(c *Config) { c.Timeouts.ReadyMs = 0 }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, false},
		{"infinite retry", func(c *Config) { c.Explorer.MaxRetryCount = -1 }, true},
		{"retry below -1", func(c *Config) { c.Explorer.MaxRetryCount = -2 }, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			if tc.wantOK && err != nil {
				t.Errorf("expected valid, got %v", err)
			}
			if !tc.wantOK && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestUserDir(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.UserDir(3); got != "worker-3" {
		t.Errorf("Expected worker-3, got %s", got)
	}

	cfg.Paths.UserDirTemplate = "/var/fleet/w%d"
	if got := cfg.UserDir(0); got != "/var/fleet/w0" {
		t.Errorf("Expected /var/fleet/w0, got %s", got)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "subdir1", "subdir2", "config.toml")

	cfg := DefaultConfig()
	if err := cfg.SaveTo(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}
}
