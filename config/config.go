// Package config loads and saves the fleet configuration: where the
// game disc and savestate live, how many workers to boot, and the
// default timeouts the runner stamps on jobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"
)

// Config represents the fleet configuration
type Config struct {
	// Fleet settings
	Fleet struct {
		Workers   int    `toml:"workers"`
		WorkerExe string `toml:"worker_exe"`
	} `toml:"fleet"`

	// Path settings
	Paths struct {
		ISO             string `toml:"iso"`
		Savestate       string `toml:"savestate"`
		QtBaseDir       string `toml:"qt_base_dir"`
		UserDirTemplate string `toml:"user_dir_template"` // %d is replaced by the worker id
	} `toml:"paths"`

	// Timeout settings, all in milliseconds
	Timeouts struct {
		ReadyMs   uint32 `toml:"ready_ms"`
		AckMs     uint32 `toml:"ack_ms"`
		RunMs     uint32 `toml:"run_ms"`
		ViStallMs uint32 `toml:"vi_stall_ms"`
		OpMs      uint32 `toml:"op_ms"`
	} `toml:"timeouts"`

	// Explorer settings
	Explorer struct {
		FakeAttackBudget uint32 `toml:"fake_attack_budget"`
		MaxRetryCount    int    `toml:"max_retry_count"`
	} `toml:"explorer"`

	// Logging settings
	Logging struct {
		Level string `toml:"level"` // debug, info, warn, error
		File  string `toml:"file"`  // empty = stderr
	} `toml:"logging"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	cfg := &Config{}

	// Fleet defaults
	cfg.Fleet.Workers = 4
	cfg.Fleet.WorkerExe = "soasim-worker"

	// Path defaults
	cfg.Paths.UserDirTemplate = "worker-%d"

	// Timeout defaults
	cfg.Timeouts.ReadyMs = 20000
	cfg.Timeouts.AckMs = 5000
	cfg.Timeouts.RunMs = 60000
	cfg.Timeouts.ViStallMs = 10000
	cfg.Timeouts.OpMs = 5000

	// Explorer defaults
	cfg.Explorer.FakeAttackBudget = 0
	cfg.Explorer.MaxRetryCount = 0

	// Logging defaults
	cfg.Logging.Level = "info"
	cfg.Logging.File = ""

	return cfg
}

// GetConfigDir returns the platform-appropriate configuration directory
func GetConfigDir() string {
	var configDir string

	switch runtime.GOOS {
	case "windows":
		configDir = os.Getenv("APPDATA")
		if configDir == "" {
			configDir = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		configDir = filepath.Join(configDir, "soasim")
	case "darwin":
		home, _ := os.UserHomeDir()
		configDir = filepath.Join(home, "Library", "Application Support", "soasim")
	default: // linux and others
		configDir = os.Getenv("XDG_CONFIG_HOME")
		if configDir == "" {
			home, _ := os.UserHomeDir()
			configDir = filepath.Join(home, ".config")
		}
		configDir = filepath.Join(configDir, "soasim")
	}

	return configDir
}

// GetConfigPath returns the full path to the configuration file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.toml")
}

// Load reads the configuration from the default location.
// Returns default configuration if the file doesn't exist.
func Load() (*Config, error) {
	return LoadFrom(GetConfigPath())
}

// LoadFrom reads the configuration from a specific path
func LoadFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes the configuration to the default location
func (c *Config) Save() error {
	return c.SaveTo(GetConfigPath())
}

// SaveTo writes the configuration to a specific path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(c); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// Validate checks the configuration for fatal misconfiguration. A
// failure here is a startup-time configuration error: fail fast with
// an explicit message, never fall back at runtime.
func (c *Config) Validate() error {
	if c.Fleet.Workers < 1 {
		return fmt.Errorf("fleet.workers must be at least 1, got %d", c.Fleet.Workers)
	}
	if c.Fleet.WorkerExe == "" {
		return fmt.Errorf("fleet.worker_exe must not be empty")
	}
	if c.Paths.UserDirTemplate == "" {
		return fmt.Errorf("paths.user_dir_template must not be empty")
	}
	if c.Timeouts.ReadyMs == 0 {
		return fmt.Errorf("timeouts.ready_ms must be non-zero")
	}
	if c.Timeouts.AckMs == 0 {
		return fmt.Errorf("timeouts.ack_ms must be non-zero")
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	if c.Explorer.MaxRetryCount < -1 {
		return fmt.Errorf("explorer.max_retry_count must be >= -1, got %d", c.Explorer.MaxRetryCount)
	}
	return nil
}

// UserDir expands the per-worker user directory template for one
// worker id. Every worker gets a distinct directory; no two workers
// share filesystem state.
func (c *Config) UserDir(workerID int) string {
	return fmt.Sprintf(c.Paths.UserDirTemplate, workerID)
}
