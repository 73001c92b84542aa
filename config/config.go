// Package config is fimodctl's on-disk configuration, the runtime-level
// counterpart to a single module's manifest: which runtime version the
// process presents to modules, where to look for them, and how loudly
// to log while doing it.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/fimover"
)

// Config is fimodctl's process-wide configuration.
type Config struct {
	// RuntimeVersion is the version the Registry presents to every
	// descriptor's TargetRuntimeVersion check.
	RuntimeVersion string `yaml:"runtime_version"`

	// ModulePaths are directories holding *.fimo_module manifests.
	// `fimodctl load` given no path argument scans only the first entry;
	// later entries are not scanned.
	ModulePaths []string `yaml:"module_paths"`

	// DefaultNamespace is used wherever a command needs a namespace and
	// none was given explicitly.
	DefaultNamespace string `yaml:"default_namespace"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level"`
}

// Default returns fimodctl's out-of-the-box configuration.
func Default() *Config {
	return &Config{
		RuntimeVersion:   "1.0.0",
		ModulePaths:      []string{"./modules"},
		DefaultNamespace: fimover.GlobalNamespace,
		LogLevel:         "info",
	}
}

// Load reads Config from path, falling back to Default if the file does
// not exist.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path, creating its parent directory if needed.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: mkdir %s: %w", dir, err)
		}
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", path, err)
	}
	return nil
}

// ParsedRuntimeVersion parses RuntimeVersion, the form every descriptor's
// TargetRuntimeVersion is checked against.
func (c *Config) ParsedRuntimeVersion() (fimover.Version, error) {
	return fimover.Parse(c.RuntimeVersion)
}

// ParsedLogLevel maps LogLevel to a fimolog.Level, defaulting to Info
// for an empty or unrecognized value.
func (c *Config) ParsedLogLevel() fimolog.Level {
	switch c.LogLevel {
	case "debug":
		return fimolog.Debug
	case "warn":
		return fimolog.Warn
	case "error":
		return fimolog.Error
	default:
		return fimolog.Info
	}
}
