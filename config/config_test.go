package config_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nmxmxh/fimod/config"
	"github.com/nmxmxh/fimod/internal/fimolog"
	"github.com/nmxmxh/fimod/internal/fimover"
)

func TestLoadMissingFileReturnsDefault(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fimodctl.yaml")
	original := &config.Config{
		RuntimeVersion:   "2.3.0",
		ModulePaths:      []string{"./a", "./b"},
		DefaultNamespace: "gfx",
		LogLevel:         "debug",
	}
	require.NoError(t, original.Save(path))

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, original, loaded)
}

func TestParsedRuntimeVersion(t *testing.T) {
	cfg := config.Default()
	cfg.RuntimeVersion = "3.1.4"
	v, err := cfg.ParsedRuntimeVersion()
	require.NoError(t, err)
	assert.Equal(t, fimover.New(3, 1, 4), v)
}

func TestParsedLogLevel(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, fimolog.Warn, cfg.ParsedLogLevel())

	cfg.LogLevel = "nonsense"
	assert.Equal(t, fimolog.Info, cfg.ParsedLogLevel())
}
