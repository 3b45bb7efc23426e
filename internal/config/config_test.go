package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "127.0.0.1", cfg.Hub.Host)
	assert.Equal(t, 7777, cfg.Hub.Port)
	assert.Equal(t, 60*time.Minute, cfg.Hub.IdleTimeout)
	assert.Equal(t, 60*time.Second, cfg.Hub.SweepInterval)
	assert.Empty(t, cfg.Hub.MetricsAddr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Console)
}

func TestHubConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "127.0.0.1:7777", cfg.Hub.Addr())
}

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, 7777, cfg.Hub.Port)
}

func TestLoader_LoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.json")
	content := `{
		"hub": {
			"host": "0.0.0.0",
			"port": 9999,
			"idle_timeout": "30m"
		},
		"logging": {
			"level": "debug"
		}
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Hub.Host)
	assert.Equal(t, 9999, cfg.Hub.Port)
	assert.Equal(t, 30*time.Minute, cfg.Hub.IdleTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 60*time.Second, cfg.Hub.SweepInterval)
}

func TestLoader_InvalidJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parley.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}
