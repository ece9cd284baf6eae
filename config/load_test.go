package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	Reset()
	t.Cleanup(Reset)

	cfg, err := Load()
	require.NoError(t, err)

	assert.NotEmpty(t, cfg.Runtime.Root)
	assert.False(t, cfg.Runtime.SkipInstall)
	assert.Equal(t, DefaultRequestTimeoutSeconds, cfg.Request.DefaultTimeoutSeconds)
	assert.Equal(t, DefaultShutdownTimeoutSeconds, cfg.Request.ShutdownTimeoutSeconds)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "lsmux.toml")
	content := `
[runtime]
root = "/opt/lsmux/runtimes"
skip_install = true

[request]
default_timeout_seconds = 60

[backends.gopls]
binary_path = "/usr/local/bin/gopls"
assume_present = true

[backends.rust-analyzer]
disabled = true
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg, err := LoadFromFile(configPath)
	require.NoError(t, err)

	assert.Equal(t, "/opt/lsmux/runtimes", cfg.Runtime.Root)
	assert.True(t, cfg.Runtime.SkipInstall)
	assert.Equal(t, 60, cfg.Request.DefaultTimeoutSeconds)
	// Unset keys keep their defaults
	assert.Equal(t, DefaultShutdownTimeoutSeconds, cfg.Request.ShutdownTimeoutSeconds)

	gopls := cfg.Backend("gopls")
	assert.Equal(t, "/usr/local/bin/gopls", gopls.BinaryPath)
	assert.True(t, gopls.AssumePresent)

	assert.True(t, cfg.Backend("rust-analyzer").Disabled)
}

func TestBackendUnconfigured(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, BackendConfig{}, cfg.Backend("missing"))

	var nilCfg *Config
	assert.Equal(t, BackendConfig{}, nilCfg.Backend("missing"))
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}
