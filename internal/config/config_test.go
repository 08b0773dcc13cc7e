package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAppEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"APP_REDIS_URL", "APP_PORT", "APP_BASE_CODE_PATH"} {
		old, had := os.LookupEnv(k)
		os.Unsetenv(k)
		t.Cleanup(func() {
			if had {
				os.Setenv(k, old)
			}
		})
	}
}

func TestLoadFromSettingsFile(t *testing.T) {
	clearAppEnv(t)
	dir := t.TempDir()
	settings := "redis_url = \"redis://localhost:6379/0\"\nport = 9090\nbase_code_path = \"" + dir + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte(settings), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, dir, cfg.BaseCodePath)
}

func TestEnvOverridesSettingsFile(t *testing.T) {
	clearAppEnv(t)
	dir := t.TempDir()
	settings := "redis_url = \"redis://from-file:6379/0\"\nport = 1111\nbase_code_path = \"" + dir + "\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, settingsFile), []byte(settings), 0o644))

	os.Setenv("APP_PORT", "2222")
	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, 2222, cfg.Port)
	assert.Equal(t, "redis://from-file:6379/0", cfg.RedisURL)
}

func TestLoadRequiresBaseCodePath(t *testing.T) {
	clearAppEnv(t)
	dir := t.TempDir()
	_, err := Load(dir)
	assert.Error(t, err)
}

func TestLoadRejectsInvalidPort(t *testing.T) {
	clearAppEnv(t)
	dir := t.TempDir()
	os.Setenv("APP_BASE_CODE_PATH", dir)
	os.Setenv("APP_PORT", "99999")
	_, err := Load(dir)
	assert.Error(t, err)
}
