package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server)
	assert.Equal(t, 4567, cfg.Port)
	assert.Equal(t, "", cfg.Secret)
	assert.Equal(t, ":2200", cfg.ListenAddr)
	assert.Equal(t, 10*time.Second, cfg.PlayersTTL)
	assert.Equal(t, []string{"sudo", "systemctl", "restart", "mcssh.service"}, cfg.RestartCommand)
	assert.Equal(t, "ws://localhost:4567/v1/ws/console", cfg.ConsoleURL())
	assert.Equal(t, "http://localhost:4567", cfg.APIBaseURL())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("MCSSH_SERVER", "10.66.66.111")
	t.Setenv("MCSSH_PORT", "4568")
	t.Setenv("MCSSH_SECRET", "s3cret")
	t.Setenv("MCSSH_ADMINS", "alice, bob,,")
	t.Setenv("MCSSH_PLAYERS_TTL_MS", "250")
	t.Setenv("MCSSH_SERVICE", "mc.service")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "10.66.66.111", cfg.Server)
	assert.Equal(t, 4568, cfg.Port)
	assert.Equal(t, "s3cret", cfg.Secret)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Admins)
	assert.Equal(t, 250*time.Millisecond, cfg.PlayersTTL)
	assert.Equal(t, []string{"sudo", "systemctl", "restart", "mc.service"}, cfg.RestartCommand)
	assert.True(t, cfg.IsAdmin("alice"))
	assert.False(t, cfg.IsAdmin("mallory"))
}

func TestLoadSecretFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".sec"), []byte("from-file\n"), 0o600))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Secret)
}

func TestLoadDotEnvAndYAML(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	yamlPath := filepath.Join(dir, "mcssh.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("server: yaml-host\nport: 5000\nplayers_ttl: 3s\nadmins: [ops]\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("MCSSH_CONFIG="+yamlPath+"\nMCSSH_PORT=6000\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MCSSH_CONFIG")
		os.Unsetenv("MCSSH_PORT")
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "yaml-host", cfg.Server)
	assert.Equal(t, 6000, cfg.Port)
	assert.Equal(t, 3*time.Second, cfg.PlayersTTL)
	assert.Equal(t, []string{"ops"}, cfg.Admins)
}

func TestDefaultDatabaseAllowsConcurrentWriters(t *testing.T) {
	dsn := Default().DatabaseURL
	assert.NotContains(t, dsn, "cache=shared")
	assert.Contains(t, dsn, "_busy_timeout=")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.ListenAddr = ""
	assert.Error(t, cfg.Validate())
}
