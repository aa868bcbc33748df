package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func clearEnv(t *testing.T) {
	for _, k := range []string{"SATORI_HOST", "SATORI_PORT", "SATORI_PATH", "SATORI_TOKEN", "SATORI_NICKNAMES", "SATORI_LOG_LEVEL"} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadYAML(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "satori.yaml", `
clients:
  - host: chat.example
    port: 5500
    path: satori
    token: abc
  - token: local
nicknames: [bot]
heartbeat_interval: 5s
log:
  level: debug
`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	require.Len(t, cfg.Clients, 2)
	assert.Equal(t, "chat.example", cfg.Clients[0].Host)
	assert.Equal(t, "satori", cfg.Clients[0].Path)
	assert.Equal(t, "localhost", cfg.Clients[1].Host)
	assert.Equal(t, 5140, cfg.Clients[1].Port)
	assert.Equal(t, []string{"bot"}, cfg.Nicknames)
	assert.Equal(t, []string{"abc", "local"}, cfg.Tokens())

	cc := cfg.ClientConfig()
	assert.Equal(t, 5*time.Second, cc.HeartbeatInterval)
	assert.Equal(t, 3*time.Second, cc.ReconnectDelay)
	assert.Equal(t, 60*time.Second, cc.ConnectTimeout)

	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
	assert.Equal(t, "text", cfg.Log.Format)
}

func TestLoadJSONC(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "satori.jsonc", `{
		// primary gateway
		"clients": [{"host": "127.0.0.1", "port": 5140,},],
		"shutdown_timeout": "2s", /* shorter */
	}`)
	cfg, err := Load(path, "")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Clients[0].Host)
	assert.Equal(t, 2*time.Second, time.Duration(cfg.ShutdownTimeout))
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	env := writeFile(t, ".env", "SATORI_HOST=gw\nSATORI_PORT=8080\nSATORI_TOKEN=tok\nSATORI_NICKNAMES=a, b\n")

	cfg, err := Load("", env)
	require.NoError(t, err)
	require.Len(t, cfg.Clients, 1)
	assert.Equal(t, "gw", cfg.Clients[0].Host)
	assert.Equal(t, 8080, cfg.Clients[0].Port)
	assert.Equal(t, "tok", cfg.Clients[0].Token)
	assert.Equal(t, []string{"a", "b"}, cfg.Nicknames)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	assert.ErrorContains(t, err, "no clients")

	_, err = Load(writeFile(t, "c.toml", ""), "")
	assert.ErrorContains(t, err, "unsupported")

	_, err = Load(writeFile(t, "c.yaml", "clients: [{port: 99999}]"), "")
	assert.ErrorContains(t, err, "clients[0]")

	_, err = Load(writeFile(t, "c.yaml", "clients: [{}]\nlog: {level: loud}"), "")
	assert.ErrorContains(t, err, "log level")

	_, err = Load(writeFile(t, "c.yaml", "clients: [{}]\nreconnect_delay: soon"), "")
	assert.Error(t, err)

	t.Setenv("SATORI_PORT", "http")
	_, err = Load("", "")
	assert.ErrorContains(t, err, "SATORI_PORT")
}
