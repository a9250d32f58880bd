package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "jaaga.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load("does-not-exist.toml")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "jaaga.db", cfg.Store.Path)
	assert.False(t, cfg.Events.Enabled)
}

func TestLoad_EmptyPathUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 9090

[store]
path = "/var/lib/jaaga/credit.db"

[gate]
lock_wait_ms = 500
retry_attempts = 5
retry_backoff_ms = 20

[events]
enabled = true
brokers = ["kafka-1:9092", "kafka-2:9092"]
topic = "credit.events"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "/var/lib/jaaga/credit.db", cfg.Store.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Gate.LockWait())
	assert.Equal(t, 5, cfg.Gate.RetryAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.Gate.RetryBackoff())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Events.Brokers)
	assert.Equal(t, "credit.events", cfg.Events.Topic)
}

func TestLoad_PartialFileKeepsOtherDefaults(t *testing.T) {
	path := writeConfig(t, `
[server]
port = 3000
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "jaaga.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Gate.LockWait())
}

func TestLoad_Malformed(t *testing.T) {
	path := writeConfig(t, `[server`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name    string
		content string
	}{
		{"port out of range", "[server]\nport = 70000\n"},
		{"zero lock wait", "[gate]\nlock_wait_ms = 0\n"},
		{"zero retry attempts", "[gate]\nretry_attempts = 0\n"},
		{"events without brokers", "[events]\nenabled = true\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}
}
