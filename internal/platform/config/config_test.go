package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// emptyConfigDir points Load at a directory without YAML files so only
// defaults and the environment apply.
func emptyConfigDir(t *testing.T) {
	t.Helper()
	t.Setenv(ConfigDirEnv, t.TempDir())
}

func writeYAML(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600))
}

func TestLoad_Defaults(t *testing.T) {
	emptyConfigDir(t)

	cfg, err := Load("")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"app name", cfg.App.Name, "quote-sync"},
		{"environment", cfg.App.Environment, "local"},
		{"port", cfg.Server.Port, DefaultServerPort},
		{"read timeout", cfg.Server.ReadTimeout, 30 * time.Second},
		{"shutdown timeout", cfg.Server.ShutdownTimeout, 10 * time.Second},
		{"log format", cfg.Log.Format, "json"},
		{"log file off", cfg.Log.File.Enabled, false},
		{"log file size", cfg.Log.File.MaxSizeMB, DefaultLogFileMaxSizeMB},
		{"log file compress", cfg.Log.File.Compress, true},
		{"telemetry off", cfg.Telemetry.Enabled, false},
		{"telemetry plaintext", cfg.Telemetry.Insecure, true},
		{"auth off", cfg.Auth.Enabled, false},
		{"editor role", cfg.Auth.EditorRole, "editor"},
		{"roles header", cfg.Auth.RolesHeader, "X-User-Roles"},
		{"client timeout", cfg.Client.Timeout, 30 * time.Second},
		{"retry attempts", cfg.Client.Retry.MaxAttempts, DefaultClientRetryMaxAttempts},
		{"retry multiplier", cfg.Client.Retry.Multiplier, DefaultClientRetryMultiplier},
		{"breaker failures", cfg.Client.CircuitBreaker.MaxFailures, DefaultClientCircuitMaxFailures},
		{"breaker probes", cfg.Client.CircuitBreaker.HalfOpenLimit, DefaultClientCircuitHalfOpenLimit},
		{"source", cfg.Services.Quote.BaseURL, "https://jsonplaceholder.typicode.com"},
		{"sync on", cfg.Sync.Enabled, true},
		{"sync interval", cfg.Sync.Interval, 30 * time.Second},
		{"fetch timeout", cfg.Sync.FetchTimeout, 10 * time.Second},
		{"fetch retries", cfg.Sync.MaxRetries, uint64(DefaultSyncMaxRetries)},
		{"identity", cfg.Sync.Identity, "stable_id"},
		{"backend", cfg.Storage.Backend, "file"},
		{"redis prefix", cfg.Storage.Redis.Prefix, "quotesync:"},
		{"remote kind", cfg.Remote.Kind, "posts"},
		{"remote limit", cfg.Remote.Limit, DefaultRemoteLimit},
		{"id prefix", cfg.Remote.IDPrefix, "server_"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.got, tt.name)
	}
}

func TestLoad_Layering(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	writeYAML(t, dir, "base.yaml", `
sync:
  interval: 45s
  identity: text
storage:
  backend: memory
remote:
  kind: feed
  peers:
    - http://quotes-b:8080
    - http://quotes-c:8080
`)
	writeYAML(t, dir, "qa.yaml", `
app:
  environment: qa
storage:
  backend: redis
  redis:
    address: cache:6379
`)

	t.Setenv("APP_LOG_LEVEL", "warn")
	t.Setenv("APP_STORAGE_REDIS_DB", "3")

	cfg, err := Load("qa")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 45*time.Second, cfg.Sync.Interval, "base")
	assert.Equal(t, "text", cfg.Sync.Identity, "base")
	assert.Equal(t, []string{"http://quotes-b:8080", "http://quotes-c:8080"}, cfg.Remote.Peers, "base")
	assert.Equal(t, "redis", cfg.Storage.Backend, "profile over base")
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Address, "profile")
	assert.Equal(t, "qa", cfg.App.Environment, "profile")
	assert.Equal(t, "warn", cfg.Log.Level, "environment")
	assert.Equal(t, 3, cfg.Storage.Redis.DB, "environment")
	assert.Equal(t, 10*time.Second, cfg.Sync.FetchTimeout, "default")
}

func TestLoad_MissingProfileIsSkipped(t *testing.T) {
	emptyConfigDir(t)

	cfg, err := Load("staging")
	require.NoError(t, err)
	assert.Equal(t, "quote-sync", cfg.App.Name)
}

func TestLoad_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(ConfigDirEnv, dir)

	writeYAML(t, dir, "prod.yaml", "sync: [interval")

	_, err := Load("prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `loading profile "prod"`)
}

func TestLoad_EnvironmentTypes(t *testing.T) {
	emptyConfigDir(t)

	t.Setenv("APP_SERVER_PORT", "9090")
	t.Setenv("APP_TELEMETRY_ENABLED", "true")
	t.Setenv("APP_SYNC_FETCH__TIMEOUT", "3s")
	t.Setenv("APP_CLIENT_RETRY_MULTIPLIER", "1.5")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 3*time.Second, cfg.Sync.FetchTimeout)
	assert.InDelta(t, 1.5, cfg.Client.Retry.Multiplier, 0)
}

func TestEnvKey(t *testing.T) {
	for in, want := range map[string]string{
		"APP_SERVER_PORT":                       "server.port",
		"APP_SYNC_FETCH__TIMEOUT":               "sync.fetch_timeout",
		"APP_STORAGE_REDIS_ADDRESS":             "storage.redis.address",
		"APP_CLIENT_CIRCUIT__BREAKER_TIMEOUT":   "client.circuit_breaker.timeout",
		"APP_CLIENT_TRANSPORT_MAX__IDLE__CONNS": "client.transport.max_idle_conns",
	} {
		assert.Equal(t, want, envKey(in), in)
	}
}
