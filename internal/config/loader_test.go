package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateConfigHome(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
}

func TestLoadDefaults(t *testing.T) {
	isolateConfigHome(t)

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Server.Host)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, 5000, cfg.Server.MaxRecords)

	assert.Equal(t, "libsql", cfg.Store.Driver)
	assert.NotEmpty(t, cfg.Store.Path)

	assert.Equal(t, "https://sandbox-quickbooks.api.intuit.com", cfg.Accounting.BaseURL)
	assert.Equal(t, 30*time.Second, cfg.Accounting.Timeout)

	assert.Equal(t, 450, cfg.Throttle.RequestsPerMinute)
	assert.Equal(t, 150*time.Millisecond, cfg.Throttle.DelayBetweenRequests)
	assert.Equal(t, 5*time.Second, cfg.Throttle.MaxBackoffWait)
	assert.True(t, cfg.Throttle.Persist)

	assert.Equal(t, 0.9, cfg.RateLimitMargin)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, 9090, cfg.Metrics.Port)
	assert.Same(t, cfg, GetConfig())
}

func TestLoadEnvironmentOverrides(t *testing.T) {
	isolateConfigHome(t)
	t.Setenv("LEDGERSWEEP_REALM_ID", "9130")
	t.Setenv("LEDGERSWEEP_ACCESS_TOKEN", "env-token")
	t.Setenv("LEDGERSWEEP_REQUESTS_PER_MINUTE", "120")
	t.Setenv("LEDGERSWEEP_REQUEST_DELAY", "500ms")
	t.Setenv("LEDGERSWEEP_RATE_LIMIT_MARGIN", "0.5")

	cfg, err := Load(context.Background())
	require.NoError(t, err)

	ext := cfg.Accounting.External()
	assert.Equal(t, "9130", ext.RealmID)
	assert.Equal(t, "env-token", ext.AccessToken)
	assert.Equal(t, 120, cfg.Throttle.Pacing().RequestsPerMinute)
	assert.Equal(t, 500*time.Millisecond, cfg.Throttle.Pacing().DelayBetweenRequests)
	assert.Equal(t, 0.5, cfg.RateLimitMargin)
}

func TestLoadFileAndRuntimeOverrides(t *testing.T) {
	isolateConfigHome(t)
	t.Setenv("LEDGERSWEEP_REALM_ID", "from-env")

	path := filepath.Join(t.TempDir(), "ledgersweep.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
accounting:
  base_url: https://quickbooks.api.intuit.com
  realm_id: from-file
throttle:
  delay_between_requests: 1s
server:
  port: 9000
`), 0o600))

	cfg, err := LoadFile(context.Background(), path, map[string]any{
		"server": map[string]any{"port": 9100},
	})
	require.NoError(t, err)

	assert.Equal(t, "https://quickbooks.api.intuit.com", cfg.Accounting.BaseURL)
	assert.Equal(t, "from-env", cfg.Accounting.RealmID)
	assert.Equal(t, time.Second, cfg.Throttle.DelayBetweenRequests)
	assert.Equal(t, 450, cfg.Throttle.RequestsPerMinute)
	assert.Equal(t, 9100, cfg.Server.Port)
}

func TestLoadFileMissing(t *testing.T) {
	isolateConfigHome(t)
	_, err := LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config file not found")
}

func TestValidateRejectsNegativeThrottle(t *testing.T) {
	isolateConfigHome(t)
	_, err := Load(context.Background(), map[string]any{
		"throttle": map[string]any{"requests_per_minute": -1},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttle.requests_per_minute")
}
