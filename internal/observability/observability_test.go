package observability

import (
	"testing"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestInitCLILogger(t *testing.T) {
	for _, level := range []string{"", "debug", "warn", "error", "bogus"} {
		require.NoError(t, InitCLILogger("ledgersweep-test", level, false), level)
		require.NotNil(t, CLILogger)
		CLILogger.Info("cli logger ready", zap.String("level", level))
	}

	require.NoError(t, InitCLILogger("ledgersweep-test", "error", true))
	CLILogger.Debug("verbose wins over configured level")
}

func TestInitServerLoggerProfiles(t *testing.T) {
	require.NoError(t, InitServerLogger(ServerLoggerOptions{
		Service:   "ledgersweep-test",
		Level:     "info",
		Namespace: "ledgersweep",
	}))
	require.NotNil(t, ServerLogger)
	ServerLogger.Info("structured", zap.String("realm_id", "4620"), zap.Int("records", 3))

	require.NoError(t, InitServerLogger(ServerLoggerOptions{
		Service: "ledgersweep-test",
		Level:   "debug",
		Profile: "SIMPLE",
	}))
	ServerLogger.Debug("simple profile")
}

func TestNormalizeLevel(t *testing.T) {
	cases := map[string]string{
		"trace":   "TRACE",
		" DEBUG ": "DEBUG",
		"warning": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"chatty":  "INFO",
	}
	for in, want := range cases {
		assert.Equal(t, want, normalizeLevel(in), in)
	}
}

func TestDisableMetrics(t *testing.T) {
	DisableMetrics()
	assert.Nil(t, TelemetrySystem)
	assert.Nil(t, PrometheusExporter)
}

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("127.0.0.1:9091")
	require.NoError(t, err)
	assert.Equal(t, 9091, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestCrucibleVersionAvailable(t *testing.T) {
	version := crucible.GetVersion()
	assert.NotEmpty(t, version.Gofulmen)
	assert.NotEmpty(t, version.Crucible)
}
