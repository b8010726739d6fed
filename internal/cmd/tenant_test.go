package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/output"
)

func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	addAccountingFlags(cmd)
	addOutputFlags(cmd)
	require.NoError(t, cmd.ParseFlags(args))
	return cmd
}

func TestAccountingOverridesOnlyChangedFlags(t *testing.T) {
	cmd := newFlagCommand(t)
	assert.Empty(t, accountingOverrides(cmd))

	cmd = newFlagCommand(t, "--realm-id", " 4620 ", "--requests-per-minute", "120", "--delay", "250ms", "--no-persist")
	assert.Equal(t, map[string]any{
		"accounting": map[string]any{"realm_id": "4620"},
		"throttle": map[string]any{
			"requests_per_minute":    120,
			"delay_between_requests": "250ms",
			"persist":                false,
		},
	}, accountingOverrides(cmd))
}

func TestTenantFromConfig(t *testing.T) {
	cfg := &config.Config{Accounting: config.AccountingConfig{BaseURL: "https://example.test"}}
	_, err := tenantFromConfig(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access token")
	assert.Contains(t, err.Error(), "realm id")
	assert.NotContains(t, err.Error(), "base url")

	cfg.Accounting.AccessToken = " tok "
	cfg.Accounting.RealmID = "4620"
	ext, err := tenantFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "tok", ext.AccessToken)
	assert.Equal(t, "4620", ext.RealmID)
}

func TestNewSweepRuntimeWithoutPersistence(t *testing.T) {
	cfg := &config.Config{
		Throttle:   config.ThrottleConfig{RequestsPerMinute: 100, DelayBetweenRequests: 10 * time.Millisecond},
		Accounting: config.AccountingConfig{Timeout: time.Second},
	}
	runtime := newSweepRuntime(t.Context(), cfg)
	require.NotNil(t, runtime.Service)
	assert.Nil(t, runtime.store)
	assert.NoError(t, runtime.Close())
}

func TestReportFilename(t *testing.T) {
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	assert.Equal(t, "bulk_delete_advanced-4620-20260304T050607Z.json",
		reportFilename("BULK_DELETE_ADVANCED", "4620", at, output.FormatJSON))
	assert.Equal(t, "validate-20260304T050607Z.md", reportFilename("validate", "", at, output.FormatMarkdown))
	assert.Equal(t, "create-bills-r-1-20260304T050607Z.txt", reportFilename("create-bills", "r 1", at, output.FormatTable))
}

func TestWriteReportTargets(t *testing.T) {
	t.Run("stdout", func(t *testing.T) {
		cmd := newFlagCommand(t)
		var buf bytes.Buffer
		cmd.SetOut(&buf)

		path, err := writeReport(cmd, "report.txt", "hello")
		require.NoError(t, err)
		assert.Equal(t, "-", path)
		assert.Equal(t, "hello\n", buf.String())
	})

	t.Run("out-dir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "reports")
		cmd := newFlagCommand(t, "--out-dir", dir)

		path, err := writeReport(cmd, "report.json", "{}\n")
		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(path, filepath.Join("reports", "report.json")))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "{}\n", string(data))
	})

	t.Run("out and out-dir conflict", func(t *testing.T) {
		cmd := newFlagCommand(t, "--out", "a.txt", "--out-dir", t.TempDir())
		_, err := writeReport(cmd, "report.txt", "x")
		require.Error(t, err)
	})
}

func TestResolveFormatter(t *testing.T) {
	cmd := newFlagCommand(t, "--output", "md", "--show-log")
	format, formatter, err := resolveFormatter(cmd)
	require.NoError(t, err)
	assert.Equal(t, output.FormatMarkdown, format)
	assert.Equal(t, &output.MarkdownFormatter{ShowLog: true}, formatter)

	cmd = newFlagCommand(t, "--output", "csv")
	_, _, err = resolveFormatter(cmd)
	require.Error(t, err)
}
