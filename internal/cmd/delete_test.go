package cmd

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

type ledgerCalls struct {
	mu    sync.Mutex
	paths []string
}

func (l *ledgerCalls) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.paths = append(l.paths, call)
}

func (l *ledgerCalls) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.paths...)
}

func fakeLedger(t *testing.T) (*httptest.Server, *ledgerCalls) {
	t.Helper()
	calls := &ledgerCalls{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.add(r.Method + " " + r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		kind := "Bill"
		if strings.Contains(r.URL.Path, "/billpayment") {
			kind = "BillPayment"
		}
		if r.Method == http.MethodGet {
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			_, _ = io.WriteString(w, `{"`+kind+`":{"Id":"`+id+`","SyncToken":"3"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"`+kind+`":{"status":"Deleted"}}`)
	}))
	t.Cleanup(server.Close)
	return server, calls
}

func isolateConfig(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, ".local", "share"))
}

func runDeleteCommand(t *testing.T, baseURL string, records string, extra ...string) (*sweep.Report, error) {
	t.Helper()
	isolateConfig(t)

	path := filepath.Join(t.TempDir(), "records.json")
	require.NoError(t, os.WriteFile(path, []byte(records), 0o600))

	cmd := &cobra.Command{Use: "delete", RunE: runDelete, SilenceUsage: true, SilenceErrors: true}
	addDeleteFlags(cmd)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetContext(t.Context())
	cmd.SetArgs(append([]string{
		"--records", path,
		"--base-url", baseURL,
		"--realm-id", "4620",
		"--access-token", "tok",
		"--requests-per-minute", "60000",
		"--delay", "1ms",
		"--no-persist",
		"--output", "json",
	}, extra...))

	err := cmd.Execute()
	if out.Len() == 0 {
		return nil, err
	}
	var report sweep.Report
	require.NoError(t, json.Unmarshal(out.Bytes(), &report), out.String())
	return &report, err
}

func TestPreflight(t *testing.T) {
	warned := validate.Records([]core.DeletableRecord{{DeleteStrategy: core.StrategyBoth}})
	require.True(t, warned.Valid)
	assert.NoError(t, preflight(warned, false))

	var cmdErr *CommandError
	require.ErrorAs(t, preflight(warned, true), &cmdErr)
	assert.Equal(t, foundry.ExitFailure, cmdErr.Code)

	invalid := validate.Records([]core.DeletableRecord{{BillID: "B1", DeleteStrategy: "everything"}})
	require.ErrorAs(t, preflight(invalid, false), &cmdErr)
	assert.Contains(t, cmdErr.Error(), "Invalid delete_strategy in rows: 1")
}

func TestDeleteBothWithOnlyBillID(t *testing.T) {
	server, calls := fakeLedger(t)

	report, err := runDeleteCommand(t, server.URL, `[{"bill_id":"B1","delete_strategy":"both"}]`)
	require.NoError(t, err)
	require.NotNil(t, report)
	require.Len(t, report.Results, 1)
	assert.Equal(t, core.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, []string{
		"GET /v3/company/4620/bill/B1",
		"POST /v3/company/4620/bill",
	}, calls.all())
}

func TestDeleteMissingIDsFailPerRecord(t *testing.T) {
	server, calls := fakeLedger(t)

	report, err := runDeleteCommand(t, server.URL, `[
		{"bill_id":"B1","delete_strategy":"bill_only"},
		{"delete_strategy":"payment_only"}
	]`)

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, foundry.ExitFailure, cmdErr.Code)
	assert.Equal(t, "Batch finished with failures", cmdErr.Msg)

	require.NotNil(t, report)
	require.Len(t, report.Results, 2)
	assert.Equal(t, core.StatusSuccess, report.Results[0].Status)
	assert.Equal(t, core.StatusError, report.Results[1].Status)
	require.Len(t, report.Results[1].Errors, 1)
	assert.Contains(t, report.Results[1].Errors[0], "No operations performed")
	assert.Len(t, calls.all(), 2)
}

func TestDeleteStrictStopsBeforeCalls(t *testing.T) {
	server, calls := fakeLedger(t)

	report, err := runDeleteCommand(t, server.URL, `[
		{"bill_id":"B1","delete_strategy":"bill_only"},
		{"delete_strategy":"payment_only"}
	]`, "--strict")

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Contains(t, cmdErr.Error(), "Missing bill_payment_id in rows: 2")
	assert.Nil(t, report)
	assert.Empty(t, calls.all())
}
