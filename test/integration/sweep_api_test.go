package integration

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/server"
	"github.com/ledgersweep/ledgersweep/internal/server/handlers"
)

// fakeLedger records the order of calls it receives. Ids starting with
// "missing" are answered with a not-found Fault.
type fakeLedger struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeLedger) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		kind := "Bill"
		if strings.Contains(r.URL.Path, "/billpayment") {
			kind = "BillPayment"
		}
		id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]

		f.mu.Lock()
		if r.Method == http.MethodGet {
			f.calls = append(f.calls, "GET "+kind+" "+id)
		} else {
			f.calls = append(f.calls, "DELETE "+kind)
		}
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		if strings.HasPrefix(id, "missing") {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, `{"Fault":{"Error":[{"Message":"Object Not Found"}]}}`)
			return
		}
		if r.Method == http.MethodGet {
			_, _ = io.WriteString(w, `{"`+kind+`":{"Id":"`+id+`","SyncToken":"2"}}`)
			return
		}
		_, _ = io.WriteString(w, `{"`+kind+`":{"status":"Deleted"}}`)
	})
}

func TestBulkDeleteOverHTTP(t *testing.T) {
	initLoggers(t)
	initMetricsOrSkip(t)

	ledger := &fakeLedger{}
	upstream := httptest.NewServer(ledger.handler())
	t.Cleanup(upstream.Close)

	service := sweep.New(sweep.Options{
		Throttle: core.ThrottleConfig{RequestsPerMinute: 60000, DelayBetweenRequests: time.Millisecond},
	})
	ts, client := newTestServerWith(t, server.Options{
		Host:  "127.0.0.1",
		Sweep: handlers.NewSweepHandlers(service, handlers.SweepOptions{DefaultBaseURL: upstream.URL, MaxRecords: 10}),
	}, nil)

	body := `{"access_token":"tok","realm_id":"4620","records":[
		{"bill_id":"B1","bill_payment_id":"P1","delete_strategy":"both"},
		{"bill_id":"B2","delete_strategy":"bill_only"}
	]}`
	resp, err := client.Post(ts.URL+"/v1/bulk-delete", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var report sweep.Report
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.Equal(t, 2, report.Summary.Successful)
	assert.Len(t, report.OperationLogs, 6)

	// Payments go before the bills they pay.
	ledger.mu.Lock()
	calls := append([]string(nil), ledger.calls...)
	ledger.mu.Unlock()
	assert.Equal(t, []string{
		"GET BillPayment P1", "DELETE BillPayment",
		"GET Bill B1", "DELETE Bill",
		"GET Bill B2", "DELETE Bill",
	}, calls)

	metricsResp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	metricsBody, err := io.ReadAll(metricsResp.Body)
	require.NoError(t, metricsResp.Body.Close())
	require.NoError(t, err)
	assert.Contains(t, string(metricsBody), "accounting_calls_total")
	assert.Contains(t, string(metricsBody), "record_outcomes_total")
}

func TestValidateOverHTTP(t *testing.T) {
	initLoggers(t)

	service := sweep.New(sweep.Options{})
	ts, client := newTestServerWith(t, server.Options{
		Host:  "127.0.0.1",
		Sweep: handlers.NewSweepHandlers(service, handlers.SweepOptions{}),
	}, nil)

	resp, err := client.Post(ts.URL+"/v1/validate", "application/json",
		strings.NewReader(`{"records":[{"bill_payment_id":"P1","delete_strategy":"both"},{"delete_strategy":"bill_only"},{"bill_id":"B3","delete_strategy":"all"}]}`))
	require.NoError(t, err)
	defer resp.Body.Close() // nolint:errcheck
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var report struct {
		Valid    bool     `json:"valid"`
		Errors   []string `json:"errors"`
		Warnings []string `json:"warnings"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&report))
	assert.False(t, report.Valid)
	assert.Equal(t, []string{"Invalid delete_strategy in rows: 3"}, report.Errors)
	assert.Equal(t, []string{"Missing bill_id in rows: 2"}, report.Warnings)
}
