package sweep

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/accounting"
)

func newFakeService(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		kind := "Bill"
		if strings.Contains(r.URL.Path, "/billpayment") {
			kind = "BillPayment"
		}

		switch {
		case r.Method == http.MethodGet:
			id := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
			if strings.HasPrefix(id, "missing") {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"Fault":{"Error":[{"Message":"Object Not Found"}]}}`)
				return
			}
			if strings.HasPrefix(id, "stale") {
				_, _ = io.WriteString(w, `{"`+kind+`":{"Id":"`+id+`"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"`+kind+`":{"Id":"`+id+`","SyncToken":"4"}}`)
		case r.URL.Query().Get("operation") == "delete":
			_, _ = io.WriteString(w, `{"`+kind+`":{"status":"Deleted"}}`)
		default:
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), "reject") {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = io.WriteString(w, `{"Fault":{"Error":[{"Message":"Required param missing"}]}}`)
				return
			}
			_, _ = io.WriteString(w, `{"Bill":{"Id":"900","SyncToken":"0"}}`)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testService() *Service {
	return New(Options{
		Throttle: core.ThrottleConfig{RequestsPerMinute: 60000, DelayBetweenRequests: time.Millisecond},
	})
}

func TestDeleteReport(t *testing.T) {
	server := newFakeService(t)
	ext := core.ExternalConfig{AccessToken: "tok", RealmID: "4620", BaseURL: server.URL}

	var progress []int
	report, err := testService().Delete(context.Background(), ext, DeleteRequest{
		Records: []core.DeletableRecord{
			{BillID: "B1", BillPaymentID: "P1", DeleteStrategy: core.StrategyBoth},
			{BillID: "B2", BillPaymentID: "missing-P2", DeleteStrategy: core.StrategyBoth},
			{DeleteStrategy: core.StrategyBillOnly},
		},
		OnRecord: func(index int, _ *core.RecordOutcome) { progress = append(progress, index) },
	})
	require.NoError(t, err)

	assert.True(t, report.Success)
	assert.Equal(t, []int{0, 1, 2}, progress)
	assert.Equal(t, OperationBulkDeleteAdvanced, report.Metadata.Operation)
	assert.Equal(t, "4620", report.Metadata.RealmID)

	summary := report.Summary
	assert.Equal(t, 3, summary.TotalRequested)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Partial)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.TotalOperations)
	assert.Equal(t, 3, summary.SuccessfulOperations)
	require.NotNil(t, summary.SuccessRate)
	assert.Equal(t, 33.33, *summary.SuccessRate)
	assert.Equal(t, 75.0, *summary.OperationSuccessRate)
	assert.Equal(t, 2, summary.Strategies["both"])

	// P1 read+delete, B1 read+delete, P2 read, B2 read+delete
	assert.Len(t, report.OperationLogs, 7)

	encoded, err := json.Marshal(report)
	require.NoError(t, err)
	assert.Contains(t, string(encoded), `"original_record"`)
	assert.NotContains(t, string(encoded), "tok\"")
}

func TestDeleteReadWithoutSyncTokenFailsStep(t *testing.T) {
	server := newFakeService(t)
	ext := core.ExternalConfig{AccessToken: "tok", RealmID: "4620", BaseURL: server.URL}

	report, err := testService().Delete(context.Background(), ext, DeleteRequest{
		Records: []core.DeletableRecord{
			{BillID: "stale-B1", BillPaymentID: "P1", DeleteStrategy: core.StrategyBoth},
		},
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 1)
	outcome := report.Results[0]
	assert.Equal(t, core.StatusPartial, outcome.Status)
	require.Len(t, outcome.Errors, 1)
	assert.Contains(t, outcome.Errors[0], "no SyncToken")

	// P1 read+delete, then the bill read that came back without a token.
	require.Len(t, report.OperationLogs, 3)
	read := report.OperationLogs[2]
	assert.Equal(t, core.OperationRead, read.Operation)
	assert.Equal(t, "stale-B1", read.EntityID)
	assert.Equal(t, core.LogStatusSuccess, read.Status)
	assert.Equal(t, http.StatusOK, read.StatusCode)
}

func TestDeleteIDList(t *testing.T) {
	server := newFakeService(t)
	ext := core.ExternalConfig{AccessToken: "tok", RealmID: "4620", BaseURL: server.URL}

	report, err := testService().Delete(context.Background(), ext, DeleteRequest{
		Records:    core.RecordsFromIDs(core.EntityBillPayment, []string{"P1", " ", "P2"}),
		EntityType: core.EntityBillPayment,
	})
	require.NoError(t, err)
	assert.Equal(t, OperationBulkDelete, report.Metadata.Operation)
	assert.Equal(t, core.EntityBillPayment, report.Metadata.EntityType)
	assert.Equal(t, 2, report.Summary.Successful)
	assert.Equal(t, 2, report.Summary.Strategies["payment_only"])
}

func TestDeleteMissingCredentials(t *testing.T) {
	_, err := testService().Delete(context.Background(), core.ExternalConfig{BaseURL: "https://example.test"}, DeleteRequest{})
	require.ErrorIs(t, err, accounting.ErrMissingCredentials)
}

func TestDeleteEmptyBatch(t *testing.T) {
	report, err := testService().Delete(context.Background(),
		core.ExternalConfig{AccessToken: "tok", RealmID: "1", BaseURL: "https://example.test"}, DeleteRequest{})
	require.NoError(t, err)
	assert.True(t, report.Summary.Empty)
	assert.Nil(t, report.Summary.SuccessRate)
	assert.Empty(t, report.OperationLogs)
}

func TestCreateBills(t *testing.T) {
	server := newFakeService(t)
	ext := core.ExternalConfig{AccessToken: "tok", RealmID: "4620", BaseURL: server.URL}

	report, err := testService().CreateBills(context.Background(), ext, []json.RawMessage{
		json.RawMessage(`{"VendorRef":{"value":"56"},"Line":[]}`),
		json.RawMessage(`{"VendorRef":{"value":"reject"}}`),
	})
	require.NoError(t, err)

	require.Len(t, report.Results, 2)
	assert.Equal(t, core.StatusSuccess, report.Results[0].Status)
	assert.Contains(t, string(report.Results[0].Result), `"900"`)
	assert.Equal(t, core.StatusError, report.Results[1].Status)
	assert.Contains(t, report.Results[1].Error, "Required param missing")

	assert.Equal(t, 1, report.Summary.Successful)
	assert.Equal(t, 1, report.Summary.Failed)
	assert.Equal(t, 50.0, *report.Summary.SuccessRate)
	assert.Len(t, report.OperationLogs, 2)
	assert.Equal(t, core.OperationCreate, report.OperationLogs[0].Operation)
	assert.Equal(t, OperationCreate, report.Metadata.Operation)
}
