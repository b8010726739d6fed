package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeriveStatus(t *testing.T) {
	ok := RecordOperation{Status: StatusSuccess}
	bad := RecordOperation{Status: StatusError}

	require.Equal(t, StatusError, DeriveStatus(nil))
	require.Equal(t, StatusSuccess, DeriveStatus([]RecordOperation{ok}))
	require.Equal(t, StatusSuccess, DeriveStatus([]RecordOperation{ok, ok}))
	require.Equal(t, StatusPartial, DeriveStatus([]RecordOperation{bad, ok}))
	require.Equal(t, StatusError, DeriveStatus([]RecordOperation{bad, bad}))
}

func TestSummarize(t *testing.T) {
	results := []*RecordOutcome{
		{
			Record:     DeletableRecord{BillID: "B1", DeleteStrategy: StrategyBillOnly},
			Status:     StatusSuccess,
			Operations: []RecordOperation{{Type: OperationDeleteBill, Status: StatusSuccess}},
		},
		{
			Record: DeletableRecord{BillID: "B2", BillPaymentID: "P2", DeleteStrategy: StrategyBoth},
			Status: StatusPartial,
			Operations: []RecordOperation{
				{Type: OperationDeleteBillPayment, Status: StatusError},
				{Type: OperationDeleteBill, Status: StatusSuccess},
			},
		},
		{
			Record: DeletableRecord{DeleteStrategy: StrategyPaymentOnly},
			Status: StatusError,
		},
		nil,
	}

	summary := Summarize(results)
	require.False(t, summary.Empty)
	require.Equal(t, 3, summary.TotalRequested)
	require.Equal(t, 1, summary.Successful)
	require.Equal(t, 1, summary.Partial)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 3, summary.TotalOperations)
	require.Equal(t, 2, summary.SuccessfulOperations)
	require.Equal(t, 1, summary.FailedOperations)
	require.NotNil(t, summary.SuccessRate)
	require.InDelta(t, 33.33, *summary.SuccessRate, 0.001)
	require.NotNil(t, summary.OperationSuccessRate)
	require.InDelta(t, 66.67, *summary.OperationSuccessRate, 0.001)
	require.Equal(t, 1, summary.Strategies["both"])
	require.Equal(t, 1, summary.Strategies["payment_only"])
}

func TestSummarizeEmptyBatch(t *testing.T) {
	summary := Summarize(nil)
	require.True(t, summary.Empty)
	require.Zero(t, summary.TotalRequested)
	require.Nil(t, summary.SuccessRate)
	require.Nil(t, summary.OperationSuccessRate)
}

func TestSummarizeWithoutOperations(t *testing.T) {
	summary := Summarize([]*RecordOutcome{{Status: StatusError}})
	require.NotNil(t, summary.SuccessRate)
	require.Equal(t, 0.0, *summary.SuccessRate)
	require.Nil(t, summary.OperationSuccessRate)
}

func TestParseDeleteStrategy(t *testing.T) {
	strategy, ok := ParseDeleteStrategy(" Payment-Only ")
	require.True(t, ok)
	require.Equal(t, StrategyPaymentOnly, strategy)
	require.True(t, strategy.DeletesPayment())
	require.False(t, strategy.DeletesBill())

	_, ok = ParseDeleteStrategy("everything")
	require.False(t, ok)
}

func TestRecordsFromIDs(t *testing.T) {
	records := RecordsFromIDs(EntityBillPayment, []string{"P1", " ", "P2"})
	require.Len(t, records, 2)
	require.Equal(t, "P1", records[0].BillPaymentID)
	require.Equal(t, StrategyPaymentOnly, records[0].DeleteStrategy)

	records = RecordsFromIDs(EntityBill, []string{"B1"})
	require.Equal(t, DeletableRecord{BillID: "B1", DeleteStrategy: StrategyBillOnly}, records[0])
}

func TestDeletableRecordNormalized(t *testing.T) {
	record := DeletableRecord{BillID: " B1 ", DeleteStrategy: "Payment-Only"}.Normalized()
	require.Equal(t, "B1", record.BillID)
	require.Equal(t, StrategyPaymentOnly, record.DeleteStrategy)

	unknown := DeletableRecord{DeleteStrategy: "all"}.Normalized()
	require.Equal(t, DeleteStrategy("all"), unknown.DeleteStrategy)
}
