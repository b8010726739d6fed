package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

func TestParseRecordsFormats(t *testing.T) {
	want := []core.DeletableRecord{
		{BillID: "B1", BillPaymentID: "P1", DeleteStrategy: core.StrategyBoth},
		{BillID: "B2", DeleteStrategy: core.StrategyBillOnly},
	}

	cases := map[string]string{
		"yaml list": `
- bill_id: " B1 "
  bill_payment_id: P1
  delete_strategy: BOTH
- bill_id: B2
  delete_strategy: bill-only
`,
		"yaml document": `
records:
  - {bill_id: B1, bill_payment_id: P1, delete_strategy: both}
  - {bill_id: B2, delete_strategy: bill_only}
`,
		"json list":     `[{"bill_id":"B1","bill_payment_id":"P1","delete_strategy":"both"},{"bill_id":"B2","delete_strategy":"bill_only"}]`,
		"json document": `{"records":[{"bill_id":"B1","bill_payment_id":"P1","delete_strategy":"Both"},{"bill_id":"B2","delete_strategy":"BILL_ONLY"}]}`,
	}

	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			records, err := parseRecords([]byte(input))
			require.NoError(t, err)
			assert.Equal(t, want, records)
		})
	}
}

func TestParseRecordsKeepsUnknownStrategy(t *testing.T) {
	records, err := parseRecords([]byte(`[{"bill_id":"B1","delete_strategy":"everything"}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, core.DeleteStrategy("everything"), records[0].DeleteStrategy)
}

func TestParseRecordsRejectsEmptyAndMalformed(t *testing.T) {
	_, err := parseRecords([]byte("   \n"))
	require.Error(t, err)

	_, err = parseRecords([]byte(`[{"bill_id":`))
	require.Error(t, err)
}

func TestReadRecordsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- bill_payment_id: P9\n  delete_strategy: payment_only\n"), 0o644))

	records, err := readRecordsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []core.DeletableRecord{{BillPaymentID: "P9", DeleteStrategy: core.StrategyPaymentOnly}}, records)

	_, err = readRecordsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParseBills(t *testing.T) {
	t.Run("json list keeps payload bytes", func(t *testing.T) {
		bills, err := parseBills([]byte(`[{"VendorRef":{"value":"56"},"TotalAmt":10.50}]`))
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.Equal(t, `{"VendorRef":{"value":"56"},"TotalAmt":10.50}`, string(bills[0]))
	})

	t.Run("json single object", func(t *testing.T) {
		bills, err := parseBills([]byte(`{"VendorRef":{"value":"56"}}`))
		require.NoError(t, err)
		require.Len(t, bills, 1)
		assert.JSONEq(t, `{"VendorRef":{"value":"56"}}`, string(bills[0]))
	})

	t.Run("json document", func(t *testing.T) {
		bills, err := parseBills([]byte(`{"bills":[{"VendorRef":{"value":"1"}},{"VendorRef":{"value":"2"}}]}`))
		require.NoError(t, err)
		assert.Len(t, bills, 2)
	})

	t.Run("yaml list", func(t *testing.T) {
		bills, err := parseBills([]byte("- VendorRef:\n    value: \"56\"\n  Line: []\n"))
		require.NoError(t, err)
		require.Len(t, bills, 1)

		var decoded map[string]any
		require.NoError(t, json.Unmarshal(bills[0], &decoded))
		assert.Equal(t, map[string]any{"value": "56"}, decoded["VendorRef"])
	})

	t.Run("yaml scalar rejected", func(t *testing.T) {
		_, err := parseBills([]byte("- just a string\n"))
		require.Error(t, err)
	})
}

func TestResolveIDRecords(t *testing.T) {
	kind, records, err := resolveIDRecords([]string{"B1", " ", "B2"}, nil)
	require.NoError(t, err)
	assert.Equal(t, core.EntityBill, kind)
	assert.Len(t, records, 2)

	kind, records, err = resolveIDRecords(nil, []string{"P1"})
	require.NoError(t, err)
	assert.Equal(t, core.EntityBillPayment, kind)
	assert.Equal(t, core.StrategyPaymentOnly, records[0].DeleteStrategy)

	_, _, err = resolveIDRecords([]string{"B1"}, []string{"P1"})
	require.Error(t, err)

	kind, records, err = resolveIDRecords(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, kind)
	assert.Nil(t, records)
}

func TestDeleteRequestFromFlags(t *testing.T) {
	_, err := deleteRequestFromFlags("", nil, nil)
	require.Error(t, err)

	_, err = deleteRequestFromFlags("records.yaml", []string{"B1"}, nil)
	require.Error(t, err)

	req, err := deleteRequestFromFlags("", nil, []string{"P1", "P2"})
	require.NoError(t, err)
	assert.Equal(t, core.EntityBillPayment, req.EntityType)
	assert.Len(t, req.Records, 2)

	_, err = deleteRequestFromFlags("", []string{" "}, nil)
	require.Error(t, err)
}
