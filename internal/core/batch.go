package core

import (
	"encoding/json"
	"strings"
	"time"
)

// DeleteStrategy selects which side(s) of a Bill/BillPayment pair to delete.
type DeleteStrategy string

const (
	StrategyBillOnly    DeleteStrategy = "bill_only"
	StrategyBoth        DeleteStrategy = "both"
	StrategyPaymentOnly DeleteStrategy = "payment_only"
)

// ParseDeleteStrategy validates and normalizes a strategy name.
func ParseDeleteStrategy(value string) (DeleteStrategy, bool) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	switch DeleteStrategy(normalized) {
	case StrategyBillOnly, StrategyBoth, StrategyPaymentOnly:
		return DeleteStrategy(normalized), true
	default:
		return "", false
	}
}

// DeletesPayment reports whether the strategy includes the BillPayment step.
func (s DeleteStrategy) DeletesPayment() bool {
	return s == StrategyBoth || s == StrategyPaymentOnly
}

// DeletesBill reports whether the strategy includes the Bill step.
func (s DeleteStrategy) DeletesBill() bool {
	return s == StrategyBoth || s == StrategyBillOnly
}

// DeletableRecord is one logical deletion request supplied by the caller.
type DeletableRecord struct {
	BillID         string         `json:"bill_id,omitempty" yaml:"bill_id"`
	BillPaymentID  string         `json:"bill_payment_id,omitempty" yaml:"bill_payment_id"`
	DocNumber      string         `json:"doc_number,omitempty" yaml:"doc_number"`
	DeleteStrategy DeleteStrategy `json:"delete_strategy" yaml:"delete_strategy"`
}

// Normalized trims ids and canonicalizes the strategy spelling. Unknown
// strategies are left as given so validation can report them.
func (r DeletableRecord) Normalized() DeletableRecord {
	r.BillID = strings.TrimSpace(r.BillID)
	r.BillPaymentID = strings.TrimSpace(r.BillPaymentID)
	r.DocNumber = strings.TrimSpace(r.DocNumber)
	if strategy, ok := ParseDeleteStrategy(string(r.DeleteStrategy)); ok {
		r.DeleteStrategy = strategy
	}
	return r
}

// RecordsFromIDs builds single-entity records for a plain list of ids.
func RecordsFromIDs(kind EntityKind, ids []string) []DeletableRecord {
	records := make([]DeletableRecord, 0, len(ids))
	for _, raw := range ids {
		id := strings.TrimSpace(raw)
		if id == "" {
			continue
		}
		switch kind {
		case EntityBillPayment:
			records = append(records, DeletableRecord{BillPaymentID: id, DeleteStrategy: StrategyPaymentOnly})
		default:
			records = append(records, DeletableRecord{BillID: id, DeleteStrategy: StrategyBillOnly})
		}
	}
	return records
}

// OperationType names a deletion step within a record.
type OperationType string

const (
	OperationDeleteBill        OperationType = "DELETE_BILL"
	OperationDeleteBillPayment OperationType = "DELETE_BILLPAYMENT"
)

// RecordStatus classifies a record or a step.
type RecordStatus string

const (
	StatusSuccess RecordStatus = "SUCCESS"
	StatusPartial RecordStatus = "PARTIAL"
	StatusError   RecordStatus = "ERROR"
)

// RecordOperation is one deletion step attempted for a record.
type RecordOperation struct {
	Type     OperationType   `json:"type"`
	EntityID string          `json:"entity_id"`
	Status   RecordStatus    `json:"status"`
	Result   json.RawMessage `json:"result,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// RecordOutcome is the classified result for one input record.
type RecordOutcome struct {
	Record      DeletableRecord   `json:"original_record"`
	Operations  []RecordOperation `json:"operations"`
	Status      RecordStatus      `json:"status"`
	Errors      []string          `json:"errors"`
	CompletedAt time.Time         `json:"completed_at"`
}

// BatchResult is everything a deletion batch hands back to its caller.
type BatchResult struct {
	Results       []*RecordOutcome    `json:"results"`
	OperationLogs []OperationLogEntry `json:"operation_logs"`
}

// DeriveStatus classifies a record purely from its attempted operations.
// An empty list is an error: nothing was done.
func DeriveStatus(ops []RecordOperation) RecordStatus {
	if len(ops) == 0 {
		return StatusError
	}

	succeeded, failed := 0, 0
	for _, op := range ops {
		if op.Status == StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}

	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusError
	default:
		return StatusPartial
	}
}
