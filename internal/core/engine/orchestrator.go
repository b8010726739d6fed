package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/metrics"
)

// Orchestrator runs dependent deletes for a batch of records. Records are
// processed sequentially in input order; within a record the BillPayment is
// always deleted before the Bill it pays.
type Orchestrator struct {
	Client EntityClient

	// OnRecord, when set, is called after each record is classified.
	OnRecord func(index int, outcome *core.RecordOutcome)

	Clock func() time.Time
}

// EntityClient is the subset of the accounting client the orchestrator drives.
type EntityClient interface {
	ReadBill(ctx context.Context, id string) (*core.Entity, error)
	ReadBillPayment(ctx context.Context, id string) (*core.Entity, error)
	DeleteBill(ctx context.Context, id, syncToken string) (json.RawMessage, error)
	DeleteBillPayment(ctx context.Context, id, syncToken string) (json.RawMessage, error)
	Operations() []core.OperationLogEntry
}

// MissingReferenceError reports a record whose strategy needs an id it does not carry.
type MissingReferenceError struct {
	Strategy core.DeleteStrategy
}

func (e *MissingReferenceError) Error() string {
	strategy := string(e.Strategy)
	if strategy == "" {
		strategy = "unset"
	}
	return fmt.Sprintf("No operations performed - check that the ids required by strategy %q are present", strategy)
}

// DeleteRecords processes every record and returns one outcome per input
// record, in order, plus the client's operation log. It never returns an
// error; failures are captured per record.
func (o *Orchestrator) DeleteRecords(ctx context.Context, records []core.DeletableRecord) *core.BatchResult {
	if ctx == nil {
		ctx = context.Background()
	}

	results := make([]*core.RecordOutcome, 0, len(records))
	for i, record := range records {
		var outcome *core.RecordOutcome
		if err := ctx.Err(); err != nil {
			outcome = o.failed(record, "batch cancelled: "+err.Error())
		} else {
			outcome = o.processRecord(ctx, record)
		}

		results = append(results, outcome)
		metrics.RecordRecordOutcome(string(outcome.Status))
		if o.OnRecord != nil {
			o.OnRecord(i, outcome)
		}
	}

	result := &core.BatchResult{Results: results, OperationLogs: []core.OperationLogEntry{}}
	if o.Client != nil {
		result.OperationLogs = o.Client.Operations()
	}
	return result
}

func (o *Orchestrator) processRecord(ctx context.Context, record core.DeletableRecord) (outcome *core.RecordOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcome = o.failed(record, fmt.Sprintf("Unexpected error processing record: %v", r))
		}
	}()

	ops := make([]core.RecordOperation, 0, 2)
	errs := []string{}

	if record.DeleteStrategy.DeletesPayment() && strings.TrimSpace(record.BillPaymentID) != "" {
		op := o.deleteStep(ctx, core.OperationDeleteBillPayment, strings.TrimSpace(record.BillPaymentID),
			o.Client.ReadBillPayment, o.Client.DeleteBillPayment)
		ops = append(ops, op)
		if op.Status != core.StatusSuccess {
			errs = append(errs, "BillPayment deletion failed: "+op.Error)
		}
	}

	if record.DeleteStrategy.DeletesBill() && strings.TrimSpace(record.BillID) != "" {
		op := o.deleteStep(ctx, core.OperationDeleteBill, strings.TrimSpace(record.BillID),
			o.Client.ReadBill, o.Client.DeleteBill)
		ops = append(ops, op)
		if op.Status != core.StatusSuccess {
			errs = append(errs, "Bill deletion failed: "+op.Error)
		}
	}

	if len(ops) == 0 {
		errs = append(errs, (&MissingReferenceError{Strategy: record.DeleteStrategy}).Error())
	}

	return &core.RecordOutcome{
		Record:      record,
		Operations:  ops,
		Status:      core.DeriveStatus(ops),
		Errors:      errs,
		CompletedAt: o.now(),
	}
}

type readFunc func(ctx context.Context, id string) (*core.Entity, error)
type deleteFunc func(ctx context.Context, id, syncToken string) (json.RawMessage, error)

// deleteStep reads the entity for its sync token and then deletes it. A read
// failure ends the step without a delete attempt.
func (o *Orchestrator) deleteStep(ctx context.Context, opType core.OperationType, id string, read readFunc, del deleteFunc) core.RecordOperation {
	op := core.RecordOperation{Type: opType, EntityID: id}

	entity, err := read(ctx, id)
	if err != nil {
		op.Status = core.StatusError
		op.Error = err.Error()
		return op
	}

	result, err := del(ctx, id, entity.SyncToken)
	if err != nil {
		op.Status = core.StatusError
		op.Error = err.Error()
		return op
	}

	op.Status = core.StatusSuccess
	op.Result = result
	return op
}

func (o *Orchestrator) failed(record core.DeletableRecord, message string) *core.RecordOutcome {
	return &core.RecordOutcome{
		Record:      record,
		Operations:  []core.RecordOperation{},
		Status:      core.StatusError,
		Errors:      []string{message},
		CompletedAt: o.now(),
	}
}

func (o *Orchestrator) now() time.Time {
	if o != nil && o.Clock != nil {
		return o.Clock()
	}
	return time.Now().UTC()
}
