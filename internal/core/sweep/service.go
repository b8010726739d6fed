// Package sweep runs complete deletion and creation batches for one tenant:
// it builds the throttled client, drives the orchestrator and assembles the
// report handed back to the CLI and the HTTP API.
package sweep

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/accounting"
	"github.com/ledgersweep/ledgersweep/internal/core/engine"
	"github.com/ledgersweep/ledgersweep/internal/metrics"
)

// Batch operation names reported in metadata.
const (
	OperationBulkDelete         = "BULK_DELETE"
	OperationBulkDeleteAdvanced = "BULK_DELETE_ADVANCED"
	OperationCreate             = "CREATE"
)

// Options configures a Service.
type Options struct {
	Throttle       core.ThrottleConfig
	Timeout        time.Duration
	MaxBackoffWait time.Duration

	// Limiter shares window and backoff state across processes. Nil disables it.
	Limiter *engine.RateLimiter

	Logger        *logging.Logger
	ClientOptions []accounting.Option
	Clock         func() time.Time
}

// Service runs batches. Each batch gets its own client, so the operation
// log in a report covers exactly that batch.
type Service struct {
	opts Options
}

// New builds a service.
func New(opts Options) *Service {
	return &Service{opts: opts}
}

// Metadata describes how a batch was executed.
type Metadata struct {
	Operation  string              `json:"operation"`
	EntityType core.EntityKind     `json:"entity_type,omitempty"`
	RealmID    string              `json:"realm_id"`
	ExecutedAt time.Time           `json:"executed_at"`
	DurationMs int64               `json:"duration_ms"`
	Throttle   core.ThrottleConfig `json:"throttle"`
}

// Report is the result of a deletion batch.
type Report struct {
	Success       bool                     `json:"success"`
	Results       []*core.RecordOutcome    `json:"results"`
	Summary       core.Summary             `json:"summary"`
	OperationLogs []core.OperationLogEntry `json:"operation_logs"`
	Metadata      Metadata                 `json:"metadata"`
}

// DeleteRequest carries per-batch options.
type DeleteRequest struct {
	Records []core.DeletableRecord

	// EntityType is set for plain id-list batches.
	EntityType core.EntityKind

	OnRecord func(index int, outcome *core.RecordOutcome)
}

// NewClient builds a client for the tenant with the service's throttle.
func (s *Service) NewClient(ext core.ExternalConfig) (*accounting.Client, error) {
	opts := []accounting.Option{}
	if s.opts.Timeout > 0 {
		opts = append(opts, accounting.WithTransport(accounting.NewHTTPTransport(s.opts.Timeout)))
	}
	if s.opts.Limiter != nil {
		opts = append(opts, accounting.WithRateLimiter(s.opts.Limiter, s.opts.MaxBackoffWait))
	}
	if s.opts.Clock != nil {
		opts = append(opts, accounting.WithClock(s.opts.Clock))
	}
	if s.opts.Logger != nil {
		opts = append(opts, accounting.WithLogger(s.opts.Logger))
	}
	opts = append(opts, s.opts.ClientOptions...)
	return accounting.NewClient(ext, s.opts.Throttle, opts...)
}

// Delete runs a dependent-delete batch. The only error is a client that
// cannot be built; every record failure is reported in the result.
func (s *Service) Delete(ctx context.Context, ext core.ExternalConfig, req DeleteRequest) (*Report, error) {
	client, err := s.NewClient(ext)
	if err != nil {
		return nil, err
	}

	operation := OperationBulkDeleteAdvanced
	if req.EntityType != "" {
		operation = OperationBulkDelete
	}

	started := s.now()
	s.logInfo("Starting deletion batch",
		zap.String("operation", operation),
		zap.String("realm_id", ext.RealmID),
		zap.Int("records", len(req.Records)),
	)

	orchestrator := &engine.Orchestrator{
		Client: client,
		Clock:  s.opts.Clock,
		OnRecord: func(index int, outcome *core.RecordOutcome) {
			s.logDebug("Record processed",
				zap.Int("index", index),
				zap.String("status", string(outcome.Status)),
				zap.Strings("errors", outcome.Errors),
			)
			if req.OnRecord != nil {
				req.OnRecord(index, outcome)
			}
		},
	}
	batch := orchestrator.DeleteRecords(ctx, req.Records)
	finished := s.now()

	report := &Report{
		Success:       true,
		Results:       batch.Results,
		Summary:       core.Summarize(batch.Results),
		OperationLogs: batch.OperationLogs,
		Metadata: Metadata{
			Operation:  operation,
			EntityType: req.EntityType,
			RealmID:    ext.RealmID,
			ExecutedAt: finished,
			DurationMs: finished.Sub(started).Milliseconds(),
			Throttle:   client.Throttle(),
		},
	}

	metrics.RecordBatch(operation, len(req.Records), finished.Sub(started))
	s.logInfo("Deletion batch complete",
		zap.Int("successful", report.Summary.Successful),
		zap.Int("partial", report.Summary.Partial),
		zap.Int("failed", report.Summary.Failed),
		zap.Int("operations", len(report.OperationLogs)),
		zap.Duration("duration", finished.Sub(started)),
	)
	return report, nil
}

// CreateOutcome is the result of posting one Bill payload.
type CreateOutcome struct {
	Bill   json.RawMessage   `json:"bill_data"`
	Status core.RecordStatus `json:"status"`
	Result json.RawMessage   `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

// CreateSummary aggregates a creation batch.
type CreateSummary struct {
	TotalRequested int      `json:"total_requested"`
	Successful     int      `json:"successful"`
	Failed         int      `json:"failed"`
	SuccessRate    *float64 `json:"success_rate,omitempty"`
	Empty          bool     `json:"empty"`
}

// CreateReport is the result of a creation batch.
type CreateReport struct {
	Success       bool                     `json:"success"`
	Results       []CreateOutcome          `json:"results"`
	Summary       CreateSummary            `json:"summary"`
	OperationLogs []core.OperationLogEntry `json:"operation_logs"`
	Metadata      Metadata                 `json:"metadata"`
}

// CreateBills posts each payload in order through the throttled client.
func (s *Service) CreateBills(ctx context.Context, ext core.ExternalConfig, bills []json.RawMessage) (*CreateReport, error) {
	client, err := s.NewClient(ext)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	started := s.now()
	s.logInfo("Starting creation batch", zap.String("realm_id", ext.RealmID), zap.Int("bills", len(bills)))

	results := make([]CreateOutcome, 0, len(bills))
	summary := CreateSummary{TotalRequested: len(bills)}
	for _, bill := range bills {
		outcome := CreateOutcome{Bill: bill}
		if err := ctx.Err(); err != nil {
			outcome.Status = core.StatusError
			outcome.Error = "batch cancelled: " + err.Error()
		} else if result, err := client.CreateBill(ctx, bill); err != nil {
			outcome.Status = core.StatusError
			outcome.Error = err.Error()
		} else {
			outcome.Status = core.StatusSuccess
			outcome.Result = result
		}

		if outcome.Status == core.StatusSuccess {
			summary.Successful++
		} else {
			summary.Failed++
		}
		results = append(results, outcome)
	}
	summary.Empty = summary.TotalRequested == 0
	summary.SuccessRate = core.Rate(summary.Successful, summary.TotalRequested)

	finished := s.now()
	metrics.RecordBatch(OperationCreate, len(bills), finished.Sub(started))
	s.logInfo("Creation batch complete",
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", finished.Sub(started)),
	)

	return &CreateReport{
		Success:       true,
		Results:       results,
		Summary:       summary,
		OperationLogs: client.Operations(),
		Metadata: Metadata{
			Operation:  OperationCreate,
			EntityType: core.EntityBill,
			RealmID:    ext.RealmID,
			ExecutedAt: finished,
			DurationMs: finished.Sub(started).Milliseconds(),
			Throttle:   client.Throttle(),
		},
	}, nil
}

func (s *Service) now() time.Time {
	if s.opts.Clock != nil {
		return s.opts.Clock()
	}
	return time.Now().UTC()
}

func (s *Service) logInfo(msg string, fields ...zap.Field) {
	if s.opts.Logger != nil {
		s.opts.Logger.Info(msg, fields...)
	}
}

func (s *Service) logDebug(msg string, fields ...zap.Field) {
	if s.opts.Logger != nil {
		s.opts.Logger.Debug(msg, fields...)
	}
}
