package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/accounting"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
	apperrors "github.com/ledgersweep/ledgersweep/internal/errors"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

const maxRequestBody = 16 << 20

// SweepOptions configures the batch endpoints.
type SweepOptions struct {
	// DefaultBaseURL is used when a request omits base_url.
	DefaultBaseURL string

	// MaxRecords caps records (or bills) per request. Zero means no cap.
	MaxRecords int
}

// SweepHandlers serves the deletion, creation and validation endpoints.
type SweepHandlers struct {
	service *sweep.Service
	opts    SweepOptions
}

// NewSweepHandlers builds handlers over a service.
func NewSweepHandlers(service *sweep.Service, opts SweepOptions) *SweepHandlers {
	return &SweepHandlers{service: service, opts: opts}
}

// tenantRequest carries the per-request tenant. The token is never echoed.
type tenantRequest struct {
	AccessToken string `json:"access_token"`
	RealmID     string `json:"realm_id"`
	BaseURL     string `json:"base_url,omitempty"`
}

// DeleteRequest is the body of POST /v1/bulk-delete. Either Records or
// EntityType with EntityIDs must be set. Strict rejects records that only
// carry validation warnings.
type DeleteRequest struct {
	tenantRequest
	Records    []core.DeletableRecord `json:"records,omitempty"`
	EntityType string                 `json:"entity_type,omitempty"`
	EntityIDs  []string               `json:"entity_ids,omitempty"`
	Strict     bool                   `json:"strict,omitempty"`
}

// CreateRequest is the body of POST /v1/create-bills.
type CreateRequest struct {
	tenantRequest
	Bills []json.RawMessage `json:"bills"`
}

// ValidateRequest is the body of POST /v1/validate.
type ValidateRequest struct {
	Records []core.DeletableRecord `json:"records"`
}

// BulkDelete runs a dependent-delete batch and returns the full report.
func (h *SweepHandlers) BulkDelete(w http.ResponseWriter, r *http.Request) {
	var req DeleteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ext, ok := h.tenant(w, r, req.tenantRequest)
	if !ok {
		return
	}

	deleteReq := sweep.DeleteRequest{}
	switch {
	case len(req.Records) > 0:
		deleteReq.Records = normalizeRecords(req.Records)
		report := validate.Records(deleteReq.Records)
		if !report.Valid || (req.Strict && len(report.Warnings) > 0) {
			respondWithError(w, r, validationEnvelope(report))
			return
		}
		logWarnings(r, report.Warnings)
	case strings.TrimSpace(req.EntityType) != "" || len(req.EntityIDs) > 0:
		kind, ok := core.ParseEntityKind(req.EntityType)
		if !ok {
			respondWithError(w, r, apperrors.NewInvalidInputError(
				fmt.Sprintf("entity_type must be Bill or BillPayment, got %q", req.EntityType)))
			return
		}
		deleteReq.EntityType = kind
		deleteReq.Records = core.RecordsFromIDs(kind, req.EntityIDs)
		if len(deleteReq.Records) == 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError("entity_ids must contain at least one id"))
			return
		}
	default:
		respondWithError(w, r, apperrors.NewInvalidInputError("records or entity_type with entity_ids is required"))
		return
	}

	if !h.withinLimit(w, r, len(deleteReq.Records)) {
		return
	}

	report, err := h.service.Delete(r.Context(), ext, deleteReq)
	if err != nil {
		respondWithError(w, r, clientEnvelope(r, err))
		return
	}

	logBatch(r, report.Metadata, report.Summary.TotalRequested)
	writeJSON(w, http.StatusOK, report)
}

// CreateBills posts raw Bill payloads in order.
func (h *SweepHandlers) CreateBills(w http.ResponseWriter, r *http.Request) {
	var req CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ext, ok := h.tenant(w, r, req.tenantRequest)
	if !ok {
		return
	}
	if len(req.Bills) == 0 {
		respondWithError(w, r, apperrors.NewInvalidInputError("bills must contain at least one payload"))
		return
	}
	if !h.withinLimit(w, r, len(req.Bills)) {
		return
	}

	report, err := h.service.CreateBills(r.Context(), ext, req.Bills)
	if err != nil {
		respondWithError(w, r, clientEnvelope(r, err))
		return
	}

	logBatch(r, report.Metadata, report.Summary.TotalRequested)
	writeJSON(w, http.StatusOK, report)
}

// Validate runs the pre-flight checks without calling the accounting service.
func (h *SweepHandlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, validate.Records(normalizeRecords(req.Records)))
}

func (h *SweepHandlers) tenant(w http.ResponseWriter, r *http.Request, req tenantRequest) (core.ExternalConfig, bool) {
	ext := core.ExternalConfig{
		AccessToken: strings.TrimSpace(req.AccessToken),
		RealmID:     strings.TrimSpace(req.RealmID),
		BaseURL:     strings.TrimSpace(req.BaseURL),
	}
	if ext.BaseURL == "" {
		ext.BaseURL = h.opts.DefaultBaseURL
	}
	if ext.AccessToken == "" || ext.RealmID == "" {
		respondWithError(w, r, apperrors.NewCredentialsMissingError("access_token and realm_id are required"))
		return ext, false
	}
	return ext, true
}

func (h *SweepHandlers) withinLimit(w http.ResponseWriter, r *http.Request, count int) bool {
	if h.opts.MaxRecords <= 0 || count <= h.opts.MaxRecords {
		return true
	}
	respondWithError(w, r, apperrors.NewPayloadTooLargeError(
		fmt.Sprintf("request has %d items, limit is %d", count, h.opts.MaxRecords)))
	return false
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, r, apperrors.NewPayloadTooLargeError("request body too large"))
			return false
		}
		respondWithError(w, r, apperrors.WrapInvalidInput(r.Context(), err, "request body must be valid JSON"))
		return false
	}
	return true
}

func normalizeRecords(records []core.DeletableRecord) []core.DeletableRecord {
	normalized := make([]core.DeletableRecord, len(records))
	for i, record := range records {
		normalized[i] = record.Normalized()
	}
	return normalized
}

func validationEnvelope(report *validate.Report) error {
	envelope := apperrors.NewValidationError("records failed validation")
	return envelope.WithDetails(map[string]interface{}{
		"errors":   report.Errors,
		"warnings": report.Warnings,
	})
}

func clientEnvelope(r *http.Request, err error) error {
	if errors.Is(err, accounting.ErrMissingCredentials) {
		return apperrors.Wrap(r.Context(), apperrors.CodeCredentialsMissing, err, "access_token, realm_id and base_url are required")
	}
	return apperrors.WrapInvalidInput(r.Context(), err, "invalid accounting client configuration")
}

func logBatch(r *http.Request, meta sweep.Metadata, count int) {
	if observability.ServerLogger == nil {
		return
	}
	observability.ServerLogger.Info("Batch request served",
		zap.String("path", r.URL.Path),
		zap.String("operation", meta.Operation),
		zap.String("realm_id", meta.RealmID),
		zap.Int("items", count),
		zap.Duration("duration", time.Duration(meta.DurationMs)*time.Millisecond),
	)
}

func logWarnings(r *http.Request, warnings []string) {
	if len(warnings) == 0 || observability.ServerLogger == nil {
		return
	}
	observability.ServerLogger.Warn("Records have validation warnings",
		zap.String("path", r.URL.Path),
		zap.Strings("warnings", warnings),
	)
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
