package core

import (
	"encoding/json"
	"strings"
	"time"
)

// EntityKind identifies an accounting entity type.
type EntityKind string

const (
	EntityBill        EntityKind = "Bill"
	EntityBillPayment EntityKind = "BillPayment"
)

// ParseEntityKind normalizes user input into an EntityKind.
func ParseEntityKind(value string) (EntityKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "bill", "bills":
		return EntityBill, true
	case "billpayment", "billpayments", "bill_payment", "bill-payment":
		return EntityBillPayment, true
	default:
		return "", false
	}
}

// Path returns the lowercase resource segment used in service URLs.
func (k EntityKind) Path() string {
	return strings.ToLower(string(k))
}

// Operation is the kind of external call recorded in the operation log.
type Operation string

const (
	OperationRead   Operation = "READ"
	OperationCreate Operation = "CREATE"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// LogStatus is the outcome of a single external call.
type LogStatus string

const (
	LogStatusSuccess   LogStatus = "SUCCESS"
	LogStatusError     LogStatus = "ERROR"
	LogStatusThrottled LogStatus = "THROTTLED"
)

// ExternalConfig holds the credentials and endpoint for one tenant.
type ExternalConfig struct {
	AccessToken string `json:"-" yaml:"-"`
	RealmID     string `json:"realm_id" yaml:"realm_id"`
	BaseURL     string `json:"base_url" yaml:"base_url"`
}

// ThrottleConfig governs request pacing for a client.
type ThrottleConfig struct {
	RequestsPerMinute    int           `json:"requests_per_minute"`
	DelayBetweenRequests time.Duration `json:"delay_between_requests"`
}

// DefaultThrottle matches the accounting service's published ceiling with headroom.
var DefaultThrottle = ThrottleConfig{
	RequestsPerMinute:    450,
	DelayBetweenRequests: 150 * time.Millisecond,
}

// OperationLogEntry records one attempted external call. Entries are never
// modified after they are appended.
type OperationLogEntry struct {
	ID         string          `json:"id"`
	Timestamp  time.Time       `json:"timestamp"`
	Operation  Operation       `json:"operation"`
	Entity     EntityKind      `json:"entity"`
	EntityID   string          `json:"entity_id,omitempty"`
	Request    map[string]any  `json:"request"`
	Response   json.RawMessage `json:"response"`
	Status     LogStatus       `json:"status"`
	Error      string          `json:"error,omitempty"`
	StatusCode int             `json:"status_code,omitempty"`
	DurationMs int64           `json:"duration_ms"`
	TenantID   string          `json:"tenant_id"`
}

// Entity is a decoded read response carrying the concurrency token.
type Entity struct {
	Kind      EntityKind      `json:"kind"`
	ID        string          `json:"id"`
	SyncToken string          `json:"sync_token"`
	Raw       json.RawMessage `json:"raw,omitempty"`
}

// RateLimitState is the persisted request window and backoff for one tenant.
type RateLimitState struct {
	RequestCount int
	WindowStart  time.Time
	BackoffUntil *time.Time
	Last429At    *time.Time
}
