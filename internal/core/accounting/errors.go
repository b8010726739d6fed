package accounting

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// ErrMissingCredentials is returned by NewClient when the tenant config is incomplete.
var ErrMissingCredentials = errors.New("missing accounting credentials")

// NetworkError is a transport failure where no response was received.
// Its message is the transport's message, unchanged.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string {
	if e == nil || e.Err == nil {
		return "network error"
	}
	return e.Err.Error()
}

func (e *NetworkError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ApplicationError is a non-2xx response from the service.
type ApplicationError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *ApplicationError) Error() string {
	if e == nil {
		return "application error"
	}
	message := e.Message
	if message == "" {
		message = http.StatusText(e.StatusCode)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, message)
}

// Throttled reports whether the service rejected the call for rate reasons.
func (e *ApplicationError) Throttled() bool {
	return e != nil && e.StatusCode == http.StatusTooManyRequests
}

// ThrottledError means a stored backoff window blocked the call before it was sent.
type ThrottledError struct {
	Key        string
	RetryAfter time.Duration
}

func (e *ThrottledError) Error() string {
	if e == nil {
		return "rate limited"
	}
	return fmt.Sprintf("rate limited for %s, retry in %s", e.Key, e.RetryAfter.Round(time.Second))
}

// ReadError wraps a failed read. Error() is the underlying message.
type ReadError struct {
	Kind core.EntityKind
	ID   string
	Err  error
}

func (e *ReadError) Error() string { return e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// DeleteError wraps a failed delete. Error() is the underlying message.
type DeleteError struct {
	Kind core.EntityKind
	ID   string
	Err  error
}

func (e *DeleteError) Error() string { return e.Err.Error() }
func (e *DeleteError) Unwrap() error { return e.Err }

// CreateError wraps a failed create.
type CreateError struct {
	Kind core.EntityKind
	Err  error
}

func (e *CreateError) Error() string { return e.Err.Error() }
func (e *CreateError) Unwrap() error { return e.Err }

func isThrottled(err error) bool {
	var throttled *ThrottledError
	if errors.As(err, &throttled) {
		return true
	}
	var appErr *ApplicationError
	return errors.As(err, &appErr) && appErr.Throttled()
}
