// Package accounting talks to the external accounting service. Every call a
// Client makes goes through its single throttle lane and leaves exactly one
// entry in its operation log.
package accounting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/engine"
	"github.com/ledgersweep/ledgersweep/internal/core/oplog"
	"github.com/ledgersweep/ledgersweep/internal/metrics"
)

// Client is bound to one tenant. It is safe for concurrent use; calls are
// executed one at a time in submission order.
type Client struct {
	ext       core.ExternalConfig
	throttle  core.ThrottleConfig
	transport Transport
	queue     *engine.Queue
	log       *oplog.Log

	limiter    *engine.RateLimiter
	limiterKey string
	maxWait    time.Duration

	logger *logging.Logger
	clock  func() time.Time
	newID func() string
}

// Option customizes a Client.
type Option func(*Client)

// WithTransport replaces the HTTP transport.
func WithTransport(transport Transport) Option {
	return func(c *Client) {
		if transport != nil {
			c.transport = transport
		}
	}
}

// WithHTTPClient uses the given http.Client for the default transport.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.transport = &HTTPTransport{Client: client}
		}
	}
}

// WithRateLimiter guards calls with persisted window and backoff state. When a
// backoff is active the lane waits up to maxWait; longer backoffs fail the
// call with *ThrottledError.
func WithRateLimiter(limiter *engine.RateLimiter, maxWait time.Duration) Option {
	return func(c *Client) {
		c.limiter = limiter
		if maxWait > 0 {
			c.maxWait = maxWait
		}
	}
}

// WithLogger reports rate-state bookkeeping failures. They never fail a call.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithClock overrides the timestamp source for log entries.
func WithClock(clock func() time.Time) Option {
	return func(c *Client) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// NewClient validates the tenant configuration and builds a client. A zero
// throttle falls back to core.DefaultThrottle.
func NewClient(ext core.ExternalConfig, throttle core.ThrottleConfig, opts ...Option) (*Client, error) {
	var missing []string
	if strings.TrimSpace(ext.AccessToken) == "" {
		missing = append(missing, "access token")
	}
	if strings.TrimSpace(ext.RealmID) == "" {
		missing = append(missing, "realm id")
	}
	if strings.TrimSpace(ext.BaseURL) == "" {
		missing = append(missing, "base url")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
	}

	parsed, err := url.Parse(strings.TrimSpace(ext.BaseURL))
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", ext.BaseURL)
	}
	ext.BaseURL = strings.TrimRight(strings.TrimSpace(ext.BaseURL), "/")

	if throttle.RequestsPerMinute <= 0 && throttle.DelayBetweenRequests <= 0 {
		throttle = core.DefaultThrottle
	}

	c := &Client{
		ext:        ext,
		throttle:   throttle,
		transport:  NewHTTPTransport(30 * time.Second),
		queue:      engine.NewQueue(throttle),
		log:        &oplog.Log{},
		limiterKey: engine.LimiterKey(parsed.Host, ext.RealmID),
		maxWait:    5 * time.Second,
		clock:      func() time.Time { return time.Now().UTC() },
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

// Throttle returns the effective pacing configuration.
func (c *Client) Throttle() core.ThrottleConfig {
	return c.throttle
}

// LimiterKey returns the key used for persisted rate state.
func (c *Client) LimiterKey() string {
	return c.limiterKey
}

// Operations returns a snapshot of the operation log.
func (c *Client) Operations() []core.OperationLogEntry {
	return c.log.All()
}

// ClearOperations empties the operation log.
func (c *Client) ClearOperations() {
	c.log.Clear()
}

// ReadBill fetches a Bill and its current sync token.
func (c *Client) ReadBill(ctx context.Context, id string) (*core.Entity, error) {
	return c.read(ctx, core.EntityBill, id)
}

// ReadBillPayment fetches a BillPayment and its current sync token.
func (c *Client) ReadBillPayment(ctx context.Context, id string) (*core.Entity, error) {
	return c.read(ctx, core.EntityBillPayment, id)
}

// DeleteBill deletes a Bill using the sync token from a prior read.
func (c *Client) DeleteBill(ctx context.Context, id, syncToken string) (json.RawMessage, error) {
	return c.delete(ctx, core.EntityBill, id, syncToken)
}

// DeleteBillPayment deletes a BillPayment using the sync token from a prior read.
func (c *Client) DeleteBillPayment(ctx context.Context, id, syncToken string) (json.RawMessage, error) {
	return c.delete(ctx, core.EntityBillPayment, id, syncToken)
}

// CreateBill posts a Bill payload and returns the service response.
func (c *Client) CreateBill(ctx context.Context, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &CreateError{Kind: core.EntityBill, Err: fmt.Errorf("encode bill payload: %w", err)}
	}

	resp, err := c.execute(ctx, call{
		operation: core.OperationCreate,
		kind:      core.EntityBill,
		method:    http.MethodPost,
		url:       c.entityURL(core.EntityBill),
		payload:   payload,
		body:      body,
	})
	if err != nil {
		return nil, &CreateError{Kind: core.EntityBill, Err: err}
	}
	return logPayload(resp.Body), nil
}

// read logs every 2xx answer as SUCCESS. A body without a usable sync token
// still fails the read, so the step that needed it fails too.
func (c *Client) read(ctx context.Context, kind core.EntityKind, id string) (*core.Entity, error) {
	resp, err := c.execute(ctx, call{
		operation: core.OperationRead,
		kind:      kind,
		entityID:  id,
		method:    http.MethodGet,
		url:       c.entityURL(kind) + "/" + url.PathEscape(id),
	})
	if err != nil {
		return nil, &ReadError{Kind: kind, ID: id, Err: err}
	}

	entity, err := decodeEntity(kind, id, resp.Body)
	if err != nil {
		return nil, &ReadError{Kind: kind, ID: id, Err: err}
	}
	return entity, nil
}

func (c *Client) delete(ctx context.Context, kind core.EntityKind, id, syncToken string) (json.RawMessage, error) {
	payload := map[string]string{"Id": id, "SyncToken": syncToken}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DeleteError{Kind: kind, ID: id, Err: err}
	}

	resp, err := c.execute(ctx, call{
		operation: core.OperationDelete,
		kind:      kind,
		entityID:  id,
		method:    http.MethodPost,
		url:       c.entityURL(kind) + "?operation=delete",
		payload:   payload,
		body:      body,
	})
	if err != nil {
		return nil, &DeleteError{Kind: kind, ID: id, Err: err}
	}
	return logPayload(resp.Body), nil
}

func (c *Client) entityURL(kind core.EntityKind) string {
	return c.ext.BaseURL + "/v3/company/" + url.PathEscape(c.ext.RealmID) + "/" + kind.Path()
}

type call struct {
	operation core.Operation
	kind      core.EntityKind
	entityID  string
	method    string
	url       string
	payload   any
	body      []byte
}

// execute runs one call in the throttle lane and logs it.
func (c *Client) execute(ctx context.Context, req call) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	// Work withdrawn before it starts is never sent and never logged.
	return engine.Do(ctx, c.queue, func(ctx context.Context) (*Response, error) {
		return c.attempt(ctx, req)
	})
}

func (c *Client) attempt(ctx context.Context, req call) (*Response, error) {
	started := time.Now()
	entry := core.OperationLogEntry{
		ID:        c.newID(),
		Timestamp: c.clock(),
		Operation: req.operation,
		Entity:    req.kind,
		EntityID:  req.entityID,
		Request:   c.requestSummary(req),
		TenantID:  c.ext.RealmID,
	}

	resp, err := c.send(ctx, req)
	if resp != nil {
		entry.StatusCode = resp.StatusCode
		entry.Response = logPayload(resp.Body)
	}

	entry.DurationMs = time.Since(started).Milliseconds()
	switch {
	case err == nil:
		entry.Status = core.LogStatusSuccess
	case isThrottled(err):
		entry.Status = core.LogStatusThrottled
		entry.Error = err.Error()
	default:
		entry.Status = core.LogStatusError
		entry.Error = err.Error()
	}
	c.log.Append(entry)
	metrics.RecordAccountingCall(string(entry.Operation), string(entry.Entity), string(entry.Status), time.Since(started))

	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, req call) (*Response, error) {
	if err := c.waitForWindow(ctx); err != nil {
		return nil, err
	}

	headers := map[string]string{
		"Authorization": "Bearer " + c.ext.AccessToken,
		"Accept":        "application/json",
	}

	var (
		resp *Response
		err  error
	)
	switch req.method {
	case http.MethodGet:
		resp, err = c.transport.Get(ctx, req.url, headers)
	default:
		headers["Content-Type"] = "application/json"
		resp, err = c.transport.Post(ctx, req.url, headers, req.body)
	}
	if err != nil {
		var netErr *NetworkError
		if !errors.As(err, &netErr) {
			err = &NetworkError{Err: err}
		}
		return nil, err
	}

	if err := c.limiter.Record(ctx, c.limiterKey); err != nil {
		c.warn("Failed to record request in rate window", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		if err := c.limiter.Record429(ctx, c.limiterKey, retryAfter(resp.Header)); err != nil {
			c.warn("Failed to record throttle backoff", err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp, &ApplicationError{
			StatusCode: resp.StatusCode,
			Message:    faultMessage(resp.Body),
			Body:       resp.Body,
		}
	}
	return resp, nil
}

func (c *Client) warn(msg string, err error) {
	if c.logger == nil {
		return
	}
	c.logger.Warn(msg, zap.String("limiter_key", c.limiterKey), zap.Error(err))
}

// waitForWindow honors persisted backoff and window state before sending.
func (c *Client) waitForWindow(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}

	allowed, wait, err := c.limiter.Allow(ctx, c.limiterKey)
	if err != nil || allowed {
		return nil
	}
	if wait > c.maxWait {
		return &ThrottledError{Key: c.limiterKey, RetryAfter: wait}
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (c *Client) requestSummary(req call) map[string]any {
	summary := map[string]any{
		"method": req.method,
		"url":    req.url,
	}
	if req.entityID != "" {
		summary["id"] = req.entityID
	}
	if req.payload != nil {
		summary["body"] = req.payload
	}
	return summary
}
