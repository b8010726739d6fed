package engine

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// RateLimiter tracks per-tenant request windows and 429 backoff in a
// persistent store so separate processes sharing a tenant stay under the
// service ceiling. The in-process Queue handles pacing; this guards the window.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error)
	UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error
}

// DefaultLimit is the accounting service's documented per-realm ceiling.
var DefaultLimit = RateLimit{RequestsPerWindow: 500, WindowDuration: time.Minute}

// LimiterKey scopes rate state to a host and realm.
func LimiterKey(host, realmID string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	realmID = strings.TrimSpace(realmID)
	if realmID == "" {
		return host
	}
	return host + "/" + realmID
}

// Allow reports whether a request may be sent now and, if not, how long to wait.
func (r *RateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}

	state, err := r.load(ctx, key)
	if err != nil {
		return true, 0, err
	}

	now := r.now()
	if state.BackoffUntil != nil && now.Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(now), nil
	}

	limit := r.limitFor(key)
	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if now.After(windowEnd) {
		return true, 0, nil
	}
	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(now), nil
	}
	return true, 0, nil
}

// Record counts one request against the current window.
func (r *RateLimiter) Record(ctx context.Context, key string) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.load(ctx, key)
	if err != nil {
		return err
	}

	now := r.now()
	limit := r.limitFor(key)
	if state.WindowStart.IsZero() || now.After(state.WindowStart.Add(limit.WindowDuration)) {
		state.WindowStart = now
		state.RequestCount = 0
	}
	state.RequestCount++

	return r.Store.UpdateRateLimit(ctx, key, state)
}

// Record429 starts a backoff window after the service throttled a request.
func (r *RateLimiter) Record429(ctx context.Context, key string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}

	state, err := r.load(ctx, key)
	if err != nil {
		return err
	}

	now := r.now()
	state.Last429At = &now
	if retryAfter <= 0 {
		retryAfter = time.Minute
	}
	until := now.Add(retryAfter)
	state.BackoffUntil = &until

	return r.Store.UpdateRateLimit(ctx, key, state)
}

// SetRequestsPerMinute overrides the window for one key.
func (r *RateLimiter) SetRequestsPerMinute(key string, requests int) {
	if r == nil || requests <= 0 || strings.TrimSpace(key) == "" {
		return
	}
	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit)
	}
	r.Limits[key] = RateLimit{RequestsPerWindow: requests, WindowDuration: time.Minute}
}

// ApplySafetyMargin scales effective limits by a ratio in (0, 1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil || margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

func (r *RateLimiter) load(ctx context.Context, key string) (*core.RateLimitState, error) {
	state, err := r.Store.GetRateLimit(ctx, key)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = &core.RateLimitState{WindowStart: r.now()}
	}
	return state, nil
}

func (r *RateLimiter) limitFor(key string) RateLimit {
	limit := DefaultLimit
	if configured, ok := r.Limits[key]; ok {
		limit = configured
	}

	if r.Margin > 0 && r.Margin <= 1 {
		adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
		if adjusted < 1 {
			adjusted = 1
		}
		limit.RequestsPerWindow = adjusted
	}
	return limit
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}
