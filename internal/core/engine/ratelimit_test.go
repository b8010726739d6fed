package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

type memoryRateStore struct {
	state map[string]*core.RateLimitState
}

func (m *memoryRateStore) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	if m.state == nil {
		return nil, nil
	}
	if val, ok := m.state[key]; ok {
		copied := *val
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryRateStore) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	if m.state == nil {
		m.state = make(map[string]*core.RateLimitState)
	}
	m.state[key] = state
	return nil
}

func TestRateLimiterWindow(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	key := LimiterKey("QuickBooks.API.Intuit.com", "123")
	require.Equal(t, "quickbooks.api.intuit.com/123", key)

	limiter := &RateLimiter{Store: store, Clock: func() time.Time { return now }}
	limiter.SetRequestsPerMinute(key, 2)

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(context.Background(), key)
		require.NoError(t, err)
		require.True(t, allowed)
		require.NoError(t, limiter.Record(context.Background(), key))
	}

	allowed, wait, err := limiter.Allow(context.Background(), key)
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, time.Minute, wait)

	now = now.Add(61 * time.Second)
	allowed, _, err = limiter.Allow(context.Background(), key)
	require.NoError(t, err)
	require.True(t, allowed)

	require.NoError(t, limiter.Record(context.Background(), key))
	require.Equal(t, 1, store.state[key].RequestCount)
}

func TestRateLimiterBackoff(t *testing.T) {
	store := &memoryRateStore{}
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	limiter := &RateLimiter{Store: store, Clock: func() time.Time { return now }}

	require.NoError(t, limiter.Record429(context.Background(), "sandbox/1", 30*time.Second))

	allowed, wait, err := limiter.Allow(context.Background(), "sandbox/1")
	require.NoError(t, err)
	require.False(t, allowed)
	require.Equal(t, 30*time.Second, wait)
	require.NotNil(t, store.state["sandbox/1"].Last429At)
}

func TestRateLimiterMargin(t *testing.T) {
	limiter := &RateLimiter{
		Store:  &memoryRateStore{},
		Limits: map[string]RateLimit{"sandbox/1": {RequestsPerWindow: 10, WindowDuration: time.Minute}},
	}

	limiter.ApplySafetyMargin(0.9)
	require.Equal(t, 9, limiter.limitFor("sandbox/1").RequestsPerWindow)

	limiter.ApplySafetyMargin(1.5)
	require.Equal(t, 0.9, limiter.Margin)
	require.Equal(t, 450, limiter.limitFor("other").RequestsPerWindow)
}

func TestRateLimiterWithoutStore(t *testing.T) {
	var limiter *RateLimiter
	allowed, wait, err := limiter.Allow(context.Background(), "anything")
	require.NoError(t, err)
	require.True(t, allowed)
	require.Zero(t, wait)
	require.NoError(t, limiter.Record(context.Background(), "anything"))
	require.NoError(t, limiter.Record429(context.Background(), "anything", time.Second))
}
