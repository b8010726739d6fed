package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// GetRateLimit returns the stored window for a tenant key, or nil when the
// key has never been seen.
func (s *Store) GetRateLimit(ctx context.Context, key string) (*core.RateLimitState, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("tenant key is required")
	}

	row := s.DB.QueryRowContext(ctx, `
		SELECT tenant_key, request_count, window_start_ms, backoff_until_ms, last_throttled_at_ms
		FROM throttle_windows
		WHERE tenant_key = ?
	`, key)

	entry, err := scanWindow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetch throttle window: %w", err)
	}
	return &entry.State, nil
}

// UpdateRateLimit upserts the window for a tenant key.
func (s *Store) UpdateRateLimit(ctx context.Context, key string, state *core.RateLimitState) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("tenant key is required")
	}
	if state == nil {
		return errors.New("throttle state is required")
	}

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO throttle_windows (tenant_key, request_count, window_start_ms, backoff_until_ms, last_throttled_at_ms, updated_at_ms)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_key) DO UPDATE SET
			request_count = excluded.request_count,
			window_start_ms = excluded.window_start_ms,
			backoff_until_ms = excluded.backoff_until_ms,
			last_throttled_at_ms = excluded.last_throttled_at_ms,
			updated_at_ms = excluded.updated_at_ms
	`, key, state.RequestCount, state.WindowStart.UnixMilli(), nullMillis(state.BackoffUntil), nullMillis(state.Last429At), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store throttle window: %w", err)
	}
	return nil
}

func scanWindow(row rowScanner) (RateLimitEntry, error) {
	var (
		entry         RateLimitEntry
		windowStartMs int64
		backoffMs     sql.NullInt64
		throttledMs   sql.NullInt64
	)
	if err := row.Scan(&entry.Key, &entry.State.RequestCount, &windowStartMs, &backoffMs, &throttledMs); err != nil {
		return RateLimitEntry{}, err
	}

	entry.State.WindowStart = time.UnixMilli(windowStartMs).UTC()
	entry.State.BackoffUntil = fromMillis(backoffMs)
	entry.State.Last429At = fromMillis(throttledMs)
	return entry, nil
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromMillis(value sql.NullInt64) *time.Time {
	if !value.Valid {
		return nil
	}
	t := time.UnixMilli(value.Int64).UTC()
	return &t
}
