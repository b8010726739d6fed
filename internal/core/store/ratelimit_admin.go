package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// RateLimitEntry is one stored tenant window.
type RateLimitEntry struct {
	Key   string
	State core.RateLimitState
}

// RateLimitQuery selects stored windows for listing or reset. Exactly one
// selector is expected; All wins when several are set.
type RateLimitQuery struct {
	All   bool
	Key   string
	Realm string
	Host  string
}

// Validate reports whether the query selects anything.
func (q RateLimitQuery) Validate() error {
	if q.All || strings.TrimSpace(q.Key) != "" || strings.TrimSpace(q.Realm) != "" || strings.TrimSpace(q.Host) != "" {
		return nil
	}
	return errors.New("must specify --all, --key, --realm, or --host")
}

func (q RateLimitQuery) where() (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	switch {
	case q.All:
		return "", nil, nil
	case strings.TrimSpace(q.Key) != "":
		return "WHERE tenant_key = ?", []any{strings.TrimSpace(q.Key)}, nil
	case strings.TrimSpace(q.Realm) != "":
		return "WHERE tenant_key LIKE ?", []any{"%/" + strings.TrimSpace(q.Realm)}, nil
	default:
		return "WHERE tenant_key LIKE ?", []any{strings.ToLower(strings.TrimSpace(q.Host)) + "/%"}, nil
	}
}

// ListRateLimits returns matching windows ordered by key.
func (s *Store) ListRateLimits(ctx context.Context, q RateLimitQuery) ([]RateLimitEntry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.where()
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT tenant_key, request_count, window_start_ms, backoff_until_ms, last_throttled_at_ms
		FROM throttle_windows
		%s
		ORDER BY tenant_key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list throttle windows: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []RateLimitEntry{}
	for rows.Next() {
		entry, err := scanWindow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan throttle windows: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list throttle windows: %w", err)
	}
	return entries, nil
}

// ResetRateLimits deletes matching windows and returns how many were removed.
func (s *Store) ResetRateLimits(ctx context.Context, q RateLimitQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.where()
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, "DELETE FROM throttle_windows "+where, args...)
	if err != nil {
		return 0, fmt.Errorf("reset throttle windows: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset throttle windows: %w", err)
	}
	return affected, nil
}
