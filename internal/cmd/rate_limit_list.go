package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/ascii"
	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/core/store"
	"github.com/ledgersweep/ledgersweep/internal/output"
)

type rateLimitView struct {
	Key           string     `json:"key"`
	RequestCount  int        `json:"request_count"`
	WindowStart   time.Time  `json:"window_start"`
	BackoffUntil  *time.Time `json:"backoff_until,omitempty"`
	LastThrottled *time.Time `json:"last_throttled_at,omitempty"`
	BackoffActive bool       `json:"backoff_active"`
}

var rateLimitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored throttle windows",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := rateLimitQueryFromFlags(cmd)
		if query.Validate() != nil {
			query.All = true
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		entries, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		views := rateLimitViews(entries, now)

		var rendered string
		if format == output.FormatJSON {
			payload, err := json.MarshalIndent(views, "", "  ")
			if err != nil {
				return err
			}
			rendered = string(payload)
		} else {
			rendered = renderRateLimitBox(views, now)
		}

		_, err = writeReport(cmd, fmt.Sprintf("rate-limit.list.%s", outputExtension(format)), rendered)
		return err
	},
}

func rateLimitViews(entries []store.RateLimitEntry, now time.Time) []rateLimitView {
	views := make([]rateLimitView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, rateLimitView{
			Key:           entry.Key,
			RequestCount:  entry.State.RequestCount,
			WindowStart:   entry.State.WindowStart,
			BackoffUntil:  entry.State.BackoffUntil,
			LastThrottled: entry.State.Last429At,
			BackoffActive: entry.State.BackoffUntil != nil && now.Before(*entry.State.BackoffUntil),
		})
	}
	return views
}

func renderRateLimitBox(views []rateLimitView, now time.Time) string {
	lines := []string{"Throttle windows", ""}
	if len(views) == 0 {
		lines = append(lines, "(no stored throttle state)")
		return ascii.DrawBox(strings.Join(lines, "\n"), 0)
	}

	for _, view := range views {
		backoff := "-"
		if view.BackoffUntil != nil {
			backoff = view.BackoffUntil.UTC().Format(time.RFC3339)
			if view.BackoffActive {
				backoff += " (active)"
			}
		}
		throttled := "never"
		if view.LastThrottled != nil {
			throttled = formatAge(*view.LastThrottled, now)
		}
		lines = append(lines, fmt.Sprintf("%s: count=%d window=%s backoff_until=%s last_429=%s",
			view.Key, view.RequestCount, formatAge(view.WindowStart, now), backoff, throttled))
	}
	return ascii.DrawBox(strings.Join(lines, "\n"), 0)
}

func init() {
	rateLimitListCmd.Flags().StringP("output", "o", string(output.FormatTable), "output format: table, json")
	rateLimitListCmd.Flags().String("out", "", "write output to a file (default stdout)")
	rateLimitListCmd.Flags().String("out-dir", "", "write output to a directory")
	addRateLimitSelectors(rateLimitListCmd, "List")
}
