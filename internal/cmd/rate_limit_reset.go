package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/output"
)

type rateLimitResetResult struct {
	Matched int   `json:"matched"`
	Deleted int64 `json:"deleted"`
	DryRun  bool  `json:"dry_run"`
}

var rateLimitResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear stored throttle windows and backoff",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}
		if format != output.FormatJSON && format != output.FormatTable {
			return fmt.Errorf("unsupported output format: %s", format)
		}

		query := rateLimitQueryFromFlags(cmd)
		if err := query.Validate(); err != nil {
			return err
		}
		yes, _ := cmd.Flags().GetBool("yes")
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		if query.All && !yes && !dryRun {
			return errors.New("--all requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		matched, err := db.ListRateLimits(cmd.Context(), query)
		if err != nil {
			return err
		}

		result := rateLimitResetResult{Matched: len(matched), DryRun: dryRun}
		if !dryRun {
			if result.Deleted, err = db.ResetRateLimits(cmd.Context(), query); err != nil {
				return err
			}
		}

		rendered, err := renderRateLimitReset(format, result)
		if err != nil {
			return err
		}
		_, err = writeReport(cmd, fmt.Sprintf("rate-limit.reset.%s", outputExtension(format)), rendered)
		return err
	},
}

func renderRateLimitReset(format output.Format, result rateLimitResetResult) (string, error) {
	if format == output.FormatJSON {
		payload, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return "", err
		}
		return string(payload), nil
	}
	if result.DryRun {
		return fmt.Sprintf("Would delete %d throttle window(s)", result.Matched), nil
	}
	return fmt.Sprintf("Deleted %d/%d throttle window(s)", result.Deleted, result.Matched), nil
}

func init() {
	addRateLimitSelectors(rateLimitResetCmd, "Reset")
	rateLimitResetCmd.Flags().Bool("yes", false, "confirm destructive reset")
	rateLimitResetCmd.Flags().Bool("dry-run", false, "show what would be deleted")
	rateLimitResetCmd.Flags().StringP("output", "o", string(output.FormatTable), "output format: table, json")
	rateLimitResetCmd.Flags().String("out", "", "write output to a file (default stdout)")
	rateLimitResetCmd.Flags().String("out-dir", "", "write output to a directory")
}
