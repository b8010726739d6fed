package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate <records-file>",
	Short: "Check a records file without calling the accounting service",
	Long: `Validate deletion records: every record needs a known delete_strategy.
Records with none of the ids their strategy uses, and ids referenced by more
than one record, are reported as warnings; delete still runs them and reports
the missing-id records as failed. Exits non-zero when errors are found, or
when warnings are found with --strict.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, _ := cmd.Flags().GetBool("strict")

		records, err := readRecordsFile(args[0])
		if err != nil {
			return withExitCode(foundry.ExitFileNotFound, "Failed to read records", err)
		}

		report := validate.Records(records)
		format, formatter, err := resolveFormatter(cmd)
		if err != nil {
			return err
		}
		rendered, err := formatter.FormatValidation(report)
		if err != nil {
			return err
		}
		if _, err := writeReport(cmd, reportFilename("validate", "", time.Now(), format), rendered); err != nil {
			return err
		}

		if !report.Valid {
			return withExitCode(foundry.ExitFailure, "Records failed validation",
				fmt.Errorf("%d error(s): %s", len(report.Errors), strings.Join(report.Errors, "; ")))
		}
		if strict && len(report.Warnings) > 0 {
			return withExitCode(foundry.ExitFailure, "Records have warnings (--strict)",
				fmt.Errorf("%d warning(s)", len(report.Warnings)))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().Bool("strict", false, "treat warnings as errors")
	addOutputFlags(validateCmd)
	rootCmd.AddCommand(validateCmd)
}
