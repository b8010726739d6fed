package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

var deleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete Bills and BillPayments in dependency order",
	Long: `Delete Bills and BillPayments through the throttled client.

Paired records come from --records (YAML or JSON, "-" for stdin). Each record
names a bill_id, a bill_payment_id, or both, plus a delete_strategy of
bill_only, payment_only or both. With "both" the BillPayment is deleted before
its Bill. Plain id lists can be given with --bill-ids or --bill-payment-ids.

Records are validated before any call is made. An unknown delete_strategy
stops the batch. Records missing the ids their strategy needs are reported as
warnings and then as failed records in the result; --strict stops the batch on
any warning instead.`,
	Example: `  ledgersweep delete --records records.yaml
  ledgersweep delete --bill-payment-ids 145,146 --output json --out result.json
  cat records.json | ledgersweep delete --records - --show-log`,
	RunE: runDelete,
}

func init() {
	addDeleteFlags(deleteCmd)
	rootCmd.AddCommand(deleteCmd)
}

func addDeleteFlags(cmd *cobra.Command) {
	cmd.Flags().String("records", "", "records file (YAML or JSON; - for stdin)")
	cmd.Flags().StringSlice("bill-ids", nil, "Bill ids to delete (comma separated)")
	cmd.Flags().StringSlice("bill-payment-ids", nil, "BillPayment ids to delete (comma separated)")
	cmd.Flags().Bool("strict", false, "treat validation warnings as errors")
	cmd.Flags().Bool("dry-run", false, "validate and print the plan without calling the service")
	addAccountingFlags(cmd)
	addOutputFlags(cmd)
}

// preflight decides whether a validated batch may run.
func preflight(report *validate.Report, strict bool) error {
	if !report.Valid {
		return withExitCode(foundry.ExitFailure, "Records failed validation", fmt.Errorf("%s", strings.Join(report.Errors, "; ")))
	}
	if strict && len(report.Warnings) > 0 {
		return withExitCode(foundry.ExitFailure, "Records have warnings (--strict)", fmt.Errorf("%s", strings.Join(report.Warnings, "; ")))
	}
	return nil
}

func runDelete(cmd *cobra.Command, args []string) error {
	recordsPath, _ := cmd.Flags().GetString("records")
	billIDs, _ := cmd.Flags().GetStringSlice("bill-ids")
	paymentIDs, _ := cmd.Flags().GetStringSlice("bill-payment-ids")
	strict, _ := cmd.Flags().GetBool("strict")
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	request, err := deleteRequestFromFlags(strings.TrimSpace(recordsPath), billIDs, paymentIDs)
	if err != nil {
		return err
	}

	report := validate.Records(request.Records)
	logValidation(report)
	if err := preflight(report, strict); err != nil {
		return err
	}

	format, formatter, err := resolveFormatter(cmd)
	if err != nil {
		return err
	}
	if dryRun {
		rendered, err := formatter.FormatValidation(report)
		if err != nil {
			return err
		}
		_, err = writeReport(cmd, reportFilename("validate", "", time.Now(), format), rendered)
		return err
	}

	cfg, err := commandConfig(cmd)
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}
	ext, err := tenantFromConfig(cfg)
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, "Accounting credentials are not configured", err)
	}

	runtime := newSweepRuntime(cmd.Context(), cfg)
	defer runtime.Close() // nolint:errcheck // best-effort cleanup

	ctx, cancel := interruptible(cmd)
	defer cancel()

	total := len(request.Records)
	request.OnRecord = func(index int, outcome *core.RecordOutcome) {
		if observability.CLILogger == nil {
			return
		}
		observability.CLILogger.Info("Record processed",
			zap.Int("record", index+1),
			zap.Int("of", total),
			zap.String("bill_id", outcome.Record.BillID),
			zap.String("bill_payment_id", outcome.Record.BillPaymentID),
			zap.String("status", string(outcome.Status)),
		)
	}

	started := time.Now()
	result, err := runtime.Service.Delete(ctx, ext, request)
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, "Failed to build accounting client", err)
	}
	logThroughput(result.Metadata.Operation, total, time.Since(started))

	rendered, err := formatter.FormatDelete(result)
	if err != nil {
		return err
	}
	path, err := writeReport(cmd, reportFilename(result.Metadata.Operation, ext.RealmID, result.Metadata.ExecutedAt, format), rendered)
	if err != nil {
		return err
	}
	if path != "-" && observability.CLILogger != nil {
		observability.CLILogger.Info("Report written", zap.String("path", path))
	}

	if ctx.Err() != nil {
		return withExitCode(foundry.ExitFailure, "Batch interrupted", ctx.Err())
	}
	if failed := result.Summary.Failed + result.Summary.Partial; failed > 0 {
		return withExitCode(foundry.ExitFailure, "Batch finished with failures",
			fmt.Errorf("%d of %d records did not complete", failed, result.Summary.TotalRequested))
	}
	return nil
}

// deleteRequestFromFlags accepts exactly one input source.
func deleteRequestFromFlags(recordsPath string, billIDs, paymentIDs []string) (sweep.DeleteRequest, error) {
	kind, idRecords, err := resolveIDRecords(billIDs, paymentIDs)
	if err != nil {
		return sweep.DeleteRequest{}, err
	}

	switch {
	case recordsPath != "" && kind != "":
		return sweep.DeleteRequest{}, fmt.Errorf("--records cannot be combined with --bill-ids or --bill-payment-ids")
	case recordsPath != "":
		records, err := readRecordsFile(recordsPath)
		if err != nil {
			return sweep.DeleteRequest{}, withExitCode(foundry.ExitFileNotFound, "Failed to read records", err)
		}
		return sweep.DeleteRequest{Records: records}, nil
	case kind != "":
		if len(idRecords) == 0 {
			return sweep.DeleteRequest{}, fmt.Errorf("no ids given")
		}
		return sweep.DeleteRequest{Records: idRecords, EntityType: kind}, nil
	default:
		return sweep.DeleteRequest{}, fmt.Errorf("one of --records, --bill-ids or --bill-payment-ids is required")
	}
}

func logValidation(report *validate.Report) {
	if observability.CLILogger == nil {
		return
	}
	for _, msg := range report.Errors {
		observability.CLILogger.Error("Validation error", zap.String("detail", msg))
	}
	for _, msg := range report.Warnings {
		observability.CLILogger.Warn("Validation warning", zap.String("detail", msg))
	}
}
