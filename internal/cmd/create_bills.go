package cmd

import (
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/observability"
)

var createBillsCmd = &cobra.Command{
	Use:   "create-bills <bills-file>",
	Short: "Create Bills from JSON or YAML payloads",
	Long: `Post each Bill payload in order through the throttled client. The file holds
a list of Bill objects, a {"bills": [...]} document, or a single Bill object.
Payloads are sent as given; the service validates them.`,
	Example: `  ledgersweep create-bills bills.json
  ledgersweep create-bills - --output markdown < bills.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		bills, err := readBillsFile(args[0])
		if err != nil {
			return withExitCode(foundry.ExitFileNotFound, "Failed to read bills", err)
		}

		format, formatter, err := resolveFormatter(cmd)
		if err != nil {
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

		started := time.Now()
		report, err := runtime.Service.CreateBills(ctx, ext, bills)
		if err != nil {
			return withExitCode(foundry.ExitConfigInvalid, "Failed to build accounting client", err)
		}
		logThroughput(report.Metadata.Operation, len(bills), time.Since(started))

		rendered, err := formatter.FormatCreate(report)
		if err != nil {
			return err
		}
		path, err := writeReport(cmd, reportFilename("create-bills", ext.RealmID, report.Metadata.ExecutedAt, format), rendered)
		if err != nil {
			return err
		}
		if path != "-" && observability.CLILogger != nil {
			observability.CLILogger.Info("Report written", zap.String("path", path))
		}

		if report.Summary.Failed > 0 {
			return withExitCode(foundry.ExitFailure, "Bill creation finished with failures",
				fmt.Errorf("%d of %d bills failed", report.Summary.Failed, report.Summary.TotalRequested))
		}
		return nil
	},
}

func init() {
	addAccountingFlags(createBillsCmd)
	addOutputFlags(createBillsCmd)
	rootCmd.AddCommand(createBillsCmd)
}
