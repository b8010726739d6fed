package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

var extended bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. Use --extended for build, runtime and supported entity details.",
	RunE: func(cmd *cobra.Command, args []string) error {
		identity := GetAppIdentity()
		out := cmd.OutOrStdout()

		_, _ = fmt.Fprintf(out, "%s %s\n", identity.BinaryName, versionInfo.Version)
		if !extended {
			return nil
		}

		_, _ = fmt.Fprintf(out, "Commit: %s\n", versionInfo.Commit)
		_, _ = fmt.Fprintf(out, "Built: %s\n", versionInfo.BuildDate)
		_, _ = fmt.Fprintf(out, "Go: %s\n", runtime.Version())
		_, _ = fmt.Fprintln(out)

		version := crucible.GetVersion()
		_, _ = fmt.Fprintf(out, "Gofulmen: %s\n", version.Gofulmen)
		_, _ = fmt.Fprintf(out, "Crucible: %s\n", version.Crucible)
		_, _ = fmt.Fprintln(out)

		_, _ = fmt.Fprintf(out, "Entities: %s, %s\n", core.EntityBill, core.EntityBillPayment)
		_, _ = fmt.Fprintf(out, "Strategies: %s\n", strings.Join([]string{
			string(core.StrategyBillOnly), string(core.StrategyPaymentOnly), string(core.StrategyBoth),
		}, ", "))
		_, _ = fmt.Fprintf(out, "Default throttle: %d req/min, %s between requests\n",
			core.DefaultThrottle.RequestsPerMinute, core.DefaultThrottle.DelayBetweenRequests)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&extended, "extended", "e", false, "show extended version information")
}
