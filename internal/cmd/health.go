package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	errwrap "github.com/ledgersweep/ledgersweep/internal/errors"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the application can start successfully.",
	Run: func(cmd *cobra.Command, args []string) {
		// Check 1: Logger initialized
		if observability.CLILogger == nil {
			// Can't log if logger is nil, so use stderr
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		observability.CLILogger.Info("Running health check...")
		observability.CLILogger.Info("✅ Logger initialized")

		// Check 2: Version info available
		if versionInfo.Version == "" {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		observability.CLILogger.Debug("Version check passed", zap.String("version", versionInfo.Version))
		observability.CLILogger.Info("✅ Version information available")

		// Check 3: Configuration loaded
		cfg, err := loadedConfig()
		if err != nil {
			ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Configuration not loaded", errwrap.NewConfigInvalidError(err.Error()))
			return
		}
		observability.CLILogger.Info("✅ Configuration loaded")

		// Check 4: Throttle store, when shared state is enabled
		if cfg.Throttle.Persist {
			db, err := openStoreWith(cmd.Context(), cfg.Store)
			if err != nil {
				ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Throttle store unavailable", err)
				return
			}
			_ = db.Close()
			observability.CLILogger.Info("✅ Throttle store reachable")
		}

		// Overall status
		observability.CLILogger.Info("")
		observability.CLILogger.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
