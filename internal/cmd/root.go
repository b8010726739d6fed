package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/appid"
	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

var (
	cfgFile  string
	verbose  bool
	logLevel string

	appIdentity *appidentity.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// GetAppIdentity returns the app identity (only valid after initConfig)
func GetAppIdentity() *appidentity.Identity {
	return appIdentity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Delete and create accounting Bills and BillPayments in throttled batches",
	Long: `Delete Bills and their BillPayments in dependency order, create Bills from
payload files, and serve the same batches over HTTP. Every external call is
paced under the accounting service's rate ceiling and recorded in an
operation log.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are returned to main, which maps
// them to exit codes.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// CLI runs drop metrics; serve installs the exporter.
	observability.DisableMetrics()

	if identity, err := appid.Get(context.Background()); err == nil {
		applyIdentity(identity)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $XDG_CONFIG_HOME/ledgersweep/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
}

func applyIdentity(identity *appidentity.Identity) {
	if identity == nil {
		return
	}
	appIdentity = identity
	if identity.BinaryName != "" {
		rootCmd.Use = identity.BinaryName
	}
	if identity.Description != "" {
		rootCmd.Short = identity.Description
	}
	if f := rootCmd.PersistentFlags().Lookup("config"); f != nil && identity.ConfigName != "" {
		f.Usage = fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", identity.ConfigName)
	}
}

// initConfig loads the app identity, layered configuration and the CLI logger.
func initConfig() {
	ctx := context.Background()
	identity, err := appid.Get(ctx)
	if err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to load app identity", err)
	}
	applyIdentity(identity)

	var overrides []map[string]any
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}

	cfg, cfgErr := config.LoadFile(ctx, cfgFile, overrides...)
	level := logLevel
	if cfgErr == nil {
		level = cfg.Logging.Level
	}

	if err := observability.InitCLILogger(appIdentity.BinaryName, level, verbose); err != nil {
		ExitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}
	if cfgErr != nil {
		ExitWithCode(observability.CLILogger, foundry.ExitConfigInvalid, "Failed to load configuration", cfgErr)
	}

	observability.CLILogger.Debug("Configuration loaded",
		zap.String("config_file", configFileInUse()),
		zap.String("store_driver", cfg.Store.Driver),
		zap.String("base_url", cfg.Accounting.BaseURL),
		zap.Int("requests_per_minute", cfg.Throttle.RequestsPerMinute),
	)
}

func configFileInUse() string {
	if cfgFile != "" {
		return cfgFile
	}
	path := config.DefaultConfigPath()
	if _, err := os.Stat(path); err != nil {
		return "(defaults and environment)"
	}
	return path
}

// loadedConfig returns the configuration initConfig loaded.
func loadedConfig() (*config.Config, error) {
	cfg := config.GetConfig()
	if cfg == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	return cfg, nil
}
