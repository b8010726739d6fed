package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/core"
	errwrap "github.com/ledgersweep/ledgersweep/internal/errors"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the installation, configuration, throttle store and credentials.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		identity := GetAppIdentity()
		bannerName := "doctor"
		if identity != nil && identity.BinaryName != "" {
			bannerName = identity.BinaryName + " doctor"
		}
		observability.CLILogger.Info("=== " + bannerName + " ===")
		observability.CLILogger.Info("")
		observability.CLILogger.Info("Running diagnostic checks...")
		observability.CLILogger.Info("")

		allChecks := true
		totalChecks := 7

		// Check 1: Go version
		goVersion := runtime.Version()
		if goVersion >= "go1.23" {
			observability.CLILogger.Info(fmt.Sprintf("[1/%d] Checking Go version... ✅ %s", totalChecks, goVersion), zap.String("go_version", goVersion))
		} else {
			observability.CLILogger.Warn(fmt.Sprintf("[1/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", totalChecks, goVersion), zap.String("go_version", goVersion))
			allChecks = false
		}

		// Check 2: Gofulmen and Crucible
		version := crucible.GetVersion()
		if version.Crucible != "" && version.Gofulmen != "" {
			observability.CLILogger.Info(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ✅ v%s / v%s", totalChecks, version.Gofulmen, version.Crucible),
				zap.String("gofulmen_version", version.Gofulmen),
				zap.String("crucible_version", version.Crucible))
		} else {
			observability.CLILogger.Error(fmt.Sprintf("[2/%d] Checking Gofulmen/Crucible... ❌ version metadata unavailable", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitExternalServiceUnavailable, "Cannot access Crucible", errwrap.NewExternalServiceError("Crucible metadata unavailable"))
		}

		// Check 3: Config directory
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			observability.CLILogger.Error(fmt.Sprintf("[3/%d] Checking config directory... ❌ Cannot resolve config directory", totalChecks))
			ExitWithCode(observability.CLILogger, foundry.ExitFileNotFound, "Cannot resolve config directory", errwrap.NewInternalError("config directory not resolved"))
		}
		configDir := filepath.Dir(configPath)
		observability.CLILogger.Info(fmt.Sprintf("[3/%d] Checking config directory... ✅ %s (config file %s)", totalChecks, configDir, existenceStatus(fileExists(configPath))),
			zap.String("config_dir", configDir))

		// Check 4: Configuration
		cfg, cfgErr := config.LoadFile(ctx, cfgFile)
		if cfgErr != nil {
			observability.CLILogger.Error(fmt.Sprintf("[4/%d] Checking configuration... ❌ %v", totalChecks, cfgErr))
			allChecks = false
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[4/%d] Checking configuration... ✅ %d req/min, %s between requests",
				totalChecks, cfg.Throttle.RequestsPerMinute, cfg.Throttle.DelayBetweenRequests),
				zap.Int("requests_per_minute", cfg.Throttle.RequestsPerMinute),
				zap.Duration("delay_between_requests", cfg.Throttle.DelayBetweenRequests))
			if cfg.Throttle.RequestsPerMinute > 500 {
				observability.CLILogger.Warn("       requests_per_minute is above the service's 500/min ceiling; expect 429s")
			}
		}

		// Check 5: Throttle store
		if cfgErr != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[5/%d] Checking throttle store... ⚠️  skipped (config not loaded)", totalChecks))
		} else if !cfg.Throttle.Persist {
			observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking throttle store... ✅ disabled (throttle.persist=false)", totalChecks))
		} else {
			db, storeErr := openStoreWith(ctx, cfg.Store)
			if storeErr != nil {
				observability.CLILogger.Warn(fmt.Sprintf("[5/%d] Checking throttle store... ⚠️  cannot open store", totalChecks), zap.Error(storeErr))
				allChecks = false
			} else {
				defer db.Close() //nolint:errcheck
				schema, _ := db.SchemaVersion(ctx)
				observability.CLILogger.Info(fmt.Sprintf("[5/%d] Checking throttle store... ✅ %s (schema v%d)", totalChecks, describeStore(cfg.Store), schema),
					zap.String("store", describeStore(cfg.Store)),
					zap.Int("schema_version", schema))
			}
		}

		// Check 6: Credentials
		if cfgErr != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking credentials... ⚠️  skipped (config not loaded)", totalChecks))
		} else if _, err := tenantFromConfig(cfg); err != nil {
			observability.CLILogger.Warn(fmt.Sprintf("[6/%d] Checking credentials... ⚠️  %v", totalChecks, err))
			observability.CLILogger.Info("       CLI batches need credentials; the HTTP API takes them per request.")
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[6/%d] Checking credentials... ✅ realm %s at %s", totalChecks, cfg.Accounting.RealmID, cfg.Accounting.BaseURL))
		}

		// Check 7: Environment
		observability.CLILogger.Info(fmt.Sprintf("[7/%d] Checking environment... ✅ %s/%s", totalChecks, runtime.GOOS, runtime.GOARCH),
			zap.String("os", runtime.GOOS),
			zap.String("arch", runtime.GOARCH))

		observability.CLILogger.Info("")
		if allChecks {
			observability.CLILogger.Info("✅ All checks passed!")
		} else {
			observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		observability.CLILogger.Info("")
		observability.CLILogger.Info("=== End Diagnostics ===")
	},
}

var (
	doctorInitForce   bool
	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}

		if _, err := os.Stat(configPath); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", configPath)
		}

		if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}

		if err := os.WriteFile(configPath, []byte(buildInitConfig(GetAppIdentity().EnvPrefix)), 0600); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}

		observability.CLILogger.Info("Config initialized", zap.String("path", configPath))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := config.DefaultConfigPath()
		observability.CLILogger.Info("Configuration:")
		observability.CLILogger.Info(fmt.Sprintf("  Config file:   %s (%s)", configPath, existenceStatus(fileExists(configPath))))

		cfg, err := config.LoadFile(cmd.Context(), cfgFile)
		if err != nil {
			observability.CLILogger.Warn("Config load failed", zap.Error(err))
			return nil
		}
		observability.CLILogger.Info("  Throttle store: " + describeStore(cfg.Store))

		prefix := GetAppIdentity().EnvPrefix
		observability.CLILogger.Info("")
		observability.CLILogger.Info("Environment:")
		for _, name := range []string{"ACCESS_TOKEN", "REALM_ID", "BASE_URL", "ADMIN_TOKEN", "DB_AUTH_TOKEN"} {
			observability.CLILogger.Info(fmt.Sprintf("  %s%s: %s", prefix, name, envStatus(prefix+name)))
		}

		observability.CLILogger.Info("")
		observability.CLILogger.Info("Effective Settings:")
		observability.CLILogger.Info("  accounting.base_url: " + cfg.Accounting.BaseURL)
		observability.CLILogger.Info("  accounting.realm_id: " + valueOrUnset(cfg.Accounting.RealmID))
		observability.CLILogger.Info("  accounting.access_token: " + redact(cfg.Accounting.AccessToken))
		observability.CLILogger.Info(fmt.Sprintf("  throttle.requests_per_minute: %d", cfg.Throttle.RequestsPerMinute))
		observability.CLILogger.Info("  throttle.delay_between_requests: " + cfg.Throttle.DelayBetweenRequests.String())
		observability.CLILogger.Info("  throttle.max_backoff_wait: " + cfg.Throttle.MaxBackoffWait.String())
		observability.CLILogger.Info(fmt.Sprintf("  throttle.persist: %t", cfg.Throttle.Persist))
		observability.CLILogger.Info(fmt.Sprintf("  rate_limit_margin: %.2f", cfg.RateLimitMargin))
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or the throttle store",
	RunE: func(cmd *cobra.Command, args []string) error {
		if doctorResetAll {
			doctorResetConfig = true
			doctorResetData = true
		}

		if !doctorResetConfig && !doctorResetData {
			return fmt.Errorf("specify --config, --data, or --all")
		}

		if doctorResetConfig {
			configPath := config.DefaultConfigPath()
			if configPath == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := os.Remove(configPath); err == nil {
				observability.CLILogger.Info("Config removed", zap.String("path", configPath))
			} else if os.IsNotExist(err) {
				observability.CLILogger.Info("Config already removed", zap.String("path", configPath))
			} else {
				return fmt.Errorf("remove config file: %w", err)
			}
		}

		if doctorResetData {
			cfg, err := config.LoadFile(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return fmt.Errorf("remote store configured; use 'rate-limit reset --all --yes' instead")
			}

			absPath, _ := filepath.Abs(storePath(cfg.Store))
			for _, path := range []string{absPath, absPath + "-wal", absPath + "-shm"} {
				if err := os.Remove(path); err == nil {
					observability.CLILogger.Info("Removed", zap.String("path", path))
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("remove database: %w", err)
				}
			}
		}

		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := cfgFile
		if configPath == "" {
			configPath = config.DefaultConfigPath()
		}
		if configPath == "" {
			return fmt.Errorf("config path not resolved")
		}
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return withExitCode(foundry.ExitFileNotFound, "Config file not found", fmt.Errorf("%s", configPath))
		}

		if _, err := config.LoadFile(cmd.Context(), configPath); err != nil {
			return withExitCode(foundry.ExitConfigInvalid, "Config is invalid", err)
		}

		observability.CLILogger.Info("Config is valid", zap.String("path", configPath))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.AddCommand(doctorInitCmd)
	doctorCmd.AddCommand(doctorConfigCmd)
	doctorCmd.AddCommand(doctorResetCmd)
	doctorCmd.AddCommand(doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local throttle database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

func storePath(cfg config.StoreConfig) string {
	if strings.TrimSpace(cfg.Path) == "" {
		return config.DefaultStorePath()
	}
	return cfg.Path
}

func describeStore(cfg config.StoreConfig) string {
	if strings.TrimSpace(cfg.URL) != "" {
		return cfg.URL + " (remote)"
	}
	absPath, _ := filepath.Abs(storePath(cfg))
	info, err := os.Stat(absPath)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", absPath, formatFileSize(info.Size()))
	case os.IsNotExist(err):
		return absPath + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", absPath, err)
	}
}

// formatFileSize returns a human-readable file size
func formatFileSize(bytes int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)
	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d bytes", bytes)
	}
}

func buildInitConfig(envPrefix string) string {
	defaults := core.DefaultThrottle
	lines := []string{
		"# ledgersweep config - created by 'ledgersweep doctor init'",
		"accounting:",
		"  base_url: https://sandbox-quickbooks.api.intuit.com",
		"  realm_id: \"\"",
		fmt.Sprintf("  # access_token: \"\"  # prefer %sACCESS_TOKEN", envPrefix),
		"  timeout: 30s",
		"throttle:",
		fmt.Sprintf("  requests_per_minute: %d", defaults.RequestsPerMinute),
		fmt.Sprintf("  delay_between_requests: %s", defaults.DelayBetweenRequests),
		"  max_backoff_wait: 5s",
		"  persist: true",
		"server:",
		"  port: 8080",
		"  max_records: 5000",
		"logging:",
		"  level: info",
	}
	return strings.Join(lines, "\n") + "\n"
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func existenceStatus(exists bool) string {
	if exists {
		return "exists"
	}
	return "missing"
}

func envStatus(name string) string {
	if strings.TrimSpace(os.Getenv(name)) != "" {
		return "(set)"
	}
	return "(not set)"
}

func valueOrUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(not set)"
	}
	return value
}

// redact shows only the last four characters of a secret.
func redact(secret string) string {
	secret = strings.TrimSpace(secret)
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "(set)"
	default:
		return "…" + secret[len(secret)-4:]
	}
}

// formatAge returns a human-readable relative time
func formatAge(t time.Time, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < 0:
		return "in " + (-d).Round(time.Second).String()
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d mins ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
