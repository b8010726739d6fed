package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/engine"
	"github.com/ledgersweep/ledgersweep/internal/core/store"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/observability"
)

// addAccountingFlags registers the tenant and throttle flags shared by
// commands that call the accounting service.
func addAccountingFlags(cmd *cobra.Command) {
	cmd.Flags().String("realm-id", "", "company (realm) id (default from config or LEDGERSWEEP_REALM_ID)")
	cmd.Flags().String("access-token", "", "OAuth bearer token (prefer LEDGERSWEEP_ACCESS_TOKEN)")
	cmd.Flags().String("base-url", "", "accounting API base URL")
	cmd.Flags().Int("requests-per-minute", 0, "request ceiling per minute (default from config)")
	cmd.Flags().Duration("delay", 0, "minimum delay between requests (default from config)")
	cmd.Flags().Bool("no-persist", false, "do not share throttle state through the store")
}

// accountingOverrides turns explicitly set flags into a config layer.
func accountingOverrides(cmd *cobra.Command) map[string]any {
	accounting := map[string]any{}
	throttle := map[string]any{}

	for flag, key := range map[string]string{"realm-id": "realm_id", "access-token": "access_token", "base-url": "base_url"} {
		if cmd.Flags().Changed(flag) {
			value, _ := cmd.Flags().GetString(flag)
			accounting[key] = strings.TrimSpace(value)
		}
	}
	if cmd.Flags().Changed("requests-per-minute") {
		value, _ := cmd.Flags().GetInt("requests-per-minute")
		throttle["requests_per_minute"] = value
	}
	if cmd.Flags().Changed("delay") {
		value, _ := cmd.Flags().GetDuration("delay")
		throttle["delay_between_requests"] = value.String()
	}
	if cmd.Flags().Changed("no-persist") {
		value, _ := cmd.Flags().GetBool("no-persist")
		throttle["persist"] = !value
	}

	overrides := map[string]any{}
	if len(accounting) > 0 {
		overrides["accounting"] = accounting
	}
	if len(throttle) > 0 {
		overrides["throttle"] = throttle
	}
	return overrides
}

// commandConfig reloads configuration with the command's flag layer on top.
func commandConfig(cmd *cobra.Command) (*config.Config, error) {
	var overrides []map[string]any
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}
	if flags := accountingOverrides(cmd); len(flags) > 0 {
		overrides = append(overrides, flags)
	}
	return config.LoadFile(cmd.Context(), cfgFile, overrides...)
}

// tenantFromConfig returns the tenant and rejects missing credentials before
// any record is touched.
func tenantFromConfig(cfg *config.Config) (core.ExternalConfig, error) {
	ext := cfg.Accounting.External()
	var missing []string
	if ext.AccessToken == "" {
		missing = append(missing, "access token (--access-token or LEDGERSWEEP_ACCESS_TOKEN)")
	}
	if ext.RealmID == "" {
		missing = append(missing, "realm id (--realm-id or LEDGERSWEEP_REALM_ID)")
	}
	if ext.BaseURL == "" {
		missing = append(missing, "base url (--base-url)")
	}
	if len(missing) > 0 {
		return ext, fmt.Errorf("missing accounting credentials: %s", strings.Join(missing, ", "))
	}
	return ext, nil
}

// sweepRuntime is a service plus the store it may hold open.
type sweepRuntime struct {
	Service *sweep.Service
	store   *store.Store
}

func (r *sweepRuntime) Close() error {
	if r == nil || r.store == nil {
		return nil
	}
	return r.store.Close()
}

// newSweepRuntime builds the batch service from configuration. A store that
// cannot be opened disables shared throttle state with a warning rather than
// failing the batch.
func newSweepRuntime(ctx context.Context, cfg *config.Config) *sweepRuntime {
	opts := sweep.Options{
		Throttle:       cfg.Throttle.Pacing(),
		Timeout:        cfg.Accounting.Timeout,
		MaxBackoffWait: cfg.Throttle.MaxBackoffWait,
		Logger:         observability.CLILogger,
	}
	runtime := &sweepRuntime{}

	if cfg.Throttle.Persist {
		db, err := openStoreWith(ctx, cfg.Store)
		if err != nil {
			if observability.CLILogger != nil {
				observability.CLILogger.Warn("Shared throttle state unavailable; pacing in-process only", zap.Error(err))
			}
		} else {
			limiter := &engine.RateLimiter{Store: db}
			limiter.ApplySafetyMargin(cfg.RateLimitMargin)
			opts.Limiter = limiter
			runtime.store = db
		}
	}

	runtime.Service = sweep.New(opts)
	return runtime
}

// interruptible cancels the command context on SIGINT/SIGTERM so a batch
// stops between calls and still reports what it did.
func interruptible(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func logThroughput(operation string, items int, elapsed time.Duration) {
	if observability.CLILogger == nil {
		return
	}
	perMinute := 0.0
	if elapsed > 0 {
		perMinute = float64(items) / elapsed.Minutes()
	}
	observability.CLILogger.Info("Batch finished",
		zap.String("operation", operation),
		zap.Int("items", items),
		zap.Duration("elapsed", elapsed),
		zap.Float64("items_per_minute", perMinute),
	)
}
