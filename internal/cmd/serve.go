package cmd

import (
	"context"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ledgersweep/ledgersweep/internal/config"
	"github.com/ledgersweep/ledgersweep/internal/core/engine"
	"github.com/ledgersweep/ledgersweep/internal/core/store"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	errwrap "github.com/ledgersweep/ledgersweep/internal/errors"
	"github.com/ledgersweep/ledgersweep/internal/observability"
	"github.com/ledgersweep/ledgersweep/internal/server"
	"github.com/ledgersweep/ledgersweep/internal/server/handlers"
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

// storeHealthChecker pings the shared throttle store.
type storeHealthChecker struct {
	db *store.Store
}

func (s storeHealthChecker) CheckHealth(ctx context.Context) error {
	if s.db == nil || s.db.DB == nil {
		return errwrap.NewUnavailableError("throttle store not open")
	}
	if err := s.db.DB.PingContext(ctx); err != nil {
		return errwrap.WrapDatabaseError(ctx, err, "throttle store unreachable")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API with graceful shutdown support.

Endpoints:
  POST /v1/bulk-delete   dependent-delete batch (records or entity_type + entity_ids)
  POST /v1/create-bills  create Bills from raw payloads
  POST /v1/validate      pre-flight record validation
  GET  /health, /health/live, /health/ready, /health/startup, /version, /metrics

Each request carries its own access_token and realm_id. Batches run inside
the request, so the write timeout bounds batch length.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload configuration (log level; other settings need a restart)

Set LEDGERSWEEP_ADMIN_TOKEN to enable POST /admin/signal.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "", "server host (default from config)")
	serveCmd.Flags().IntP("port", "p", 0, "server port (default from config)")
	serveCmd.Flags().Int("max-records", 0, "records allowed per request (default from config)")
}

func serveOverrides(cmd *cobra.Command) []map[string]any {
	serverLayer := map[string]any{}
	if cmd.Flags().Changed("host") {
		value, _ := cmd.Flags().GetString("host")
		serverLayer["host"] = value
	}
	if cmd.Flags().Changed("port") {
		value, _ := cmd.Flags().GetInt("port")
		serverLayer["port"] = value
	}
	if cmd.Flags().Changed("max-records") {
		value, _ := cmd.Flags().GetInt("max-records")
		serverLayer["max_records"] = value
	}

	overrides := []map[string]any{}
	if logLevel != "" {
		overrides = append(overrides, map[string]any{"logging": map[string]any{"level": logLevel}})
	}
	if len(serverLayer) > 0 {
		overrides = append(overrides, map[string]any{"server": serverLayer})
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFile(cmd.Context(), cfgFile, serveOverrides(cmd)...)
	if err != nil {
		return withExitCode(foundry.ExitConfigInvalid, "Failed to load configuration", err)
	}

	// Get app identity for telemetry namespace
	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	if err := observability.InitServerLogger(observability.ServerLoggerOptions{
		Service:   identity.BinaryName,
		Level:     cfg.Logging.Level,
		Namespace: namespace,
		Profile:   cfg.Logging.Profile,
	}); err != nil {
		return withExitCode(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}

	metricsPort := cfg.Metrics.Port
	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, metricsPort, namespace); err != nil {
			observability.ServerLogger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
	}

	observability.ServerLogger.Info("Initializing server",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Int("metrics_port", metricsPort),
		zap.Int("max_records", cfg.Server.MaxRecords))

	serviceOpts := sweep.Options{
		Throttle:       cfg.Throttle.Pacing(),
		Timeout:        cfg.Accounting.Timeout,
		MaxBackoffWait: cfg.Throttle.MaxBackoffWait,
		Logger:         observability.ServerLogger,
	}

	var db *store.Store
	if cfg.Throttle.Persist {
		db, err = openStoreWith(cmd.Context(), cfg.Store)
		if err != nil {
			observability.ServerLogger.Warn("Shared throttle state unavailable; pacing in-process only", zap.Error(err))
		} else {
			limiter := &engine.RateLimiter{Store: db}
			limiter.ApplySafetyMargin(cfg.RateLimitMargin)
			serviceOpts.Limiter = limiter
		}
	}

	// Initialize health manager
	if cfg.Health.Enabled {
		handlers.InitHealthManager(versionInfo.Version)
		hm := handlers.GetHealthManager()
		if cfg.Metrics.Enabled {
			hm.RegisterChecker("telemetry", telemetryHealthChecker{})
		}
		hm.RegisterChecker("app_identity", identityHealthChecker{
			binaryName: identity.BinaryName,
			envPrefix:  identity.EnvPrefix,
			configName: identity.ConfigName,
		})
		if db != nil {
			hm.RegisterChecker("throttle_store", storeHealthChecker{db: db})
		}
	}

	// Set app identity for handlers
	handlers.SetAppIdentity(identity)

	srv := server.New(server.Options{
		Host:         cfg.Server.Host,
		Port:         cfg.Server.Port,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		AdminToken:   strings.TrimSpace(os.Getenv(identity.EnvPrefix + "ADMIN_TOKEN")),
		Sweep: handlers.NewSweepHandlers(sweep.New(serviceOpts), handlers.SweepOptions{
			DefaultBaseURL: cfg.Accounting.BaseURL,
			MaxRecords:     cfg.Server.MaxRecords,
		}),
	})

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Register graceful shutdown handlers (LIFO order - last registered, first executed)
	// Handler 1: Flush logger (executed last)
	signals.OnShutdown(func(ctx context.Context) error {
		observability.ServerLogger.Info("Flushing logger...")
		if err := observability.ServerLogger.Sync(); err != nil {
			// Sync errors are often benign (stdout/stderr already closed)
			observability.ServerLogger.Warn("Logger sync returned error (may be benign)",
				zap.Error(err))
		}
		return nil
	})

	// Handler 2: Close the throttle store
	signals.OnShutdown(func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		if err := db.Close(); err != nil {
			return errwrap.WrapDatabaseError(ctx, err, "throttle store close failed")
		}
		return nil
	})

	// Handler 3: Shutdown HTTP server (executed first)
	signals.OnShutdown(func(ctx context.Context) error {
		observability.ServerLogger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}

		observability.ServerLogger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		observability.ServerLogger.Info("Received SIGHUP: reloading configuration")

		reloaded, err := config.LoadFile(ctx, cfgFile, serveOverrides(cmd)...)
		if err != nil {
			observability.ServerLogger.Error("Failed to reload configuration",
				zap.String("file", configFileInUse()),
				zap.Error(err))
			return errwrap.WrapConfigInvalid(ctx, err, "config reload failed")
		}

		if reloaded.Logging.Level != cfg.Logging.Level || reloaded.Logging.Profile != cfg.Logging.Profile {
			if err := observability.InitServerLogger(observability.ServerLoggerOptions{
				Service:   identity.BinaryName,
				Level:     reloaded.Logging.Level,
				Namespace: namespace,
				Profile:   reloaded.Logging.Profile,
			}); err != nil {
				return errwrap.WrapConfigInvalid(ctx, err, "logger reload failed")
			}
		}

		observability.ServerLogger.Info("Configuration reloaded",
			zap.String("file", configFileInUse()),
			zap.String("log_level", reloaded.Logging.Level))
		return nil
	})

	// Enable double-tap force quit (Ctrl+C within 2 seconds)
	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		observability.ServerLogger.Warn("Failed to enable double-tap force quit",
			zap.Error(err))
	}

	// Start server in background goroutine
	errChan := make(chan error, 1)
	go func() {
		observability.ServerLogger.Info("Starting HTTP server...",
			zap.String("host", cfg.Server.Host),
			zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	// Start signal listener in background
	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			observability.ServerLogger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	// Wait for error or shutdown completion
	if err := <-errChan; err != nil {
		return withExitCode(foundry.ExitExternalServiceUnavailable, "Server stopped", err)
	}

	return nil
}
