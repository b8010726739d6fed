package observability

import (
	"fmt"
	"strings"

	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger is used for CLI commands (SIMPLE profile)
	CLILogger *logging.Logger

	// ServerLogger is used for HTTP server (STRUCTURED profile)
	ServerLogger *logging.Logger
)

// InitCLILogger initializes the CLI logger. verbose forces DEBUG; otherwise
// level (trace, debug, info, warn, error) applies.
func InitCLILogger(serviceName, level string, verbose bool) error {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		return fmt.Errorf("initialize CLI logger: %w", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	} else {
		switch normalizeLevel(level) {
		case "TRACE", "DEBUG":
			logger.SetLevel(logging.DEBUG)
		case "WARN":
			logger.SetLevel(logging.WARN)
		case "ERROR":
			logger.SetLevel(logging.ERROR)
		}
	}

	CLILogger = logger
	return nil
}

// ServerLoggerOptions configures the server logger.
type ServerLoggerOptions struct {
	Service   string
	Level     string
	Namespace string

	// Profile is "structured" (JSON, default) or "simple" (console format).
	Profile string
}

// InitServerLogger initializes the server logger with a JSON console sink and
// the correlation middleware.
func InitServerLogger(opts ServerLoggerOptions) error {
	staticFields := make(map[string]any)
	if opts.Namespace != "" {
		staticFields["namespace"] = opts.Namespace
	}

	profile := logging.ProfileStructured
	format := "json"
	if strings.EqualFold(strings.TrimSpace(opts.Profile), "simple") {
		profile = logging.ProfileSimple
		format = "console"
	}

	config := &logging.LoggerConfig{
		Profile:      profile,
		DefaultLevel: normalizeLevel(opts.Level),
		Service:      opts.Service,
		Environment:  "production",
		StaticFields: staticFields,
		Middleware: []logging.MiddlewareConfig{
			{
				Name:    "correlation",
				Enabled: true,
				Order:   100,
				Config:  make(map[string]any),
			},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:   "console",
				Format: format,
				Console: &logging.ConsoleSinkConfig{
					Stream:   "stderr",
					Colorize: false,
				},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}

	logger, err := logging.New(config)
	if err != nil {
		return fmt.Errorf("initialize server logger: %w", err)
	}

	ServerLogger = logger
	return nil
}

// normalizeLevel maps config spellings to logging severities. Unknown values
// fall back to INFO.
func normalizeLevel(level string) string {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}
