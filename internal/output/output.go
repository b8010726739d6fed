package output

import (
	"fmt"
	"strings"

	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Options tunes what a formatter includes.
type Options struct {
	// ShowLog appends the operation log to table and markdown output. JSON
	// always carries it.
	ShowLog bool
}

// Formatter renders batch reports.
type Formatter interface {
	FormatDelete(report *sweep.Report) (string, error)
	FormatCreate(report *sweep.CreateReport) (string, error)
	FormatValidation(report *validate.Report) (string, error)
}

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format, opts Options) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{ShowLog: opts.ShowLog}
	default:
		return &TableFormatter{ShowLog: opts.ShowLog}
	}
}
