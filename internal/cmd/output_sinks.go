package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ledgersweep/ledgersweep/internal/output"
)

type outputSink struct {
	writer io.Writer
	close  func() error
	path   string
}

// addOutputFlags registers the report rendering flags shared by batch commands.
func addOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "table", "output format: table, json, markdown")
	cmd.Flags().String("out", "", "write the report to a file instead of stdout")
	cmd.Flags().String("out-dir", "", "write the report to a timestamped file in this directory")
	cmd.Flags().Bool("show-log", false, "include the operation log in table and markdown output")
}

func outputExtension(format output.Format) string {
	switch format {
	case output.FormatJSON:
		return "json"
	case output.FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

func sanitizeFilename(value string) string {
	clean := strings.ToLower(strings.TrimSpace(value))
	clean = nonFilename.ReplaceAllString(clean, "-")
	clean = strings.Trim(clean, "-.")
	if clean == "" {
		return "output"
	}
	return clean
}

// reportFilename names a report as <operation>-<realm>-<utc timestamp>.<ext>.
func reportFilename(operation, realmID string, at time.Time, format output.Format) string {
	stamp := at.UTC().Format("20060102T150405Z")
	base := sanitizeFilename(operation)
	if realm := sanitizeFilename(realmID); realmID != "" {
		base += "-" + realm
	}
	return fmt.Sprintf("%s-%s.%s", base, stamp, outputExtension(format))
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

func resolveFormatter(cmd *cobra.Command) (output.Format, output.Formatter, error) {
	format, err := resolveOutputFormat(cmd)
	if err != nil {
		return "", nil, err
	}
	showLog, err := cmd.Flags().GetBool("show-log")
	if err != nil {
		return "", nil, err
	}
	return format, output.NewFormatter(format, output.Options{ShowLog: showLog}), nil
}

func resolveOutputTargets(cmd *cobra.Command) (outPath string, outDir string, err error) {
	outPath, err = cmd.Flags().GetString("out")
	if err != nil {
		return "", "", err
	}
	outDir, err = cmd.Flags().GetString("out-dir")
	if err != nil {
		return "", "", err
	}
	if strings.TrimSpace(outPath) != "" && strings.TrimSpace(outDir) != "" {
		return "", "", fmt.Errorf("--out and --out-dir are mutually exclusive")
	}
	return strings.TrimSpace(outPath), strings.TrimSpace(outDir), nil
}

// writeReport renders to the sink chosen by --out / --out-dir, or stdout.
func writeReport(cmd *cobra.Command, name string, rendered string) (string, error) {
	outPath, outDir, err := resolveOutputTargets(cmd)
	if err != nil {
		return "", err
	}
	if outDir != "" {
		dir, err := ensureOutDir(outDir)
		if err != nil {
			return "", err
		}
		outPath = filepath.Join(dir, name)
	}

	sink, err := openSink(outPath)
	if err != nil {
		return "", err
	}
	if sink.path == "-" {
		sink.writer = cmd.OutOrStdout()
	}
	if _, err := io.WriteString(sink.writer, rendered); err != nil {
		_ = sink.close()
		return "", err
	}
	if !strings.HasSuffix(rendered, "\n") {
		_, _ = io.WriteString(sink.writer, "\n")
	}
	return sink.path, sink.close()
}

func openSink(path string) (*outputSink, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" || trimmed == "-" {
		return &outputSink{writer: os.Stdout, close: func() error { return nil }, path: "-"}, nil
	}

	if err := os.MkdirAll(filepath.Dir(trimmed), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	file, err := os.Create(trimmed)
	if err != nil {
		return nil, err
	}
	return &outputSink{writer: file, close: file.Close, path: trimmed}, nil
}

func ensureOutDir(dir string) (string, error) {
	clean := strings.TrimSpace(dir)
	if clean == "" {
		return "", nil
	}
	if err := os.MkdirAll(clean, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return clean, nil
	}
	return abs, nil
}
