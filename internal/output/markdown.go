package output

import (
	"fmt"
	"strings"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

// MarkdownFormatter renders reports as markdown tables.
type MarkdownFormatter struct {
	ShowLog bool
}

// FormatDelete renders a deletion report as Markdown.
func (f *MarkdownFormatter) FormatDelete(report *sweep.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Deletion batch (realm %s)\n\n", escapeMarkdownCell(report.Metadata.RealmID)))
	sb.WriteString("| # | Record | Strategy | Status | Steps | Errors |\n")
	sb.WriteString("|---|--------|----------|--------|-------|--------|\n")

	for i, r := range report.Results {
		if r == nil {
			continue
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s | %s |\n",
			i+1,
			escapeMarkdownCell(recordLabel(r.Record)),
			escapeMarkdownCell(string(r.Record.DeleteStrategy)),
			escapeMarkdownCell(string(r.Status)),
			escapeMarkdownCell(stepsLabel(r.Operations)),
			escapeMarkdownCell(strings.Join(r.Errors, "; ")),
		))
	}

	sb.WriteString(fmt.Sprintf("\n**Records**: %s (%s)\n", deleteSummaryLine(report.Summary), formatRate(report.Summary.SuccessRate)))
	sb.WriteString(fmt.Sprintf("**Operations**: %s\n", operationsLine(report.Summary)))

	if f.ShowLog {
		sb.WriteString(operationLogMarkdown(report.OperationLogs))
	}
	return sb.String(), nil
}

// FormatCreate renders a creation report as Markdown.
func (f *MarkdownFormatter) FormatCreate(report *sweep.CreateReport) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("## Bill creation (realm %s)\n\n", escapeMarkdownCell(report.Metadata.RealmID)))
	sb.WriteString("| # | Status | Result |\n")
	sb.WriteString("|---|--------|--------|\n")
	for i, r := range report.Results {
		detail := r.Error
		if r.Status == core.StatusSuccess {
			detail = string(r.Result)
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s |\n", i+1, r.Status, escapeMarkdownCell(detail)))
	}
	sb.WriteString(fmt.Sprintf("\n**Summary**: %s\n", createSummaryLine(report.Summary)))

	if f.ShowLog {
		sb.WriteString(operationLogMarkdown(report.OperationLogs))
	}
	return sb.String(), nil
}

// FormatValidation renders a validation report as Markdown.
func (f *MarkdownFormatter) FormatValidation(report *validate.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	var sb strings.Builder
	verdict := "valid"
	if !report.Valid {
		verdict = "invalid"
	}
	sb.WriteString(fmt.Sprintf("## Validation: %s (%d records)\n", verdict, report.Records))
	for _, msg := range report.Errors {
		sb.WriteString("\n- **error**: " + msg)
	}
	for _, msg := range report.Warnings {
		sb.WriteString("\n- warning: " + msg)
	}
	sb.WriteString("\n")
	return sb.String(), nil
}

func operationLogMarkdown(entries []core.OperationLogEntry) string {
	var sb strings.Builder
	sb.WriteString("\n### Operation log\n\n")
	sb.WriteString("| Time | Operation | Entity | Status | ms | Error |\n")
	sb.WriteString("|------|-----------|--------|--------|----|-------|\n")
	for _, entry := range entries {
		sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s |\n",
			entry.Timestamp.Format("2006-01-02T15:04:05.000Z07:00"),
			entry.Operation,
			escapeMarkdownCell(logTarget(entry)),
			entry.Status,
			entry.DurationMs,
			escapeMarkdownCell(entry.Error),
		))
	}
	return sb.String()
}

func escapeMarkdownCell(value string) string {
	return strings.ReplaceAll(value, "|", "\\|")
}
