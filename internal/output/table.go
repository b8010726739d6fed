package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
	"github.com/ledgersweep/ledgersweep/internal/core/validate"
)

const tableErrorWidth = 80

// TableFormatter renders reports as ASCII tables.
type TableFormatter struct {
	ShowLog bool
}

// FormatDelete renders a deletion report as a table.
func (f *TableFormatter) FormatDelete(report *sweep.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"#", "Record", "Strategy", "Status", "Steps", "Errors"})

	for i, r := range report.Results {
		if r == nil {
			continue
		}
		t.AppendRow(table.Row{
			i + 1,
			recordLabel(r.Record),
			string(r.Record.DeleteStrategy),
			string(r.Status),
			stepsLabel(r.Operations),
			truncate(strings.Join(r.Errors, "; "), tableErrorWidth),
		})
	}

	t.AppendFooter(table.Row{
		"",
		"",
		"",
		deleteSummaryLine(report.Summary),
		operationsLine(report.Summary),
		"",
	})

	rendered := t.Render()
	if f.ShowLog {
		rendered += "\n\n" + f.operationLog(report.OperationLogs)
	}
	return rendered, nil
}

// FormatCreate renders a creation report as a table.
func (f *TableFormatter) FormatCreate(report *sweep.CreateReport) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"#", "Status", "Result"})

	for i, r := range report.Results {
		detail := r.Error
		if r.Status == core.StatusSuccess {
			detail = string(r.Result)
		}
		t.AppendRow(table.Row{i + 1, string(r.Status), truncate(detail, tableErrorWidth)})
	}
	t.AppendFooter(table.Row{"", createSummaryLine(report.Summary), ""})

	rendered := t.Render()
	if f.ShowLog {
		rendered += "\n\n" + f.operationLog(report.OperationLogs)
	}
	return rendered, nil
}

// FormatValidation renders a validation report as a table.
func (f *TableFormatter) FormatValidation(report *validate.Report) (string, error) {
	if report == nil {
		return "", nil
	}

	t := newTable()
	t.AppendHeader(table.Row{"Level", "Message"})
	for _, msg := range report.Errors {
		t.AppendRow(table.Row{"error", msg})
	}
	for _, msg := range report.Warnings {
		t.AppendRow(table.Row{"warning", msg})
	}

	verdict := "valid"
	if !report.Valid {
		verdict = "invalid"
	}
	t.AppendFooter(table.Row{verdict, fmt.Sprintf("%d records checked", report.Records)})
	return t.Render(), nil
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	// summaries sit in the footer and keep their case
	t.Style().Format.Footer = text.FormatDefault
	return t
}

func (f *TableFormatter) operationLog(entries []core.OperationLogEntry) string {
	t := newTable()
	t.SetTitle("Operation log")
	t.AppendHeader(table.Row{"Time", "Operation", "Entity", "Status", "ms", "Error"})
	for _, entry := range entries {
		t.AppendRow(table.Row{
			entry.Timestamp.Format("15:04:05.000"),
			string(entry.Operation),
			logTarget(entry),
			string(entry.Status),
			entry.DurationMs,
			truncate(entry.Error, tableErrorWidth),
		})
	}
	if len(entries) == 0 {
		t.AppendRow(table.Row{"", "", "(no calls)", "", "", ""})
	}
	return t.Render()
}
