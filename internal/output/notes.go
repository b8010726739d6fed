package output

import (
	"fmt"
	"strings"

	"github.com/ledgersweep/ledgersweep/internal/core"
	"github.com/ledgersweep/ledgersweep/internal/core/sweep"
)

// recordLabel names a record by the ids it carries.
func recordLabel(record core.DeletableRecord) string {
	parts := make([]string, 0, 3)
	if record.BillPaymentID != "" {
		parts = append(parts, "payment "+record.BillPaymentID)
	}
	if record.BillID != "" {
		parts = append(parts, "bill "+record.BillID)
	}
	if record.DocNumber != "" {
		parts = append(parts, "doc "+record.DocNumber)
	}
	if len(parts) == 0 {
		return "(no ids)"
	}
	return strings.Join(parts, ", ")
}

func stepsLabel(ops []core.RecordOperation) string {
	if len(ops) == 0 {
		return "-"
	}
	steps := make([]string, 0, len(ops))
	for _, op := range ops {
		steps = append(steps, fmt.Sprintf("%s %s: %s", stepName(op.Type), op.EntityID, strings.ToLower(string(op.Status))))
	}
	return strings.Join(steps, "; ")
}

func stepName(op core.OperationType) string {
	switch op {
	case core.OperationDeleteBillPayment:
		return "payment"
	case core.OperationDeleteBill:
		return "bill"
	default:
		return string(op)
	}
}

func formatRate(rate *float64) string {
	if rate == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", *rate)
}

func deleteSummaryLine(summary core.Summary) string {
	if summary.Empty {
		return "no records"
	}
	line := fmt.Sprintf("%d/%d succeeded", summary.Successful, summary.TotalRequested)
	if summary.Partial > 0 {
		line += fmt.Sprintf(", %d partial", summary.Partial)
	}
	if summary.Failed > 0 {
		line += fmt.Sprintf(", %d failed", summary.Failed)
	}
	return line
}

func operationsLine(summary core.Summary) string {
	return fmt.Sprintf("%d/%d operations succeeded (%s)",
		summary.SuccessfulOperations, summary.TotalOperations, formatRate(summary.OperationSuccessRate))
}

func createSummaryLine(summary sweep.CreateSummary) string {
	if summary.Empty {
		return "no bills"
	}
	return fmt.Sprintf("%d/%d created, %d failed (%s)",
		summary.Successful, summary.TotalRequested, summary.Failed, formatRate(summary.SuccessRate))
}

func logTarget(entry core.OperationLogEntry) string {
	if entry.EntityID == "" {
		return string(entry.Entity)
	}
	return string(entry.Entity) + " " + entry.EntityID
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if limit <= 0 || len(value) <= limit {
		return value
	}
	return value[:limit-3] + "..."
}
