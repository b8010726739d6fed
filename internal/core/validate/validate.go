// Package validate runs pre-flight checks over deletion records before any
// external call is made.
package validate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/ledgersweep/ledgersweep/internal/core"
)

// Duplicate describes an id referenced by more than one record.
type Duplicate struct {
	Entity core.EntityKind `json:"entity"`
	ID     string          `json:"id"`
	Count  int             `json:"count"`
	Rows   []int           `json:"rows"`
}

// Report is the outcome of validating a record list. Rows are 1-based.
type Report struct {
	Valid      bool        `json:"valid"`
	Records    int         `json:"records"`
	Errors     []string    `json:"errors"`
	Warnings   []string    `json:"warnings"`
	Duplicates []Duplicate `json:"duplicates"`
}

// Records checks that every record has a known strategy. Unknown strategies
// and empty input are errors. A record with none of the ids its strategy can
// use is a warning: the orchestrator still reports it as a failed record
// without touching the rest of the batch. A "both" record needs only one id.
// Ids referenced by several records are warnings too.
func Records(records []core.DeletableRecord) *Report {
	report := &Report{
		Records:    len(records),
		Errors:     []string{},
		Warnings:   []string{},
		Duplicates: []Duplicate{},
	}

	if len(records) == 0 {
		report.Errors = append(report.Errors, "No records provided for validation")
		return report
	}

	var badStrategy, missingBill, missingPayment, missingBoth []int
	seen := map[core.EntityKind]map[string][]int{
		core.EntityBill:        {},
		core.EntityBillPayment: {},
	}

	for i, record := range records {
		row := i + 1
		strategy, ok := core.ParseDeleteStrategy(string(record.DeleteStrategy))
		if !ok {
			badStrategy = append(badStrategy, row)
			continue
		}

		billID := strings.TrimSpace(record.BillID)
		paymentID := strings.TrimSpace(record.BillPaymentID)
		hasBill := strategy.DeletesBill() && billID != ""
		hasPayment := strategy.DeletesPayment() && paymentID != ""

		switch {
		case hasBill || hasPayment:
		case strategy == core.StrategyBoth:
			missingBoth = append(missingBoth, row)
		case strategy == core.StrategyBillOnly:
			missingBill = append(missingBill, row)
		default:
			missingPayment = append(missingPayment, row)
		}

		if hasBill {
			seen[core.EntityBill][billID] = append(seen[core.EntityBill][billID], row)
		}
		if hasPayment {
			seen[core.EntityBillPayment][paymentID] = append(seen[core.EntityBillPayment][paymentID], row)
		}
	}

	if len(badStrategy) > 0 {
		report.Errors = append(report.Errors, "Invalid delete_strategy in rows: "+joinRows(badStrategy))
	}
	if len(missingBill) > 0 {
		report.Warnings = append(report.Warnings, "Missing bill_id in rows: "+joinRows(missingBill))
	}
	if len(missingPayment) > 0 {
		report.Warnings = append(report.Warnings, "Missing bill_payment_id in rows: "+joinRows(missingPayment))
	}
	if len(missingBoth) > 0 {
		report.Warnings = append(report.Warnings, "Missing bill_id and bill_payment_id in rows: "+joinRows(missingBoth))
	}

	for _, kind := range []core.EntityKind{core.EntityBillPayment, core.EntityBill} {
		ids := make([]string, 0, len(seen[kind]))
		for id, rows := range seen[kind] {
			if len(rows) > 1 {
				ids = append(ids, id)
			}
		}
		sort.Slice(ids, func(a, b int) bool { return seen[kind][ids[a]][0] < seen[kind][ids[b]][0] })

		for _, id := range ids {
			rows := seen[kind][id]
			report.Duplicates = append(report.Duplicates, Duplicate{Entity: kind, ID: id, Count: len(rows), Rows: rows})
			report.Warnings = append(report.Warnings, fmt.Sprintf("Duplicate %s id %q found %d times", kind, id, len(rows)))
		}
	}

	report.Valid = len(report.Errors) == 0
	return report
}

func joinRows(rows []int) string {
	parts := make([]string, len(rows))
	for i, row := range rows {
		parts[i] = strconv.Itoa(row)
	}
	return strings.Join(parts, ", ")
}
