package core

import "math"

// Summary aggregates a batch for display. Rates are percentages rounded to two
// decimals and are nil when their denominator is zero.
type Summary struct {
	TotalRequested       int            `json:"total_requested"`
	Successful           int            `json:"successful"`
	Partial              int            `json:"partial"`
	Failed               int            `json:"failed"`
	TotalOperations      int            `json:"total_operations"`
	SuccessfulOperations int            `json:"successful_operations"`
	FailedOperations     int            `json:"failed_operations"`
	SuccessRate          *float64       `json:"success_rate,omitempty"`
	OperationSuccessRate *float64       `json:"operation_success_rate,omitempty"`
	Empty                bool           `json:"empty"`
	Strategies           map[string]int `json:"strategies_used"`
}

// Summarize derives totals from record outcomes.
func Summarize(results []*RecordOutcome) Summary {
	summary := Summary{
		Strategies: map[string]int{
			string(StrategyBillOnly):    0,
			string(StrategyBoth):        0,
			string(StrategyPaymentOnly): 0,
		},
	}

	for _, result := range results {
		if result == nil {
			continue
		}
		summary.TotalRequested++
		if result.Record.DeleteStrategy != "" {
			summary.Strategies[string(result.Record.DeleteStrategy)]++
		}

		switch result.Status {
		case StatusSuccess:
			summary.Successful++
		case StatusPartial:
			summary.Partial++
		default:
			summary.Failed++
		}

		for _, op := range result.Operations {
			summary.TotalOperations++
			if op.Status == StatusSuccess {
				summary.SuccessfulOperations++
			} else {
				summary.FailedOperations++
			}
		}
	}

	if summary.TotalRequested == 0 {
		summary.Empty = true
		return summary
	}

	summary.SuccessRate = Rate(summary.Successful, summary.TotalRequested)
	if summary.TotalOperations > 0 {
		summary.OperationSuccessRate = Rate(summary.SuccessfulOperations, summary.TotalOperations)
	}
	return summary
}

// Rate returns part/total as a percentage rounded to two decimals, or nil
// when total is zero.
func Rate(part, total int) *float64 {
	if total <= 0 {
		return nil
	}
	value := math.Round(float64(part)/float64(total)*10000) / 100
	return &value
}
