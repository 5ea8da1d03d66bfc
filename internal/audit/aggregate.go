package audit

import "lakegate/internal/domain"

// Aggregate reduces per-check results into the run-level verdict. Pure:
// it never mutates results, and aggregating the same results twice yields
// the same summary.
func Aggregate(results []domain.AuditResult) *domain.AuditSummary {
	summary := &domain.AuditSummary{
		TotalChecks: len(results),
		Checks:      append([]domain.AuditResult(nil), results...),
	}
	for _, res := range results {
		if res.Passed {
			summary.PassedCount++
		} else {
			summary.FailedCount++
		}
	}
	summary.AllPassed = summary.FailedCount == 0
	return summary
}
