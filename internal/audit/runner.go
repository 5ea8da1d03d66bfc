package audit

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"lakegate/internal/domain"
)

// DefaultConcurrency bounds the audit fan-out when no limit is configured.
const DefaultConcurrency = 8

// Runner executes every registered check against one branch.
type Runner struct {
	client domain.TableClient
	limit  int
	logger *slog.Logger
}

// NewRunner creates a check runner. limit bounds concurrent check
// queries; 0 selects DefaultConcurrency, negative values run unbounded.
func NewRunner(client domain.TableClient, limit int, logger *slog.Logger) *Runner {
	if limit == 0 {
		limit = DefaultConcurrency
	}
	return &Runner{client: client, limit: limit, logger: logger}
}

// RunAll renders and executes every check in reg against the branch,
// returning one result per check in registration order. A failing check
// query is folded into that check's result and never aborts the others;
// RunAll returns only after every check has finished.
func (r *Runner) RunAll(ctx context.Context, reg *Registry, branch, tableRef string) []domain.AuditResult {
	checks := reg.Checks()
	results := make([]domain.AuditResult, len(checks))

	g, gctx := errgroup.WithContext(ctx)
	if r.limit > 0 {
		g.SetLimit(r.limit)
	}

	for i := range checks {
		check := checks[i]
		g.Go(func() error {
			results[i] = r.runOne(gctx, check, branch, tableRef)
			return nil // a failed check must not cancel its siblings
		})
	}
	_ = g.Wait()

	return results
}

func (r *Runner) runOne(ctx context.Context, check domain.AuditCheck, branch, tableRef string) domain.AuditResult {
	sqlText := check.Render(tableRef)
	r.logger.Debug("running audit check", "check", check.Name, "branch", branch, "table", tableRef)

	tab, err := r.client.Query(ctx, sqlText, branch)
	if err != nil {
		execErr := domain.ErrCheckExecution(check.Name, err)
		r.logger.Warn("audit check query failed", "check", check.Name, "branch", branch, "error", err)
		return domain.AuditResult{
			Check:   check.Name,
			Passed:  false,
			Message: execErr.Error(),
			Detail: map[string]interface{}{
				"table": tableRef,
				"error": err.Error(),
			},
		}
	}

	// Empty results and missing columns read as zero.
	value, _ := tab.Scalar(check.ScalarColumn)
	passed := check.Evaluate(value)

	msg := "passed"
	if !passed {
		msg = "failed"
	}
	return domain.AuditResult{
		Check:   check.Name,
		Passed:  passed,
		Message: formatVerdict(check, value, msg),
		Detail: map[string]interface{}{
			"table":            tableRef,
			check.ScalarColumn: value,
			"threshold":        check.Threshold,
			"comparison":       check.Comparison,
		},
	}
}

func formatVerdict(check domain.AuditCheck, value float64, verdict string) string {
	return fmt.Sprintf("%s %s: %s=%g (want %s %g)",
		check.Name, verdict, check.ScalarColumn, value, check.Comparison, check.Threshold)
}
