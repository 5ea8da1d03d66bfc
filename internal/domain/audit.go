package domain

import "strings"

// Comparison operator constants for audit check thresholds.
const (
	CompareEqual        = "eq"
	CompareGreater      = "gt"
	CompareLess         = "lt"
	CompareGreaterEqual = "gte"
	CompareLessEqual    = "lte"
)

// AuditCheck is a declarative data quality check: a SQL template producing
// one scalar, and the predicate that scalar must satisfy. Checks carry no
// behavior beyond rendering and threshold evaluation.
type AuditCheck struct {
	Name         string
	Description  string
	Template     string // SQL with a {table} placeholder
	ScalarColumn string // result column holding the scalar
	Threshold    float64
	Comparison   string // comparison operator (use Compare* constants)
}

// Validate checks that the check definition is complete and well-formed.
func (c *AuditCheck) Validate() error {
	if c.Name == "" {
		return ErrValidation("check name is required")
	}
	if strings.TrimSpace(c.Template) == "" {
		return ErrValidation("check %q: sql template is required", c.Name)
	}
	if c.ScalarColumn == "" {
		return ErrValidation("check %q: scalar column is required", c.Name)
	}
	switch c.Comparison {
	case CompareEqual, CompareGreater, CompareLess, CompareGreaterEqual, CompareLessEqual:
		return nil
	}
	return ErrValidation("check %q: unknown comparison %q", c.Name, c.Comparison)
}

// Render substitutes the target table reference into the SQL template.
func (c *AuditCheck) Render(tableRef string) string {
	return strings.ReplaceAll(c.Template, "{table}", tableRef)
}

// Evaluate applies the check's comparison to the observed scalar.
func (c *AuditCheck) Evaluate(value float64) bool {
	switch c.Comparison {
	case CompareEqual:
		return value == c.Threshold
	case CompareGreater:
		return value > c.Threshold
	case CompareLess:
		return value < c.Threshold
	case CompareGreaterEqual:
		return value >= c.Threshold
	case CompareLessEqual:
		return value <= c.Threshold
	}
	return false
}

// AuditResult is the outcome of one check against one branch.
type AuditResult struct {
	Check   string
	Passed  bool
	Message string
	Detail  map[string]interface{}
}

// AuditSummary is the aggregated verdict over all checks of a run.
// Invariants: PassedCount+FailedCount == TotalChecks and
// AllPassed == (FailedCount == 0).
type AuditSummary struct {
	AllPassed   bool
	TotalChecks int
	PassedCount int
	FailedCount int
	Checks      []AuditResult
}
