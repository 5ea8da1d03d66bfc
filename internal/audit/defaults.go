package audit

import "lakegate/internal/domain"

// DefaultRegistry returns the built-in check suite for the silver
// telemetry schema (columns time, signal, value, value_original; logical
// key (time, signal)).
func DefaultRegistry() *Registry {
	reg := NewRegistry()
	for _, check := range []domain.AuditCheck{
		{
			Name:         "no_null_time",
			Description:  "time column has no NULL values",
			Template:     "SELECT COUNT(*) AS null_count FROM {table} WHERE time IS NULL",
			ScalarColumn: "null_count",
			Threshold:    0,
			Comparison:   domain.CompareEqual,
		},
		{
			Name:         "no_null_value",
			Description:  "value column has no NULL values",
			Template:     "SELECT COUNT(*) AS null_count FROM {table} WHERE value IS NULL",
			ScalarColumn: "null_count",
			Threshold:    0,
			Comparison:   domain.CompareEqual,
		},
		{
			Name:         "no_null_signal",
			Description:  "signal column has no NULL values",
			Template:     "SELECT COUNT(*) AS null_count FROM {table} WHERE signal IS NULL",
			ScalarColumn: "null_count",
			Threshold:    0,
			Comparison:   domain.CompareEqual,
		},
		{
			Name:         "no_duplicates",
			Description:  "(time, signal) pairs are unique",
			Template:     "SELECT COUNT(*) AS duplicate_count FROM (SELECT time, signal, COUNT(*) AS cnt FROM {table} GROUP BY time, signal HAVING COUNT(*) > 1) duplicates",
			ScalarColumn: "duplicate_count",
			Threshold:    0,
			Comparison:   domain.CompareEqual,
		},
		{
			Name:         "row_count",
			Description:  "table holds at least one row",
			Template:     "SELECT COUNT(*) AS row_count FROM {table}",
			ScalarColumn: "row_count",
			Threshold:    1,
			Comparison:   domain.CompareGreaterEqual,
		},
	} {
		// Definitions above are static; Register only fails on duplicates.
		if err := reg.Register(check); err != nil {
			panic(err)
		}
	}
	return reg
}
