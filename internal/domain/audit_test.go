package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditCheck_Validate(t *testing.T) {
	tests := []struct {
		name    string
		check   AuditCheck
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid",
			check: AuditCheck{
				Name:         "no_null_time",
				Template:     "SELECT COUNT(*) AS null_count FROM {table} WHERE time IS NULL",
				ScalarColumn: "null_count",
				Threshold:    0,
				Comparison:   CompareEqual,
			},
			wantErr: false,
		},
		{
			name: "empty name",
			check: AuditCheck{
				Template:     "SELECT 1 AS c",
				ScalarColumn: "c",
				Comparison:   CompareEqual,
			},
			wantErr: true,
			errMsg:  "check name is required",
		},
		{
			name: "blank template",
			check: AuditCheck{
				Name:         "blank",
				Template:     "   ",
				ScalarColumn: "c",
				Comparison:   CompareEqual,
			},
			wantErr: true,
			errMsg:  "sql template is required",
		},
		{
			name: "missing scalar column",
			check: AuditCheck{
				Name:       "no_scalar",
				Template:   "SELECT 1 AS c",
				Comparison: CompareEqual,
			},
			wantErr: true,
			errMsg:  "scalar column is required",
		},
		{
			name: "unknown comparison",
			check: AuditCheck{
				Name:         "bad_cmp",
				Template:     "SELECT 1 AS c",
				ScalarColumn: "c",
				Comparison:   "ne",
			},
			wantErr: true,
			errMsg:  `unknown comparison "ne"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.check.Validate()
			if tt.wantErr {
				require.Error(t, err)
				var valErr *ValidationError
				require.ErrorAs(t, err, &valErr)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestAuditCheck_Render(t *testing.T) {
	check := AuditCheck{
		Name:     "no_duplicates",
		Template: "SELECT COUNT(*) FROM (SELECT time, signal FROM {table} GROUP BY time, signal HAVING COUNT(*) > 1) d",
	}

	got := check.Render("telemetry.signals")
	assert.NotContains(t, got, "{table}")
	assert.Contains(t, got, "FROM telemetry.signals GROUP BY")

	// Templates without the placeholder render unchanged.
	fixed := AuditCheck{Name: "static", Template: "SELECT 1 AS one"}
	assert.Equal(t, "SELECT 1 AS one", fixed.Render("telemetry.signals"))
}

func TestAuditCheck_Evaluate(t *testing.T) {
	tests := []struct {
		name       string
		comparison string
		threshold  float64
		value      float64
		want       bool
	}{
		{name: "eq pass", comparison: CompareEqual, threshold: 0, value: 0, want: true},
		{name: "eq fail", comparison: CompareEqual, threshold: 0, value: 3, want: false},
		{name: "gt pass", comparison: CompareGreater, threshold: 10, value: 11, want: true},
		{name: "gt boundary", comparison: CompareGreater, threshold: 10, value: 10, want: false},
		{name: "lt pass", comparison: CompareLess, threshold: 5, value: 4, want: true},
		{name: "lt fail", comparison: CompareLess, threshold: 5, value: 5, want: false},
		{name: "gte boundary", comparison: CompareGreaterEqual, threshold: 1, value: 1, want: true},
		{name: "gte fail", comparison: CompareGreaterEqual, threshold: 1, value: 0, want: false},
		{name: "lte boundary", comparison: CompareLessEqual, threshold: 2, value: 2, want: true},
		{name: "lte fail", comparison: CompareLessEqual, threshold: 2, value: 3, want: false},
		{name: "unknown comparison never passes", comparison: "ne", threshold: 0, value: 1, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check := AuditCheck{Comparison: tt.comparison, Threshold: tt.threshold}
			assert.Equal(t, tt.want, check.Evaluate(tt.value))
		})
	}
}
