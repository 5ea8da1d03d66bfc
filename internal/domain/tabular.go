package domain

import "strconv"

// Tabular is a generic query result: column names plus row values in
// column order.
type Tabular struct {
	Columns  []string
	Rows     [][]interface{}
	RowCount int
}

// Scalar reads the named column from the first row and coerces it to a
// float64. ok is false when the result has no rows, the column is absent,
// or the value is not numeric. Callers treating a missing scalar as zero
// get the lenient audit semantics.
func (t *Tabular) Scalar(column string) (float64, bool) {
	if t == nil || len(t.Rows) == 0 {
		return 0, false
	}
	idx := -1
	for i, c := range t.Columns {
		if c == column {
			idx = i
			break
		}
	}
	if idx < 0 || idx >= len(t.Rows[0]) {
		return 0, false
	}
	return toFloat(t.Rows[0][idx])
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(n), 64)
		return f, err == nil
	}
	return 0, false
}
