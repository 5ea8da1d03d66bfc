package audit

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"lakegate/internal/domain"
)

// checkFile is the on-disk shape of a declarative check suite.
type checkFile struct {
	Checks []checkSpec `yaml:"checks"`
}

type checkSpec struct {
	Name         string  `yaml:"name"`
	Description  string  `yaml:"description"`
	SQL          string  `yaml:"sql"`
	ScalarColumn string  `yaml:"scalar_column"`
	Threshold    float64 `yaml:"threshold"`
	Comparison   string  `yaml:"comparison"`
}

// Parse builds a registry from YAML check definitions. Omitted fields
// default to scalar_column "violation_count", threshold 0, comparison
// "eq". Unknown fields are rejected.
func Parse(data []byte) (*Registry, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file checkFile
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("parse checks: %w", err)
	}
	if len(file.Checks) == 0 {
		return nil, domain.ErrValidation("checks file defines no checks")
	}

	reg := NewRegistry()
	for _, spec := range file.Checks {
		check := domain.AuditCheck{
			Name:         spec.Name,
			Description:  spec.Description,
			Template:     spec.SQL,
			ScalarColumn: spec.ScalarColumn,
			Threshold:    spec.Threshold,
			Comparison:   spec.Comparison,
		}
		if check.ScalarColumn == "" {
			check.ScalarColumn = "violation_count"
		}
		if check.Comparison == "" {
			check.Comparison = domain.CompareEqual
		}
		if err := reg.Register(check); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// FromFile loads a registry from a YAML checks file on disk.
func FromFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is from CLI flag, not user input
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	reg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return reg, nil
}
