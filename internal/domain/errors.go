// Package domain defines core types, interfaces, and errors for the
// write-audit-publish coordinator.
package domain

import "fmt"

// NotFoundError indicates a resource was not found.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// ConflictError indicates a conflict (e.g., duplicate resource).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ConfigurationError indicates the pipeline cannot start at all: missing
// credentials, empty check registry, invalid policy values. Raised before
// any side effect.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string { return e.Message }

// BranchOperationError indicates a branch lifecycle call (create, delete,
// inspect) failed. Fatal to the phase that issued it.
type BranchOperationError struct {
	Op     string // "create", "delete", "has", "merge"
	Branch string
	Err    error
}

func (e *BranchOperationError) Error() string {
	return fmt.Sprintf("branch %s failed for %q: %v", e.Op, e.Branch, e.Err)
}

func (e *BranchOperationError) Unwrap() error { return e.Err }

// MergeError indicates the publish-phase merge into the base ref failed.
// The branch still holds the audited data.
type MergeError struct {
	Source string
	Into   string
	Err    error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge of %q into %q failed: %v", e.Source, e.Into, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// CheckExecutionError indicates a single audit check query failed. Never
// fatal to the run: the runner folds it into that check's failed result.
type CheckExecutionError struct {
	Check string
	Err   error
}

func (e *CheckExecutionError) Error() string {
	return fmt.Sprintf("check %q execution failed: %v", e.Check, e.Err)
}

func (e *CheckExecutionError) Unwrap() error { return e.Err }

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrConflict creates a ConflictError with a formatted message.
func ErrConflict(format string, args ...interface{}) *ConflictError {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// ErrConfiguration creates a ConfigurationError with a formatted message.
func ErrConfiguration(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Message: fmt.Sprintf(format, args...)}
}

// ErrBranchOp wraps err as a BranchOperationError for the given operation.
func ErrBranchOp(op, branch string, err error) *BranchOperationError {
	return &BranchOperationError{Op: op, Branch: branch, Err: err}
}

// ErrMerge wraps err as a MergeError.
func ErrMerge(source, into string, err error) *MergeError {
	return &MergeError{Source: source, Into: into, Err: err}
}

// ErrCheckExecution wraps err as a CheckExecutionError for the named check.
func ErrCheckExecution(check string, err error) *CheckExecutionError {
	return &CheckExecutionError{Check: check, Err: err}
}
