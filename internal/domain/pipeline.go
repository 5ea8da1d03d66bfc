package domain

import (
	"fmt"
	"time"
)

// Pipeline phase constants. Phase reports where a run last made progress:
// a run that reached a publish decision reports PhasePublish, a run that
// aborted reports the phase that was active when the error occurred.
const (
	PhaseWrite   = "write"
	PhaseAudit   = "audit"
	PhasePublish = "publish"
)

// Terminal state constants.
const (
	StateMerged  = "MERGED"  // audits passed, branch merged into the base ref
	StateKept    = "KEPT"    // branch preserved for inspection or debugging
	StateDeleted = "DELETED" // branch discarded after failed audits
	StateFailed  = "FAILED"  // a phase error aborted the run
)

// Publish policy constants (use with RunRequest and coordinator defaults).
const (
	OnSuccessMerge   = "merge"
	OnSuccessInspect = "inspect"

	OnFailureKeep   = "keep"
	OnFailureDelete = "delete"
)

// ValidateOnSuccess checks v against the recognized success policies.
func ValidateOnSuccess(v string) error {
	switch v {
	case OnSuccessMerge, OnSuccessInspect:
		return nil
	}
	return ErrValidation("on_success must be %q or %q, got %q", OnSuccessMerge, OnSuccessInspect, v)
}

// ValidateOnFailure checks v against the recognized failure policies.
func ValidateOnFailure(v string) error {
	switch v {
	case OnFailureKeep, OnFailureDelete:
		return nil
	}
	return ErrValidation("on_failure must be %q or %q, got %q", OnFailureKeep, OnFailureDelete, v)
}

// PipelineRun is the complete record of one write-audit-publish execution.
// Every outcome, successful or not, is reported through this record; the
// coordinator returns an error only when configuration prevents the run
// from starting.
type PipelineRun struct {
	ID             string
	Branch         string
	Phase          string
	State          string
	Success        bool
	Ingestion      *IngestStats
	Transformation *TransformStats
	Audit          *AuditSummary
	Merge          *MergeStats
	Error          string   // empty when the run was not aborted
	Warnings       []string // recovery and policy notes, in occurrence order
	StartedAt      time.Time
	FinishedAt     time.Time
}

// AddWarning appends a non-fatal note to the run record.
func (r *PipelineRun) AddWarning(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// MergeStats describes a completed publish-phase merge.
type MergeStats struct {
	Branch  string
	Into    string
	Message string
}

// RunRequest holds per-invocation overrides. Zero values fall back to the
// coordinator's configured defaults.
type RunRequest struct {
	SourceURI     string
	SourcePattern string
	Namespace     string
	TargetTable   string
	OnSuccess     string
	OnFailure     string
	BaseRef       string
}
