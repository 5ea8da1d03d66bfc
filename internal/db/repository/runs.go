// Package repository implements the run-history store on SQLite.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"lakegate/internal/domain"
)

// Compile-time check.
var _ domain.RunStore = (*RunRepo)(nil)

// defaultListLimit bounds ListRuns when the caller passes no limit.
const defaultListLimit = 20

// runColumns is the shared column list for pipeline_runs selects; keep it
// in sync with scanRun.
const runColumns = `id, branch, phase, state, success, error, warnings,
	ingestion, transformation, merge_stats,
	audit_all_passed, audit_total, audit_passed, audit_failed,
	started_at, finished_at`

// RunRepo implements domain.RunStore using the SQLite metastore.
type RunRepo struct {
	db *sql.DB
}

// NewRunRepo creates a new RunRepo.
func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// InsertRun stores the complete record of a finished run, including its
// per-check audit results, in a single transaction. The run must already
// carry its ID; the coordinator assigns one at run start.
func (r *RunRepo) InsertRun(ctx context.Context, run *domain.PipelineRun) error {
	if run == nil || run.ID == "" {
		return domain.ErrValidation("run record must carry an id")
	}

	// Warnings are normalized to a JSON array so the column never holds null.
	warnings, err := json.Marshal(append([]string{}, run.Warnings...))
	if err != nil {
		return fmt.Errorf("marshal warnings: %w", err)
	}

	var ingestion sql.NullString
	if run.Ingestion != nil {
		data, err := json.Marshal(run.Ingestion)
		if err != nil {
			return fmt.Errorf("marshal ingestion stats: %w", err)
		}
		ingestion = sql.NullString{String: string(data), Valid: true}
	}

	var transformation sql.NullString
	if run.Transformation != nil {
		data, err := json.Marshal(run.Transformation)
		if err != nil {
			return fmt.Errorf("marshal transformation stats: %w", err)
		}
		transformation = sql.NullString{String: string(data), Valid: true}
	}

	var mergeStats sql.NullString
	if run.Merge != nil {
		data, err := json.Marshal(run.Merge)
		if err != nil {
			return fmt.Errorf("marshal merge stats: %w", err)
		}
		mergeStats = sql.NullString{String: string(data), Valid: true}
	}

	var allPassed sql.NullBool
	var total, passed, failed sql.NullInt64
	if run.Audit != nil {
		allPassed = sql.NullBool{Bool: run.Audit.AllPassed, Valid: true}
		total = sql.NullInt64{Int64: int64(run.Audit.TotalChecks), Valid: true}
		passed = sql.NullInt64{Int64: int64(run.Audit.PassedCount), Valid: true}
		failed = sql.NullInt64{Int64: int64(run.Audit.FailedCount), Valid: true}
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipeline_runs (
			id, branch, phase, state, success, error, warnings,
			ingestion, transformation, merge_stats,
			audit_all_passed, audit_total, audit_passed, audit_failed,
			started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Branch, run.Phase, run.State, run.Success, run.Error, string(warnings),
		ingestion, transformation, mergeStats,
		allPassed, total, passed, failed,
		run.StartedAt.UTC(), run.FinishedAt.UTC(),
	)
	if err != nil {
		return mapDBError(err)
	}

	if run.Audit != nil {
		for i, res := range run.Audit.Checks {
			detail := []byte(`{}`)
			if res.Detail != nil {
				if detail, err = json.Marshal(res.Detail); err != nil {
					return fmt.Errorf("marshal detail for check %s: %w", res.Check, err)
				}
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO audit_check_results (run_id, position, check_name, passed, message, detail)
				VALUES (?, ?, ?, ?, ?, ?)`,
				run.ID, i, res.Check, res.Passed, res.Message, string(detail),
			); err != nil {
				return mapDBError(err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run insert: %w", err)
	}
	return nil
}

// GetRun returns one stored run with its per-check audit results.
func (r *RunRepo) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound("run %q not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}

	if run.Audit != nil {
		checks, err := r.listCheckResults(ctx, id)
		if err != nil {
			return nil, err
		}
		run.Audit.Checks = checks
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first. Per-check audit
// results are not hydrated here; GetRun loads them for a single run.
func (r *RunRepo) ListRuns(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM pipeline_runs ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*domain.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

func (r *RunRepo) listCheckResults(ctx context.Context, runID string) ([]domain.AuditResult, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT check_name, passed, message, detail
		FROM audit_check_results
		WHERE run_id = ?
		ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("list check results for run %s: %w", runID, err)
	}
	defer rows.Close()

	var results []domain.AuditResult
	for rows.Next() {
		var res domain.AuditResult
		var detail string
		if err := rows.Scan(&res.Check, &res.Passed, &res.Message, &detail); err != nil {
			return nil, fmt.Errorf("scan check result: %w", err)
		}
		if detail != "" && detail != "{}" {
			if err := json.Unmarshal([]byte(detail), &res.Detail); err != nil {
				return nil, fmt.Errorf("decode detail for check %s: %w", res.Check, err)
			}
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list check results for run %s: %w", runID, err)
	}
	return results, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*domain.PipelineRun, error) {
	var (
		run            domain.PipelineRun
		warnings       string
		ingestion      sql.NullString
		transformation sql.NullString
		mergeStats     sql.NullString
		allPassed      sql.NullBool
		total          sql.NullInt64
		passed         sql.NullInt64
		failed         sql.NullInt64
	)
	if err := row.Scan(
		&run.ID, &run.Branch, &run.Phase, &run.State, &run.Success, &run.Error, &warnings,
		&ingestion, &transformation, &mergeStats,
		&allPassed, &total, &passed, &failed,
		&run.StartedAt, &run.FinishedAt,
	); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(warnings), &run.Warnings); err != nil {
		return nil, fmt.Errorf("decode warnings: %w", err)
	}
	if ingestion.Valid {
		var st domain.IngestStats
		if err := json.Unmarshal([]byte(ingestion.String), &st); err != nil {
			return nil, fmt.Errorf("decode ingestion stats: %w", err)
		}
		run.Ingestion = &st
	}
	if transformation.Valid {
		var st domain.TransformStats
		if err := json.Unmarshal([]byte(transformation.String), &st); err != nil {
			return nil, fmt.Errorf("decode transformation stats: %w", err)
		}
		run.Transformation = &st
	}
	if mergeStats.Valid {
		var st domain.MergeStats
		if err := json.Unmarshal([]byte(mergeStats.String), &st); err != nil {
			return nil, fmt.Errorf("decode merge stats: %w", err)
		}
		run.Merge = &st
	}
	if total.Valid {
		run.Audit = &domain.AuditSummary{
			AllPassed:   allPassed.Bool,
			TotalChecks: int(total.Int64),
			PassedCount: int(passed.Int64),
			FailedCount: int(failed.Int64),
		}
	}
	return &run, nil
}

// mapDBError translates driver-level failures into domain errors.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound("run not found")
	}
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return domain.ErrConflict("run already recorded")
	}
	return err
}
