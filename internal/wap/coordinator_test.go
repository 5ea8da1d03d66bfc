package wap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lakegate/internal/audit"
	"lakegate/internal/domain"
	"lakegate/internal/testutil"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okDelegate() *testutil.MockWriteDelegate {
	return &testutil.MockWriteDelegate{
		IngestFn: func(_ context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
			return &domain.IngestStats{Table: req.Table, Branch: req.Branch, RowsIngested: 1000}, nil
		},
		TransformFn: func(_ context.Context, req domain.TransformRequest) (*domain.TransformStats, error) {
			return &domain.TransformStats{
				SourceTable:     req.SourceTable,
				TargetTable:     req.TargetTable,
				Branch:          req.Branch,
				JobID:           domain.NewID(),
				RowsTransformed: 950,
			}, nil
		},
	}
}

func testDeps(client domain.TableClient) Deps {
	return Deps{
		Client:   client,
		Delegate: okDelegate(),
		Registry: audit.DefaultRegistry(),
		Branch:   BranchPolicy{Naming: NamingFixed, Tenant: "etl", Suffix: "wap-staging"},
		Defaults: Defaults{
			SourceURI:   "s3://lake/telemetry/raw/",
			Namespace:   "telemetry",
			TargetTable: "signals",
			OnSuccess:   domain.OnSuccessMerge,
			OnFailure:   domain.OnFailureKeep,
		},
		Logger: discardLogger(),
	}
}

func TestRun_MergeOnSuccess(t *testing.T) {
	store := testutil.NewFakeTableStore()
	coord := NewCoordinator(testDeps(store))

	run, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.True(t, run.Success)
	assert.Equal(t, domain.StateMerged, run.State)
	assert.Equal(t, domain.PhasePublish, run.Phase)
	assert.Equal(t, "etl.wap-staging", run.Branch)
	assert.Empty(t, run.Error)
	assert.Empty(t, run.Warnings)

	require.NotNil(t, run.Audit)
	assert.True(t, run.Audit.AllPassed)
	assert.Equal(t, 5, run.Audit.TotalChecks)

	require.NotNil(t, run.Merge)
	assert.Equal(t, "main", run.Merge.Into)

	require.NotNil(t, run.Ingestion)
	assert.Equal(t, int64(1000), run.Ingestion.RowsIngested)
	require.NotNil(t, run.Transformation)
	assert.Equal(t, int64(950), run.Transformation.RowsTransformed)

	assert.False(t, run.FinishedAt.Before(run.StartedAt))

	// The staging branch is gone after a merge.
	assert.False(t, store.HasBranchNow("etl.wap-staging"))
	assert.Contains(t, store.Log, "merge etl.wap-staging into main")
}

func TestRun_InspectOnSuccess(t *testing.T) {
	store := testutil.NewFakeTableStore()
	deps := testDeps(store)
	deps.Defaults.OnSuccess = domain.OnSuccessInspect
	coord := NewCoordinator(deps)

	run, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.True(t, run.Success)
	assert.Equal(t, domain.StateKept, run.State)
	assert.Nil(t, run.Merge)

	// Exactly one warning, explaining the unmerged branch.
	require.Len(t, run.Warnings, 1)
	assert.Equal(t, "Branch etl.wap-staging not merged (on_success=inspect)", run.Warnings[0])

	// Branch survives for inspection.
	assert.True(t, store.HasBranchNow("etl.wap-staging"))
	assert.NotContains(t, store.Log, "merge etl.wap-staging into main")
}

func TestRun_AuditFailure(t *testing.T) {
	t.Run("keep preserves the branch", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		store.Scalars["duplicate_count"] = 3
		deps := testDeps(store)
		deps.Defaults.OnFailure = domain.OnFailureKeep
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.False(t, run.Success)
		assert.Equal(t, domain.StateKept, run.State)
		assert.Equal(t, domain.PhasePublish, run.Phase)
		assert.Empty(t, run.Error, "a failed audit is a verdict, not an error")

		require.NotNil(t, run.Audit)
		assert.False(t, run.Audit.AllPassed)
		assert.Equal(t, 4, run.Audit.PassedCount)
		assert.Equal(t, 1, run.Audit.FailedCount)
		for _, check := range run.Audit.Checks {
			if check.Check == "no_duplicates" {
				assert.Equal(t, float64(3), check.Detail["duplicate_count"])
			}
		}

		require.Len(t, run.Warnings, 1)
		assert.Equal(t, "Branch etl.wap-staging preserved for debugging", run.Warnings[0])
		assert.True(t, store.HasBranchNow("etl.wap-staging"))
	})

	t.Run("delete discards the branch", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		store.Scalars["row_count"] = 0
		deps := testDeps(store)
		deps.Defaults.OnFailure = domain.OnFailureDelete
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.False(t, run.Success)
		assert.Equal(t, domain.StateDeleted, run.State)
		require.Len(t, run.Warnings, 1)
		assert.Equal(t, "Branch etl.wap-staging deleted due to audit failure", run.Warnings[0])
		assert.False(t, store.HasBranchNow("etl.wap-staging"))
		assert.NotContains(t, store.Log, "merge etl.wap-staging into main")
	})

	t.Run("failed cleanup delete leaves the branch kept", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		store.Scalars["row_count"] = 0
		store.DeleteErr = errors.New("service unavailable")
		deps := testDeps(store)
		deps.Defaults.OnFailure = domain.OnFailureDelete
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.False(t, run.Success)
		assert.Equal(t, domain.StateKept, run.State)
		require.Len(t, run.Warnings, 1)
		assert.Contains(t, run.Warnings[0], "Failed to delete branch")
	})
}

func TestRun_WritePhaseFailure(t *testing.T) {
	t.Run("transform error aborts with cleanup", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		deps := testDeps(store)
		deps.Defaults.OnFailure = domain.OnFailureDelete
		deps.Delegate = &testutil.MockWriteDelegate{
			IngestFn: func(_ context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
				return &domain.IngestStats{Table: req.Table, Branch: req.Branch, RowsIngested: 10}, nil
			},
			TransformFn: func(_ context.Context, _ domain.TransformRequest) (*domain.TransformStats, error) {
				return nil, errors.New("job failed: cast error")
			},
		}
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.False(t, run.Success)
		assert.Equal(t, domain.StateFailed, run.State)
		assert.Equal(t, domain.PhaseWrite, run.Phase)
		assert.Contains(t, run.Error, "transform signals_bronze to signals")
		assert.Contains(t, run.Error, "job failed: cast error")
		assert.Nil(t, run.Audit, "no checks ran")
		assert.NotNil(t, run.Ingestion, "ingest had already finished")

		require.Len(t, run.Warnings, 1)
		assert.Equal(t, "Branch etl.wap-staging deleted after error", run.Warnings[0])
		assert.False(t, store.HasBranchNow("etl.wap-staging"))
	})

	t.Run("keep policy skips cleanup", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		deps := testDeps(store)
		deps.Delegate = &testutil.MockWriteDelegate{
			IngestFn: func(_ context.Context, _ domain.IngestRequest) (*domain.IngestStats, error) {
				return nil, errors.New("parquet schema mismatch")
			},
		}
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.Equal(t, domain.StateFailed, run.State)
		assert.Contains(t, run.Error, "ingest into signals_bronze")
		assert.Empty(t, run.Warnings)
		assert.True(t, store.HasBranchNow("etl.wap-staging"), "branch kept for debugging")
	})

	t.Run("branch create error leaves no branch to clean", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		store.CreateErr = errors.New("quota exceeded")
		deps := testDeps(store)
		deps.Defaults.OnFailure = domain.OnFailureDelete
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.Equal(t, domain.StateFailed, run.State)
		assert.Empty(t, run.Branch, "branch was never acquired")
		assert.Contains(t, run.Error, `branch create failed for "etl.wap-staging"`)
		assert.Empty(t, run.Warnings, "nothing to clean up")
	})
}

func TestRun_MergeFailure(t *testing.T) {
	store := testutil.NewFakeTableStore()
	store.MergeErr = errors.New("concurrent commit on main")
	deps := testDeps(store)
	coord := NewCoordinator(deps)

	run, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.False(t, run.Success)
	assert.Equal(t, domain.StateFailed, run.State)
	assert.Equal(t, domain.PhasePublish, run.Phase)
	assert.Contains(t, run.Error, `merge of "etl.wap-staging" into "main" failed`)

	// The audit verdict survives a publish failure.
	require.NotNil(t, run.Audit)
	assert.True(t, run.Audit.AllPassed)

	// on_failure=keep: the audited branch stays for retry or debugging.
	assert.True(t, store.HasBranchNow("etl.wap-staging"))
	assert.Empty(t, run.Warnings)
}

func TestRun_PostMergeDeleteFailure(t *testing.T) {
	store := testutil.NewFakeTableStore()
	store.DeleteErr = errors.New("timeout")
	coord := NewCoordinator(testDeps(store))

	run, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	// Data is published; the leftover branch is only worth a warning.
	assert.True(t, run.Success)
	assert.Equal(t, domain.StateMerged, run.State)
	require.Len(t, run.Warnings, 1)
	assert.Contains(t, run.Warnings[0], "Failed to delete branch")
}

func TestRun_BranchReuse(t *testing.T) {
	store := testutil.NewFakeTableStore()
	deps := testDeps(store)
	deps.Defaults.OnSuccess = domain.OnSuccessInspect
	coord := NewCoordinator(deps)

	first, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.True(t, store.HasBranchNow("etl.wap-staging"))

	mark := len(store.Log)
	second, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	assert.True(t, second.Success)

	// The leftover branch is deleted and recreated, in that order.
	reacquire := store.Log[mark:]
	deleteAt, createAt := -1, -1
	for i, op := range reacquire {
		switch op {
		case "delete etl.wap-staging":
			if deleteAt == -1 {
				deleteAt = i
			}
		case "create etl.wap-staging from main":
			createAt = i
		}
	}
	require.GreaterOrEqual(t, deleteAt, 0, "second run must delete the leftover branch, log: %v", reacquire)
	require.GreaterOrEqual(t, createAt, 0)
	assert.Less(t, deleteAt, createAt)
}

func TestRun_ConfigurationErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Deps)
		req    domain.RunRequest
		msg    string
	}{
		{
			name:   "nil client",
			mutate: func(d *Deps) { d.Client = nil },
			msg:    "table client and write delegate are required",
		},
		{
			name:   "nil delegate",
			mutate: func(d *Deps) { d.Delegate = nil },
			msg:    "table client and write delegate are required",
		},
		{
			name:   "empty registry",
			mutate: func(d *Deps) { d.Registry = audit.NewRegistry() },
			msg:    "audit registry has no checks",
		},
		{
			name:   "nil registry",
			mutate: func(d *Deps) { d.Registry = nil },
			msg:    "audit registry has no checks",
		},
		{
			name:   "invalid branch policy",
			mutate: func(d *Deps) { d.Branch.Tenant = "" },
			msg:    "invalid branch policy",
		},
		{
			name:   "missing source",
			mutate: func(d *Deps) { d.Defaults.SourceURI = "" },
			msg:    "source uri is required",
		},
		{
			name:   "missing namespace",
			mutate: func(d *Deps) { d.Defaults.Namespace = "" },
			msg:    "namespace is required",
		},
		{
			name:   "missing table",
			mutate: func(d *Deps) { d.Defaults.TargetTable = "" },
			msg:    "target table is required",
		},
		{
			name:   "invalid on_success",
			mutate: func(d *Deps) {},
			req:    domain.RunRequest{OnSuccess: "publish"},
			msg:    "on_success must be",
		},
		{
			name:   "invalid on_failure",
			mutate: func(d *Deps) {},
			req:    domain.RunRequest{OnFailure: "retain"},
			msg:    "on_failure must be",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := testutil.NewFakeTableStore()
			deps := testDeps(store)
			tt.mutate(&deps)
			coord := NewCoordinator(deps)

			run, err := coord.Run(context.Background(), tt.req)
			require.Error(t, err)
			assert.Nil(t, run)

			var cfgErr *domain.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.msg)

			// Nothing may have touched the table service.
			assert.Empty(t, store.Log)
		})
	}
}

func TestRun_RequestOverridesDefaults(t *testing.T) {
	store := testutil.NewFakeTableStore()
	var ingested domain.IngestRequest
	var transformed domain.TransformRequest
	deps := testDeps(store)
	deps.Defaults.OnSuccess = domain.OnSuccessInspect
	deps.Delegate = &testutil.MockWriteDelegate{
		IngestFn: func(_ context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
			ingested = req
			return &domain.IngestStats{Table: req.Table, Branch: req.Branch, RowsIngested: 5}, nil
		},
		TransformFn: func(_ context.Context, req domain.TransformRequest) (*domain.TransformStats, error) {
			transformed = req
			return &domain.TransformStats{SourceTable: req.SourceTable, TargetTable: req.TargetTable, Branch: req.Branch, RowsTransformed: 5}, nil
		},
	}
	coord := NewCoordinator(deps)

	run, err := coord.Run(context.Background(), domain.RunRequest{
		SourceURI:   "s3://other/drops/",
		Namespace:   "iot",
		TargetTable: "readings",
		OnSuccess:   domain.OnSuccessMerge,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StateMerged, run.State)
	assert.Equal(t, "s3://other/drops/", ingested.SourceURI)
	assert.Equal(t, "*.parquet", ingested.Pattern)
	assert.Equal(t, "iot", ingested.Namespace)
	assert.Equal(t, "readings_bronze", ingested.Table)
	assert.Equal(t, "readings_bronze", transformed.SourceTable)
	assert.Equal(t, "readings", transformed.TargetTable)
	assert.Equal(t, "s3://other/drops/", run.Ingestion.Source)
}

func TestRun_SourcePreflight(t *testing.T) {
	t.Run("empty listing fails before any branch work", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		deps := testDeps(store)
		deps.Source = &staticInventory{}
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.Equal(t, domain.StateFailed, run.State)
		assert.Equal(t, domain.PhaseWrite, run.Phase)
		assert.Contains(t, run.Error, `no objects matching "*.parquet"`)
		assert.Empty(t, run.Branch)
		assert.Empty(t, store.Log, "preflight failure precedes branch calls")
	})

	t.Run("listing feeds ingest stats", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		deps := testDeps(store)
		deps.Source = &staticInventory{objects: []domain.SourceObject{
			{Key: "telemetry/raw/part-0.parquet", Size: 1 << 20},
			{Key: "telemetry/raw/part-1.parquet", Size: 1 << 20},
		}}
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		require.True(t, run.Success)
		assert.Equal(t, 2, run.Ingestion.FilesDiscovered)
	})

	t.Run("listing error aborts the write phase", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		deps := testDeps(store)
		deps.Source = &staticInventory{err: errors.New("access denied")}
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		assert.Equal(t, domain.StateFailed, run.State)
		assert.Contains(t, run.Error, "list source objects")
	})
}

func TestRun_PersistsToStore(t *testing.T) {
	t.Run("finished run recorded", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		runs := &testutil.MockRunStore{}
		deps := testDeps(store)
		deps.Store = runs
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)

		require.Len(t, runs.Runs, 1)
		assert.Equal(t, run.ID, runs.LastRun().ID)
		assert.Equal(t, domain.StateMerged, runs.LastRun().State)
	})

	t.Run("store failure never alters the outcome", func(t *testing.T) {
		store := testutil.NewFakeTableStore()
		runs := &testutil.MockRunStore{
			InsertRunFn: func(context.Context, *domain.PipelineRun) error {
				return errors.New("disk full")
			},
		}
		deps := testDeps(store)
		deps.Store = runs
		coord := NewCoordinator(deps)

		run, err := coord.Run(context.Background(), domain.RunRequest{})
		require.NoError(t, err)
		assert.True(t, run.Success)
		assert.Equal(t, domain.StateMerged, run.State)
	})
}

func TestRun_UniqueBranchNaming(t *testing.T) {
	store := testutil.NewFakeTableStore()
	deps := testDeps(store)
	deps.Branch = BranchPolicy{Naming: NamingUnique, Tenant: "etl", Suffix: "wap-staging"}
	deps.Defaults.OnSuccess = domain.OnSuccessInspect
	coord := NewCoordinator(deps)

	first, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)
	second, err := coord.Run(context.Background(), domain.RunRequest{})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.Branch, "etl.wap-staging-"))
	assert.True(t, strings.HasPrefix(second.Branch, "etl.wap-staging-"))
	assert.NotEqual(t, first.Branch, second.Branch)

	// Both inspect branches coexist; neither run disturbed the other.
	assert.True(t, store.HasBranchNow(first.Branch))
	assert.True(t, store.HasBranchNow(second.Branch))
}

// staticInventory is a canned domain.SourceInventory.
type staticInventory struct {
	objects []domain.SourceObject
	err     error
}

func (s *staticInventory) List(context.Context, string, string) ([]domain.SourceObject, error) {
	return s.objects, s.err
}
