// Package testutil provides shared mock implementations of domain interfaces
// for use in tests across the codebase. This follows the Go convention of a
// shared test utility package (like net/http/httptest).
package testutil

import (
	"context"

	"lakegate/internal/domain"
)

// === Table Client Mock ===

// MockTableClient implements domain.TableClient for testing.
// Uses function fields so tests only need to set the methods they care about.
type MockTableClient struct {
	HasBranchFn    func(ctx context.Context, name string) (bool, error)
	CreateBranchFn func(ctx context.Context, name, fromRef string) error
	DeleteBranchFn func(ctx context.Context, name string) error
	MergeBranchFn  func(ctx context.Context, source, into string) error
	QueryFn        func(ctx context.Context, sqlText, ref string) (*domain.Tabular, error)
}

// HasBranch implements the interface method for testing.
func (m *MockTableClient) HasBranch(ctx context.Context, name string) (bool, error) {
	if m.HasBranchFn != nil {
		return m.HasBranchFn(ctx, name)
	}
	panic("unexpected call to MockTableClient.HasBranch")
}

// CreateBranch implements the interface method for testing.
func (m *MockTableClient) CreateBranch(ctx context.Context, name, fromRef string) error {
	if m.CreateBranchFn != nil {
		return m.CreateBranchFn(ctx, name, fromRef)
	}
	panic("unexpected call to MockTableClient.CreateBranch")
}

// DeleteBranch implements the interface method for testing.
func (m *MockTableClient) DeleteBranch(ctx context.Context, name string) error {
	if m.DeleteBranchFn != nil {
		return m.DeleteBranchFn(ctx, name)
	}
	panic("unexpected call to MockTableClient.DeleteBranch")
}

// MergeBranch implements the interface method for testing.
func (m *MockTableClient) MergeBranch(ctx context.Context, source, into string) error {
	if m.MergeBranchFn != nil {
		return m.MergeBranchFn(ctx, source, into)
	}
	panic("unexpected call to MockTableClient.MergeBranch")
}

// Query implements the interface method for testing.
func (m *MockTableClient) Query(ctx context.Context, sqlText, ref string) (*domain.Tabular, error) {
	if m.QueryFn != nil {
		return m.QueryFn(ctx, sqlText, ref)
	}
	panic("unexpected call to MockTableClient.Query")
}

var _ domain.TableClient = (*MockTableClient)(nil)

// === Write Delegate Mock ===

// MockWriteDelegate implements domain.WriteDelegate for testing.
type MockWriteDelegate struct {
	IngestFn    func(ctx context.Context, req domain.IngestRequest) (*domain.IngestStats, error)
	TransformFn func(ctx context.Context, req domain.TransformRequest) (*domain.TransformStats, error)
}

// Ingest implements the interface method for testing.
func (m *MockWriteDelegate) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
	if m.IngestFn != nil {
		return m.IngestFn(ctx, req)
	}
	panic("unexpected call to MockWriteDelegate.Ingest")
}

// Transform implements the interface method for testing.
func (m *MockWriteDelegate) Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformStats, error) {
	if m.TransformFn != nil {
		return m.TransformFn(ctx, req)
	}
	panic("unexpected call to MockWriteDelegate.Transform")
}

var _ domain.WriteDelegate = (*MockWriteDelegate)(nil)

// === Run Store Mock ===

// MockRunStore implements domain.RunStore for testing.
type MockRunStore struct {
	InsertRunFn func(ctx context.Context, run *domain.PipelineRun) error
	GetRunFn    func(ctx context.Context, id string) (*domain.PipelineRun, error)
	ListRunsFn  func(ctx context.Context, limit int) ([]*domain.PipelineRun, error)
	Runs        []*domain.PipelineRun // collected runs for assertions
}

// InsertRun implements the interface method for testing.
func (m *MockRunStore) InsertRun(ctx context.Context, run *domain.PipelineRun) error {
	if m.InsertRunFn != nil {
		err := m.InsertRunFn(ctx, run)
		if err != nil {
			return err
		}
		m.Runs = append(m.Runs, run)
		return nil
	}
	m.Runs = append(m.Runs, run)
	return nil
}

// GetRun implements the interface method for testing.
func (m *MockRunStore) GetRun(ctx context.Context, id string) (*domain.PipelineRun, error) {
	if m.GetRunFn != nil {
		return m.GetRunFn(ctx, id)
	}
	panic("unexpected call to MockRunStore.GetRun")
}

// ListRuns implements the interface method for testing.
func (m *MockRunStore) ListRuns(ctx context.Context, limit int) ([]*domain.PipelineRun, error) {
	if m.ListRunsFn != nil {
		return m.ListRunsFn(ctx, limit)
	}
	panic("unexpected call to MockRunStore.ListRuns")
}

// LastRun returns the last collected run, or nil if none.
func (m *MockRunStore) LastRun() *domain.PipelineRun {
	if len(m.Runs) == 0 {
		return nil
	}
	return m.Runs[len(m.Runs)-1]
}

var _ domain.RunStore = (*MockRunStore)(nil)
