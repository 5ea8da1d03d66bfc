package testutil

import (
	"context"
	"strings"
	"sync"

	"lakegate/internal/domain"
)

// FakeTableStore is a stateful in-memory table service for lifecycle
// tests. It tracks which branches exist, records every operation in Log,
// and answers audit queries with configurable scalars.
//
// Query inspects the first "AS <column>" alias in the SQL and returns the
// value from Scalars under that column name (0 when absent, except
// row_count which defaults to a populated table). The defaults make the
// built-in check suite pass.
type FakeTableStore struct {
	mu       sync.Mutex
	branches map[string]string // branch -> fromRef
	Log      []string          // "has b", "create b from main", "delete b", "merge b into main", "query b"
	Scalars  map[string]float64

	HasErr    error
	CreateErr error
	DeleteErr error
	MergeErr  error
	QueryErr  error
}

// NewFakeTableStore creates a fake with scalars that satisfy the default
// check suite (zero violations, 100 rows).
func NewFakeTableStore() *FakeTableStore {
	return &FakeTableStore{
		branches: make(map[string]string),
		Scalars: map[string]float64{
			"null_count":      0,
			"duplicate_count": 0,
			"row_count":       100,
		},
	}
}

// HasBranch implements domain.TableClient.
func (f *FakeTableStore) HasBranch(_ context.Context, name string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, "has "+name)
	if f.HasErr != nil {
		return false, f.HasErr
	}
	_, ok := f.branches[name]
	return ok, nil
}

// CreateBranch implements domain.TableClient. Creating an existing branch
// is a conflict, mirroring the real service.
func (f *FakeTableStore) CreateBranch(_ context.Context, name, fromRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, "create "+name+" from "+fromRef)
	if f.CreateErr != nil {
		return f.CreateErr
	}
	if _, ok := f.branches[name]; ok {
		return domain.ErrConflict("branch %q already exists", name)
	}
	f.branches[name] = fromRef
	return nil
}

// DeleteBranch implements domain.TableClient. Deleting an absent branch
// is a no-op.
func (f *FakeTableStore) DeleteBranch(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, "delete "+name)
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	delete(f.branches, name)
	return nil
}

// MergeBranch implements domain.TableClient.
func (f *FakeTableStore) MergeBranch(_ context.Context, source, into string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, "merge "+source+" into "+into)
	if f.MergeErr != nil {
		return f.MergeErr
	}
	if _, ok := f.branches[source]; !ok {
		return domain.ErrNotFound("branch %q does not exist", source)
	}
	return nil
}

// Query implements domain.TableClient.
func (f *FakeTableStore) Query(_ context.Context, sqlText, ref string) (*domain.Tabular, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Log = append(f.Log, "query "+ref)
	if f.QueryErr != nil {
		return nil, f.QueryErr
	}
	if _, ok := f.branches[ref]; !ok && ref != "main" {
		return nil, domain.ErrNotFound("unknown ref: %q", ref)
	}
	column := firstAlias(sqlText)
	if column == "" {
		return &domain.Tabular{}, nil
	}
	return &domain.Tabular{
		Columns:  []string{column},
		Rows:     [][]interface{}{{f.Scalars[column]}},
		RowCount: 1,
	}, nil
}

// HasBranchNow reports branch existence without logging, for assertions.
func (f *FakeTableStore) HasBranchNow(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.branches[name]
	return ok
}

// SeedBranch makes a branch exist without going through CreateBranch.
func (f *FakeTableStore) SeedBranch(name, fromRef string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.branches[name] = fromRef
}

// firstAlias extracts the first "AS <name>" alias from a SQL string.
func firstAlias(sqlText string) string {
	const marker = " AS "
	i := strings.Index(sqlText, marker)
	if i < 0 {
		return ""
	}
	rest := sqlText[i+len(marker):]
	if j := strings.IndexAny(rest, " \t\n,)"); j >= 0 {
		return rest[:j]
	}
	return rest
}

var _ domain.TableClient = (*FakeTableStore)(nil)
