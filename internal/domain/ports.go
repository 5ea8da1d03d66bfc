package domain

import "context"

// TableClient is the branch-versioned table service the coordinator
// drives. Implemented by lakehouse.Client (remote) and local.Store
// (embedded).
//
// DeleteBranch is idempotent: deleting an absent branch is not an error.
type TableClient interface {
	HasBranch(ctx context.Context, name string) (bool, error)
	CreateBranch(ctx context.Context, name, fromRef string) error
	DeleteBranch(ctx context.Context, name string) error
	MergeBranch(ctx context.Context, source, into string) error
	Query(ctx context.Context, sqlText, ref string) (*Tabular, error)
}

// WriteDelegate performs the write-phase work on a branch.
type WriteDelegate interface {
	Ingest(ctx context.Context, req IngestRequest) (*IngestStats, error)
	Transform(ctx context.Context, req TransformRequest) (*TransformStats, error)
}

// RunStore persists finished pipeline runs.
// Implemented by repository.RunRepo.
type RunStore interface {
	InsertRun(ctx context.Context, run *PipelineRun) error
	GetRun(ctx context.Context, id string) (*PipelineRun, error)
	ListRuns(ctx context.Context, limit int) ([]*PipelineRun, error)
}

// SourceInventory lists the raw objects below a source URI. The write
// phase uses it to fail fast when nothing matches the ingest pattern.
// Implemented by source.Resolver.
type SourceInventory interface {
	List(ctx context.Context, uri, pattern string) ([]SourceObject, error)
}
