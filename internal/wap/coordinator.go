package wap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"lakegate/internal/audit"
	"lakegate/internal/domain"
)

// Defaults supplies pipeline parameters used when a RunRequest leaves
// them unset.
type Defaults struct {
	SourceURI     string
	SourcePattern string
	Namespace     string
	TargetTable   string
	OnSuccess     string
	OnFailure     string
	BaseRef       string
}

// Deps bundles the coordinator's collaborators. Client, Delegate, and a
// non-empty Registry are required; Source and Store are optional.
type Deps struct {
	Client     domain.TableClient
	Delegate   domain.WriteDelegate
	Registry   *audit.Registry
	Source     domain.SourceInventory
	Store      domain.RunStore
	Branch     BranchPolicy
	Defaults   Defaults
	AuditLimit int
	Logger     *slog.Logger
}

// Coordinator drives the write-audit-publish state machine.
type Coordinator struct {
	client   domain.TableClient
	delegate domain.WriteDelegate
	registry *audit.Registry
	runner   *audit.Runner
	source   domain.SourceInventory
	store    domain.RunStore
	branch   BranchPolicy
	defaults Defaults
	logger   *slog.Logger
}

// NewCoordinator creates a Coordinator. Dependency and configuration
// problems are reported by Run, before any side effect.
func NewCoordinator(deps Deps) *Coordinator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		client:   deps.Client,
		delegate: deps.Delegate,
		registry: deps.Registry,
		runner:   audit.NewRunner(deps.Client, deps.AuditLimit, logger),
		source:   deps.Source,
		store:    deps.Store,
		branch:   deps.Branch,
		defaults: deps.Defaults,
		logger:   logger,
	}
}

// runParams are the effective parameters of one run after merging the
// request over the configured defaults.
type runParams struct {
	sourceURI   string
	pattern     string
	namespace   string
	table       string
	onSuccess   string
	onFailure   string
	baseRef     string
	branch      string
	bronzeTable string
	tableRef    string
}

// Run executes one write-audit-publish cycle. The returned error is
// non-nil only when configuration prevents the run from starting; once
// the run has touched the table service every failure is reported
// through the returned record, whose State is always terminal.
func (c *Coordinator) Run(ctx context.Context, req domain.RunRequest) (*domain.PipelineRun, error) {
	params, err := c.resolve(req)
	if err != nil {
		return nil, err
	}

	run := &domain.PipelineRun{
		ID:        domain.NewID(),
		Phase:     domain.PhaseWrite,
		StartedAt: time.Now().UTC(),
	}
	logger := c.logger.With("run_id", run.ID, "branch", params.branch)
	logger.Info("starting run",
		"source", params.sourceURI,
		"table", params.tableRef,
		"on_success", params.onSuccess,
		"on_failure", params.onFailure)

	c.execute(ctx, run, params, logger)

	run.FinishedAt = time.Now().UTC()
	c.persist(ctx, run, logger)
	logger.Info("run finished", "state", run.State, "success", run.Success, "warnings", len(run.Warnings))
	return run, nil
}

// resolve merges the request over the defaults and validates the result.
// All failures here are configuration errors: nothing has happened yet.
func (c *Coordinator) resolve(req domain.RunRequest) (runParams, error) {
	if c.client == nil || c.delegate == nil {
		return runParams{}, domain.ErrConfiguration("table client and write delegate are required")
	}
	if c.registry == nil || c.registry.Len() == 0 {
		return runParams{}, domain.ErrConfiguration("audit registry has no checks")
	}
	if err := c.branch.Validate(); err != nil {
		return runParams{}, domain.ErrConfiguration("invalid branch policy: %v", err)
	}

	p := runParams{
		sourceURI: pick(req.SourceURI, c.defaults.SourceURI),
		pattern:   pick(req.SourcePattern, c.defaults.SourcePattern),
		namespace: pick(req.Namespace, c.defaults.Namespace),
		table:     pick(req.TargetTable, c.defaults.TargetTable),
		onSuccess: pick(req.OnSuccess, c.defaults.OnSuccess),
		onFailure: pick(req.OnFailure, c.defaults.OnFailure),
		baseRef:   pick(req.BaseRef, c.defaults.BaseRef),
	}
	if p.sourceURI == "" {
		return runParams{}, domain.ErrConfiguration("source uri is required")
	}
	if p.namespace == "" {
		return runParams{}, domain.ErrConfiguration("namespace is required")
	}
	if p.table == "" {
		return runParams{}, domain.ErrConfiguration("target table is required")
	}
	if p.pattern == "" {
		p.pattern = "*.parquet"
	}
	if p.baseRef == "" {
		p.baseRef = "main"
	}
	if p.onSuccess == "" {
		p.onSuccess = domain.OnSuccessInspect
	}
	if p.onFailure == "" {
		p.onFailure = domain.OnFailureKeep
	}
	if err := domain.ValidateOnSuccess(p.onSuccess); err != nil {
		return runParams{}, domain.ErrConfiguration("%v", err)
	}
	if err := domain.ValidateOnFailure(p.onFailure); err != nil {
		return runParams{}, domain.ErrConfiguration("%v", err)
	}

	p.branch = c.branch.Name()
	p.bronzeTable = p.table + "_bronze"
	p.tableRef = p.namespace + "." + p.table
	return p, nil
}

func (c *Coordinator) execute(ctx context.Context, run *domain.PipelineRun, params runParams, logger *slog.Logger) {
	// WRITE: stage raw and transformed data on an isolated branch.
	if err := c.write(ctx, run, params, logger); err != nil {
		c.abort(ctx, run, params, err, logger)
		return
	}

	// AUDIT: every registered check runs; the verdict is data, not an error.
	run.Phase = domain.PhaseAudit
	logger.Info("running audit checks", "checks", c.registry.Len(), "table", params.tableRef)
	results := c.runner.RunAll(ctx, c.registry, params.branch, params.tableRef)
	run.Audit = audit.Aggregate(results)
	logger.Info("audit finished",
		"all_passed", run.Audit.AllPassed,
		"passed", run.Audit.PassedCount,
		"failed", run.Audit.FailedCount)

	// PUBLISH: exactly one outcome per run.
	run.Phase = domain.PhasePublish
	if !run.Audit.AllPassed {
		c.publishFailed(ctx, run, params, logger)
		return
	}
	c.publishPassed(ctx, run, params, logger)
}

// write runs the source preflight, acquires a clean branch, and delegates
// ingest and transform to the write delegate. Any error is phase-fatal.
func (c *Coordinator) write(ctx context.Context, run *domain.PipelineRun, params runParams, logger *slog.Logger) error {
	filesDiscovered := 0
	if c.source != nil {
		objects, err := c.source.List(ctx, params.sourceURI, params.pattern)
		if err != nil {
			return fmt.Errorf("list source objects: %w", err)
		}
		if len(objects) == 0 {
			return fmt.Errorf("no objects matching %q under %s", params.pattern, params.sourceURI)
		}
		filesDiscovered = len(objects)
		logger.Info("source preflight passed", "objects", filesDiscovered)
	}

	if err := c.acquireBranch(ctx, params.branch, params.baseRef, logger); err != nil {
		return err
	}
	run.Branch = params.branch

	ingest, err := c.delegate.Ingest(ctx, domain.IngestRequest{
		SourceURI: params.sourceURI,
		Pattern:   params.pattern,
		Namespace: params.namespace,
		Table:     params.bronzeTable,
		Branch:    params.branch,
	})
	if err != nil {
		return fmt.Errorf("ingest into %s: %w", params.bronzeTable, err)
	}
	ingest.Source = params.sourceURI
	if filesDiscovered > 0 {
		ingest.FilesDiscovered = filesDiscovered
	}
	run.Ingestion = ingest
	logger.Info("ingest complete", "table", params.bronzeTable, "rows", ingest.RowsIngested)

	transform, err := c.delegate.Transform(ctx, domain.TransformRequest{
		Namespace:   params.namespace,
		SourceTable: params.bronzeTable,
		TargetTable: params.table,
		Branch:      params.branch,
	})
	if err != nil {
		return fmt.Errorf("transform %s to %s: %w", params.bronzeTable, params.table, err)
	}
	run.Transformation = transform
	logger.Info("transform complete", "table", params.table, "rows", transform.RowsTransformed)
	return nil
}

// acquireBranch guarantees a clean branch: an existing branch with the
// same name is deleted and recreated from the base ref.
func (c *Coordinator) acquireBranch(ctx context.Context, branch, baseRef string, logger *slog.Logger) error {
	exists, err := c.client.HasBranch(ctx, branch)
	if err != nil {
		return domain.ErrBranchOp("has", branch, err)
	}
	if exists {
		logger.Info("deleting leftover branch", "from", baseRef)
		if err := c.client.DeleteBranch(ctx, branch); err != nil {
			return domain.ErrBranchOp("delete", branch, err)
		}
	}
	if err := c.client.CreateBranch(ctx, branch, baseRef); err != nil {
		return domain.ErrBranchOp("create", branch, err)
	}
	logger.Info("branch created", "from", baseRef)
	return nil
}

// publishFailed resolves a failed audit verdict: keep the branch for
// debugging or discard it, per the on-failure policy.
func (c *Coordinator) publishFailed(ctx context.Context, run *domain.PipelineRun, params runParams, logger *slog.Logger) {
	run.Success = false
	logger.Warn("audit verdict negative", "failed", run.Audit.FailedCount)

	if params.onFailure == domain.OnFailureDelete {
		if err := c.client.DeleteBranch(ctx, run.Branch); err != nil {
			// The branch still exists, which KEPT describes truthfully.
			run.State = domain.StateKept
			run.AddWarning("Failed to delete branch: %v", err)
			logger.Warn("cleanup delete failed", "error", err)
			return
		}
		run.State = domain.StateDeleted
		run.AddWarning("Branch %s deleted due to audit failure", run.Branch)
		return
	}

	run.State = domain.StateKept
	run.AddWarning("Branch %s preserved for debugging", run.Branch)
}

// publishPassed resolves a passed audit verdict: merge into the base ref
// or keep the branch for inspection, per the on-success policy.
func (c *Coordinator) publishPassed(ctx context.Context, run *domain.PipelineRun, params runParams, logger *slog.Logger) {
	if params.onSuccess == domain.OnSuccessInspect {
		run.State = domain.StateKept
		run.Success = true
		run.AddWarning("Branch %s not merged (on_success=inspect)", run.Branch)
		logger.Info("branch preserved for inspection")
		return
	}

	if err := c.client.MergeBranch(ctx, run.Branch, params.baseRef); err != nil {
		c.abort(ctx, run, params, domain.ErrMerge(run.Branch, params.baseRef, err), logger)
		return
	}
	run.Merge = &domain.MergeStats{
		Branch:  run.Branch,
		Into:    params.baseRef,
		Message: fmt.Sprintf("merged %s into %s", run.Branch, params.baseRef),
	}
	run.State = domain.StateMerged
	run.Success = true
	logger.Info("branch merged", "into", params.baseRef)

	// The staging branch is disposable after a merge.
	if err := c.client.DeleteBranch(ctx, run.Branch); err != nil {
		run.AddWarning("Failed to delete branch: %v", err)
		logger.Warn("post-merge delete failed", "error", err)
	}
}

// abort finalizes a run after a phase error: the state machine lands on
// FAILED, the cause goes on the record, and cleanup runs per the
// on-failure policy without ever masking the original error.
func (c *Coordinator) abort(ctx context.Context, run *domain.PipelineRun, params runParams, cause error, logger *slog.Logger) {
	run.State = domain.StateFailed
	run.Success = false
	run.Error = cause.Error()
	logger.Error("run aborted", "phase", run.Phase, "error", cause)

	if run.Branch == "" || params.onFailure != domain.OnFailureDelete {
		return
	}
	if err := c.client.DeleteBranch(ctx, run.Branch); err != nil {
		run.AddWarning("Failed to delete branch: %v", err)
		logger.Warn("cleanup delete failed", "error", err)
		return
	}
	run.AddWarning("Branch %s deleted after error", run.Branch)
}

// persist records the finished run when a store is configured. Storage
// problems never alter the run outcome.
func (c *Coordinator) persist(ctx context.Context, run *domain.PipelineRun, logger *slog.Logger) {
	if c.store == nil {
		return
	}
	if err := c.store.InsertRun(ctx, run); err != nil {
		logger.Warn("failed to record run", "error", err)
	}
}

func pick(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}
