// Package local implements the table service on an embedded DuckDB
// database. Every branch is an attached in-memory catalog cloned table
// by table from its base ref, so pipeline runs stay isolated without a
// remote lakehouse service.
package local

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"lakegate/internal/ddl"
	"lakegate/internal/domain"
)

var (
	_ domain.TableClient   = (*Store)(nil)
	_ domain.WriteDelegate = (*Store)(nil)
)

// baseAlias is the catalog holding published data; refs named "main"
// resolve to it.
const baseAlias = "lake"

// defaultTransform is the bronze-to-silver statement. The raw value is
// kept as text in value_original while value gets a lenient numeric
// cast, so malformed readings surface as NULLs for the audit checks.
const defaultTransform = `CREATE OR REPLACE TABLE {target} AS
SELECT
	time,
	signal,
	TRY_CAST(value AS DOUBLE) AS value,
	CAST(value AS VARCHAR) AS value_original
FROM {source}`

// silverColumns is the published table layout Bootstrap creates.
var silverColumns = []ddl.ColumnDef{
	{Name: "time", Type: "TIMESTAMP"},
	{Name: "signal", Type: "VARCHAR"},
	{Name: "value", Type: "DOUBLE"},
	{Name: "value_original", Type: "VARCHAR"},
}

var aliasCharsRe = regexp.MustCompile(`[^a-zA-Z0-9_]`)

// Store is an embedded DuckDB table service.
type Store struct {
	db        *sql.DB
	mu        sync.Mutex
	branches  map[string]string // branch name -> catalog alias
	transform string
	logger    *slog.Logger
}

// NewStore opens an embedded DuckDB instance and attaches the base
// catalog. An empty path keeps published data in memory; otherwise it
// lives in the given database file.
func NewStore(ctx context.Context, path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	attach, err := attachBase(path)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, attach); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("attach base catalog: %w", err)
	}

	return &Store{
		db:        db,
		branches:  make(map[string]string),
		transform: defaultTransform,
		logger:    logger,
	}, nil
}

func attachBase(path string) (string, error) {
	if path == "" {
		return ddl.AttachMemory(baseAlias)
	}
	return ddl.AttachFile(path, baseAlias)
}

// Close releases the embedded database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Bootstrap ensures the published namespace and table exist, so a fresh
// base catalog can be branched and queried before the first merge.
func (s *Store) Bootstrap(ctx context.Context, namespace, table string) error {
	schemaSQL, err := ddl.CreateSchema(baseAlias, namespace)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema %s: %w", namespace, err)
	}

	tableSQL, err := ddl.CreateTable(baseAlias, namespace, table, silverColumns)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, tableSQL); err != nil {
		return fmt.Errorf("create table %s.%s: %w", namespace, table, err)
	}
	return nil
}

// InstallExtensions installs and loads the named DuckDB extensions.
// Remote parquet sources need httpfs; Azure ones need azure as well.
func (s *Store) InstallExtensions(ctx context.Context, names ...string) error {
	for _, name := range names {
		if err := ddl.ValidateIdentifier(name); err != nil {
			return fmt.Errorf("invalid extension name: %w", err)
		}
		stmt := fmt.Sprintf("INSTALL %s; LOAD %s;", name, name)
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("extension setup (%s): %w", name, err)
		}
	}
	return nil
}

// ConfigureS3 creates a named DuckDB secret for S3-compatible storage.
func (s *Store) ConfigureS3(ctx context.Context, keyID, secret, endpoint, region, urlStyle string) error {
	stmt, err := ddl.CreateS3Secret("lake_s3", keyID, secret, endpoint, region, urlStyle)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create S3 secret: %w", err)
	}
	return nil
}

// ConfigureAzure creates a named DuckDB secret for Azure blob storage.
func (s *Store) ConfigureAzure(ctx context.Context, connectionString string) error {
	stmt, err := ddl.CreateAzureSecret("lake_azure", connectionString)
	if err != nil {
		return fmt.Errorf("build DDL: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create Azure secret: %w", err)
	}
	return nil
}

// RegisterTransform replaces the bronze-to-silver statement. The
// template must reference both {source} and {target}, which are
// substituted with fully qualified table names at run time.
func (s *Store) RegisterTransform(template string) error {
	if !strings.Contains(template, "{source}") || !strings.Contains(template, "{target}") {
		return domain.ErrValidation("transform template must reference {source} and {target}")
	}
	s.mu.Lock()
	s.transform = template
	s.mu.Unlock()
	return nil
}

// HasBranch implements domain.TableClient.
func (s *Store) HasBranch(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.branches[name]
	return ok, nil
}

// CreateBranch implements domain.TableClient. The new branch is an
// attached in-memory catalog holding copies of every table in fromRef.
func (s *Store) CreateBranch(ctx context.Context, name, fromRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[name]; ok {
		return domain.ErrConflict("branch %q already exists", name)
	}
	src, err := s.refCatalogLocked(fromRef)
	if err != nil {
		return err
	}

	alias := branchAlias(name)
	attach, err := ddl.AttachMemory(alias)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, attach); err != nil {
		return fmt.Errorf("attach branch catalog: %w", err)
	}

	if err := s.cloneTables(ctx, src, alias); err != nil {
		if detach, derr := ddl.Detach(alias); derr == nil {
			_, _ = s.db.ExecContext(ctx, detach)
		}
		return err
	}

	s.branches[name] = alias
	s.logger.Debug("branch attached", "branch", name, "alias", alias, "from", fromRef)
	return nil
}

// DeleteBranch implements domain.TableClient. Deleting an absent branch
// is a no-op.
func (s *Store) DeleteBranch(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alias, ok := s.branches[name]
	if !ok {
		return nil
	}
	detach, err := ddl.Detach(alias)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, detach); err != nil {
		return fmt.Errorf("detach branch catalog: %w", err)
	}
	delete(s.branches, name)
	return nil
}

// MergeBranch implements domain.TableClient. Every table on the source
// branch replaces its counterpart in the target catalog.
func (s *Store) MergeBranch(ctx context.Context, source, into string) error {
	s.mu.Lock()
	srcAlias, ok := s.branches[source]
	var dst string
	var err error
	if ok {
		dst, err = s.refCatalogLocked(into)
	}
	s.mu.Unlock()

	if !ok {
		return domain.ErrNotFound("branch %q does not exist", source)
	}
	if err != nil {
		return err
	}

	tables, err := s.listTables(ctx, srcAlias)
	if err != nil {
		return err
	}
	for _, tbl := range tables {
		schemaSQL, err := ddl.CreateSchema(dst, tbl.schema)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema %s: %w", tbl.schema, err)
		}
		replaceSQL, err := ddl.ReplaceTable(srcAlias, dst, tbl.schema, tbl.name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, replaceSQL); err != nil {
			return fmt.Errorf("merge table %s.%s: %w", tbl.schema, tbl.name, err)
		}
	}
	s.logger.Debug("branch merged", "branch", source, "into", into, "tables", len(tables))
	return nil
}

// Query implements domain.TableClient. The statement runs on a pinned
// connection with the ref's catalog as default, so schema-qualified
// names resolve inside that branch.
func (s *Store) Query(ctx context.Context, sqlText, ref string) (*domain.Tabular, error) {
	s.mu.Lock()
	catalog, err := s.refCatalogLocked(ref)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("pin connection: %w", err)
	}
	defer conn.Close() //nolint:errcheck

	useSQL, err := ddl.Use(catalog)
	if err != nil {
		return nil, err
	}
	if _, err := conn.ExecContext(ctx, useSQL); err != nil {
		return nil, fmt.Errorf("use catalog %s: %w", catalog, err)
	}

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	return scanRows(rows)
}

// Ingest implements domain.WriteDelegate by materializing the matching
// parquet files into a staging table on the branch.
func (s *Store) Ingest(ctx context.Context, req domain.IngestRequest) (*domain.IngestStats, error) {
	s.mu.Lock()
	alias, ok := s.branches[req.Branch]
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound("branch %q does not exist", req.Branch)
	}

	schemaSQL, err := ddl.CreateSchema(alias, req.Namespace)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return nil, fmt.Errorf("create schema %s: %w", req.Namespace, err)
	}

	glob := searchGlob(req.SourceURI, req.Pattern)
	ingestSQL, err := ddl.IngestParquet(alias, req.Namespace, req.Table, glob)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, ingestSQL); err != nil {
		return nil, fmt.Errorf("stage parquet into %s.%s: %w", req.Namespace, req.Table, err)
	}

	rows, err := s.countRows(ctx, alias, req.Namespace, req.Table)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("parquet staged", "branch", req.Branch, "table", req.Table, "rows", rows)
	return &domain.IngestStats{
		Table:        req.Table,
		Branch:       req.Branch,
		RowsIngested: rows,
	}, nil
}

// Transform implements domain.WriteDelegate by running the registered
// transform statement on the branch.
func (s *Store) Transform(ctx context.Context, req domain.TransformRequest) (*domain.TransformStats, error) {
	s.mu.Lock()
	alias, ok := s.branches[req.Branch]
	template := s.transform
	s.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound("branch %q does not exist", req.Branch)
	}

	for _, name := range []string{req.Namespace, req.SourceTable, req.TargetTable} {
		if err := ddl.ValidateIdentifier(name); err != nil {
			return nil, domain.ErrValidation("invalid transform request: %v", err)
		}
	}

	src := qualify(alias, req.Namespace, req.SourceTable)
	tgt := qualify(alias, req.Namespace, req.TargetTable)
	stmt := strings.ReplaceAll(template, "{source}", src)
	stmt = strings.ReplaceAll(stmt, "{target}", tgt)

	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("transform %s to %s: %w", req.SourceTable, req.TargetTable, err)
	}

	rows, err := s.countRows(ctx, alias, req.Namespace, req.TargetTable)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("transform applied", "branch", req.Branch, "table", req.TargetTable, "rows", rows)
	return &domain.TransformStats{
		SourceTable:     req.SourceTable,
		TargetTable:     req.TargetTable,
		Branch:          req.Branch,
		JobID:           domain.NewID(),
		RowsTransformed: rows,
	}, nil
}

// refCatalogLocked resolves a ref to its catalog alias. Callers hold mu.
func (s *Store) refCatalogLocked(ref string) (string, error) {
	if ref == "" || ref == "main" {
		return baseAlias, nil
	}
	alias, ok := s.branches[ref]
	if !ok {
		return "", domain.ErrNotFound("unknown ref: %q", ref)
	}
	return alias, nil
}

type tableRef struct {
	schema string
	name   string
}

func (s *Store) listTables(ctx context.Context, catalog string) ([]tableRef, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_schema, table_name FROM information_schema.tables
		 WHERE table_catalog = ? AND table_type = 'BASE TABLE'
		 ORDER BY table_schema, table_name`, catalog)
	if err != nil {
		return nil, fmt.Errorf("list tables of %s: %w", catalog, err)
	}
	defer rows.Close() //nolint:errcheck

	var tables []tableRef
	for rows.Next() {
		var t tableRef
		if err := rows.Scan(&t.schema, &t.name); err != nil {
			return nil, err
		}
		tables = append(tables, t)
	}
	return tables, rows.Err()
}

func (s *Store) cloneTables(ctx context.Context, src, dst string) error {
	tables, err := s.listTables(ctx, src)
	if err != nil {
		return err
	}
	for _, tbl := range tables {
		schemaSQL, err := ddl.CreateSchema(dst, tbl.schema)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return fmt.Errorf("create schema %s: %w", tbl.schema, err)
		}
		copySQL, err := ddl.CopyTable(src, dst, tbl.schema, tbl.name)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, copySQL); err != nil {
			return fmt.Errorf("copy table %s.%s: %w", tbl.schema, tbl.name, err)
		}
	}
	return nil
}

func (s *Store) countRows(ctx context.Context, catalog, schema, table string) (int64, error) {
	countSQL, err := ddl.CountRows(catalog, schema, table)
	if err != nil {
		return 0, err
	}
	var n int64
	if err := s.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, fmt.Errorf("count rows of %s.%s: %w", schema, table, err)
	}
	return n, nil
}

func scanRows(rows *sql.Rows) (*domain.Tabular, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var resultRows [][]interface{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		// Convert byte slices to strings for JSON serialization
		row := make([]interface{}, len(vals))
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				row[i] = string(b)
			} else {
				row[i] = v
			}
		}
		resultRows = append(resultRows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &domain.Tabular{
		Columns:  cols,
		Rows:     resultRows,
		RowCount: len(resultRows),
	}, nil
}

// branchAlias derives a stable catalog alias from a branch name. A hash
// suffix keeps distinct names distinct after sanitizing.
func branchAlias(name string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	sanitized := aliasCharsRe.ReplaceAllString(name, "_")
	if len(sanitized) > 40 {
		sanitized = sanitized[:40]
	}
	return fmt.Sprintf("br_%s_%08x", sanitized, h.Sum32())
}

func qualify(catalog, schema, table string) string {
	return ddl.QuoteIdentifier(catalog) + "." + ddl.QuoteIdentifier(schema) + "." + ddl.QuoteIdentifier(table)
}

// searchGlob resolves the parquet glob for a source, keeping an
// already-globbed URI untouched.
func searchGlob(sourceURI, pattern string) string {
	uri := strings.TrimPrefix(sourceURI, "file://")
	if strings.ContainsAny(uri, "*?[") || pattern == "" {
		return uri
	}
	return strings.TrimRight(uri, "/") + "/" + pattern
}
