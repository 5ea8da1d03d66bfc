// Package ddl builds DuckDB statements for branch catalogs, table
// copies, parquet ingestion, and storage secrets. Identifiers are
// validated and quoted so callers never splice raw strings into SQL.
package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columnTypeRe matches simple DuckDB type names, optionally with
// precision/scale parameters or an array suffix. Case-insensitive.
var columnTypeRe = regexp.MustCompile(`(?i)^[A-Z][A-Z0-9_ ]*(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?(?:\[\])?$`)

const maxIdentifierLen = 128

// ValidateIdentifier checks that name is a safe SQL identifier:
// non-empty, at most 128 characters, matching [a-zA-Z_][a-zA-Z0-9_]*.
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QuoteLiteral wraps a string value in single quotes, escaping any
// embedded single-quote characters by doubling them (standard SQL).
func QuoteLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}

// ValidateColumnType checks that typeName is a safe DuckDB column type.
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if strings.ContainsAny(typeName, ";-'\"\\") {
		return fmt.Errorf("column type contains invalid characters")
	}
	if !columnTypeRe.MatchString(typeName) {
		return fmt.Errorf("column type %q is not a recognized type pattern", typeName)
	}
	return nil
}

// ColumnDef describes a column for CREATE TABLE.
type ColumnDef struct {
	Name string
	Type string
}

// AttachMemory returns: ATTACH ':memory:' AS "<alias>".
func AttachMemory(alias string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	return fmt.Sprintf("ATTACH ':memory:' AS %s", QuoteIdentifier(alias)), nil
}

// AttachFile returns: ATTACH '<path>' AS "<alias>".
func AttachFile(path, alias string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	if path == "" {
		return "", fmt.Errorf("database path is required")
	}
	return fmt.Sprintf("ATTACH %s AS %s", QuoteLiteral(path), QuoteIdentifier(alias)), nil
}

// Detach returns: DETACH "<alias>".
func Detach(alias string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	return fmt.Sprintf("DETACH %s", QuoteIdentifier(alias)), nil
}

// Use returns: USE "<alias>". Per-connection, so callers must run it on
// a pinned connection.
func Use(alias string) (string, error) {
	if err := ValidateIdentifier(alias); err != nil {
		return "", fmt.Errorf("invalid catalog alias: %w", err)
	}
	return fmt.Sprintf("USE %s", QuoteIdentifier(alias)), nil
}

// CreateSchema returns: CREATE SCHEMA IF NOT EXISTS "<catalog>"."<name>".
func CreateSchema(catalog, name string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(name); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s.%s", QuoteIdentifier(catalog), QuoteIdentifier(name)), nil
}

// CreateTable returns:
// CREATE TABLE IF NOT EXISTS "<catalog>"."<schema>"."<table>" ("<col1>" TYPE1, ...).
func CreateTable(catalog, schema, table string, columns []ColumnDef) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}

	var colDefs []string
	for _, c := range columns {
		if err := ValidateIdentifier(c.Name); err != nil {
			return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
		}
		if err := ValidateColumnType(c.Type); err != nil {
			return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
		}
		colDefs = append(colDefs, fmt.Sprintf("%s %s", QuoteIdentifier(c.Name), c.Type))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s.%s.%s (%s)",
		QuoteIdentifier(catalog),
		QuoteIdentifier(schema),
		QuoteIdentifier(table),
		strings.Join(colDefs, ", "),
	), nil
}

// CopyTable returns a cross-catalog clone:
// CREATE TABLE "<dst>"."<schema>"."<table>" AS SELECT * FROM "<src>"."<schema>"."<table>".
func CopyTable(srcCatalog, dstCatalog, schema, table string) (string, error) {
	return tableCopy("CREATE TABLE", srcCatalog, dstCatalog, schema, table)
}

// ReplaceTable returns a cross-catalog overwrite:
// CREATE OR REPLACE TABLE "<dst>"."<schema>"."<table>" AS SELECT * FROM "<src>"."<schema>"."<table>".
func ReplaceTable(srcCatalog, dstCatalog, schema, table string) (string, error) {
	return tableCopy("CREATE OR REPLACE TABLE", srcCatalog, dstCatalog, schema, table)
}

func tableCopy(verb, srcCatalog, dstCatalog, schema, table string) (string, error) {
	if err := ValidateIdentifier(srcCatalog); err != nil {
		return "", fmt.Errorf("invalid source catalog: %w", err)
	}
	if err := ValidateIdentifier(dstCatalog); err != nil {
		return "", fmt.Errorf("invalid destination catalog: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("%s %s.%s.%s AS SELECT * FROM %s.%s.%s",
		verb,
		QuoteIdentifier(dstCatalog),
		QuoteIdentifier(schema),
		QuoteIdentifier(table),
		QuoteIdentifier(srcCatalog),
		QuoteIdentifier(schema),
		QuoteIdentifier(table),
	), nil
}

// IngestParquet returns a statement that materializes parquet files into
// a table: CREATE OR REPLACE TABLE ... AS SELECT * FROM read_parquet(['<glob>']).
func IngestParquet(catalog, schema, table, sourceGlob string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if sourceGlob == "" {
		return "", fmt.Errorf("source glob is required")
	}
	return fmt.Sprintf("CREATE OR REPLACE TABLE %s.%s.%s AS SELECT * FROM read_parquet([%s])",
		QuoteIdentifier(catalog),
		QuoteIdentifier(schema),
		QuoteIdentifier(table),
		QuoteLiteral(sourceGlob),
	), nil
}

// CountRows returns: SELECT COUNT(*) FROM "<catalog>"."<schema>"."<table>".
func CountRows(catalog, schema, table string) (string, error) {
	if err := ValidateIdentifier(catalog); err != nil {
		return "", fmt.Errorf("invalid catalog name: %w", err)
	}
	if err := ValidateIdentifier(schema); err != nil {
		return "", fmt.Errorf("invalid schema name: %w", err)
	}
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s.%s.%s",
		QuoteIdentifier(catalog),
		QuoteIdentifier(schema),
		QuoteIdentifier(table),
	), nil
}

// CreateS3Secret returns a DuckDB DDL statement to create an S3 secret.
func CreateS3Secret(name, keyID, secret, endpoint, region, urlStyle string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf(`CREATE SECRET %s (
	TYPE S3,
	KEY_ID %s,
	SECRET %s,
	ENDPOINT %s,
	REGION %s,
	URL_STYLE %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
		QuoteLiteral(endpoint),
		QuoteLiteral(region),
		QuoteLiteral(urlStyle),
	), nil
}

// CreateAzureSecret returns a DuckDB DDL statement to create an Azure secret.
func CreateAzureSecret(name, connectionString string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	if connectionString == "" {
		return "", fmt.Errorf("connection string is required")
	}
	return fmt.Sprintf(`CREATE SECRET %s (
	TYPE AZURE,
	CONNECTION_STRING %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(connectionString),
	), nil
}

// CreateGCSSecret returns a DuckDB DDL statement to create a GCS secret.
func CreateGCSSecret(name, keyID, secret string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf(`CREATE SECRET %s (
	TYPE GCS,
	KEY_ID %s,
	SECRET %s
)`,
		QuoteIdentifier(name),
		QuoteLiteral(keyID),
		QuoteLiteral(secret),
	), nil
}

// DropSecret returns: DROP SECRET IF EXISTS "<name>".
// Works for any secret type (S3, Azure, GCS).
func DropSecret(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("secret name is required")
	}
	return fmt.Sprintf("DROP SECRET IF EXISTS %s", QuoteIdentifier(name)), nil
}
