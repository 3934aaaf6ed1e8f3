package ddl

import (
	"fmt"
	"strings"
)

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - SQLType: target SQL type (e.g., TEXT, BIGINT, JSONB)
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression (e.g., 'anon', CURRENT_TIMESTAMP)
type ColumnDef struct {
	Name       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the fully-qualified table name (FQN) and an ordered list of
// columns. The FQN is expected in dotted form (e.g., "schema.table").
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// Dialect selects type names and identifier quoting.
type Dialect string

const (
	// Generic emits identifiers verbatim and portable type names.
	Generic Dialect = "generic"
	// Postgres quotes identifiers and maps raw JSON columns to JSONB.
	Postgres Dialect = "postgres"
)

// ParseDialect accepts "generic", "postgres" or "pg" (case-insensitive).
func ParseDialect(s string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "generic", "sql":
		return Generic, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	default:
		return "", fmt.Errorf("ddl: unknown dialect %q (want generic|postgres)", s)
	}
}
