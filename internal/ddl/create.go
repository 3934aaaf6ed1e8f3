// Package ddl renders CREATE TABLE statements for a unified column schema so a
// converted artifact can be loaded into a SQL database.
//
// The Generic dialect emits identifiers as-is and adds no dialect clauses. The
// Postgres dialect quotes every identifier with pgx and adds IF NOT EXISTS.
// ColumnDef.Default is always raw SQL; callers are responsible for its safety.
package ddl

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Render renders t for dialect d:
//
//	CREATE TABLE [IF NOT EXISTS] <FQN> (
//	  <Name> <SQLType> [NOT NULL] [DEFAULT <Default>],
//	  ...,
//	  [PRIMARY KEY (<pk-cols>)]
//	);
func Render(t TableDef, d Dialect) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	quote := func(s string) string { return s }
	head := "CREATE TABLE "
	if d == Postgres {
		quote = func(s string) string { return pgx.Identifier{s}.Sanitize() }
		head = "CREATE TABLE IF NOT EXISTS "
		fqn = splitFQN(fqn).Sanitize()
	}

	cols := make([]string, 0, len(t.Columns)+1)
	pks := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", t.FQN)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", c.Name)
		}
		// Generic names are trimmed; Postgres keeps them exact since JSON keys
		// may legitimately carry spaces.
		name := strings.TrimSpace(c.Name)
		if d == Postgres {
			name = quote(c.Name)
		}

		var sb strings.Builder
		sb.WriteString(name)
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		cols = append(cols, sb.String())

		if c.PrimaryKey {
			pks = append(pks, name)
		}
	}
	if len(pks) > 0 {
		cols = append(cols, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(pks, ", ")))
	}

	return fmt.Sprintf("%s%s (\n  %s\n);", head, fqn, strings.Join(cols, ",\n  ")), nil
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
// If no dot is present, returns {"table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
