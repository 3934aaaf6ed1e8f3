package ddl

import (
	"fmt"
	"strings"

	"jsonl2col/internal/schema"
)

// FromSchema derives a TableDef from an inferred schema. Column order and
// nullability carry over unchanged; types are mapped via sqlType.
func FromSchema(table string, s *schema.Schema, d Dialect) (TableDef, error) {
	if strings.TrimSpace(table) == "" {
		return TableDef{}, fmt.Errorf("ddl: missing table")
	}
	defs := make([]ColumnDef, 0, s.Len())
	for _, c := range s.Columns {
		defs = append(defs, ColumnDef{
			Name:     c.Name,
			SQLType:  sqlType(c.Type, d),
			Nullable: c.Nullable,
		})
	}
	return TableDef{FQN: table, Columns: defs}, nil
}

// sqlType maps a column type onto a target SQL type:
//
//   - bool     -> BOOLEAN
//   - int64    -> BIGINT
//   - float64  -> DOUBLE PRECISION
//   - raw_json -> JSONB on Postgres, TEXT elsewhere
//   - anything else (utf8, null) -> TEXT
func sqlType(t schema.Type, d Dialect) string {
	switch t {
	case schema.Bool:
		return "BOOLEAN"
	case schema.Int64:
		return "BIGINT"
	case schema.Float64:
		return "DOUBLE PRECISION"
	case schema.RawJSON:
		if d == Postgres {
			return "JSONB"
		}
		return "TEXT"
	default:
		return "TEXT"
	}
}
