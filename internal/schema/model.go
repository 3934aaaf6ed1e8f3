// Package schema models the unified column schema discovered from a JSONL
// stream: the Type widening lattice, typed cell Values, the ordered Column
// list, and the Inferencer that builds it from observed rows.
package schema

import (
	"fmt"
	"strings"
)

// Column is one entry of the unified schema.
type Column struct {
	Name     string `json:"name"`
	Type     Type   `json:"type"`
	Nullable bool   `json:"nullable"`
}

// Schema is an ordered, name-unique list of columns. Column order is the
// first-seen order of keys across the scanned rows.
//
// A Schema returned by the Inferencer is never mutated afterwards and may be
// shared read-only between goroutines.
type Schema struct {
	Columns []Column
	index   map[string]int
}

// New builds a Schema from cols, rejecting empty or duplicate names.
func New(cols []Column) (*Schema, error) {
	s := &Schema{
		Columns: make([]Column, len(cols)),
		index:   make(map[string]int, len(cols)),
	}
	for i, c := range cols {
		// An empty name is legal ({"":1}); only uniqueness is enforced.
		if !c.Type.Valid() {
			return nil, fmt.Errorf("schema: column %q has invalid type %d", c.Name, uint8(c.Type))
		}
		if _, dup := s.index[c.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate column %q", c.Name)
		}
		s.index[c.Name] = i
		s.Columns[i] = c
	}
	return s, nil
}

// Len returns the number of columns.
func (s *Schema) Len() int { return len(s.Columns) }

// Index returns the position of the named column.
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// Names returns the column names in schema order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}

// Types returns the column types in schema order.
func (s *Schema) Types() []Type {
	out := make([]Type, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Type
	}
	return out
}

// String renders the schema as "[a:float64?, b:utf8]" where "?" marks
// nullable columns. Used in logs.
func (s *Schema) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, c := range s.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(c.Name)
		sb.WriteByte(':')
		sb.WriteString(c.Type.String())
		if c.Nullable {
			sb.WriteByte('?')
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
