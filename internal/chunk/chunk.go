package chunk

import (
	"errors"
	"fmt"

	"jsonl2col/internal/schema"
)

// DefaultCapacity is the row capacity used when callers pass <= 0.
const DefaultCapacity = 65536

// ErrSealed is returned when appending to a sealed chunk.
var ErrSealed = errors.New("chunk: append to sealed chunk")

// Chunk is a column-major batch of at most Cap() rows. All columns have the
// same length after every AppendRow, and a row is either appended to every
// column or to none.
type Chunk struct {
	schema   *schema.Schema
	cols     []*Column
	capacity int
	rows     int
	sealed   bool

	// FirstLine and LastLine are the input line numbers of the first and last
	// rows, for diagnostics.
	FirstLine, LastLine int
}

// New returns an empty chunk for s holding up to capacity rows.
func New(s *schema.Schema, capacity int) *Chunk {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	c := &Chunk{schema: s, capacity: capacity, cols: make([]*Column, s.Len())}
	for i, col := range s.Columns {
		c.cols[i] = NewColumn(col.Type, capacity)
	}
	return c
}

func (c *Chunk) Schema() *schema.Schema { return c.schema }
func (c *Chunk) Rows() int              { return c.rows }
func (c *Chunk) Cap() int               { return c.capacity }
func (c *Chunk) Full() bool             { return c.rows >= c.capacity }
func (c *Chunk) Sealed() bool           { return c.sealed }
func (c *Chunk) NumColumns() int        { return len(c.cols) }
func (c *Chunk) Column(i int) *Column   { return c.cols[i] }

// AppendRow appends one value per schema column. vals must have exactly
// NumColumns() entries. Nothing is appended if any value is rejected.
func (c *Chunk) AppendRow(line int, vals []schema.Value) error {
	if c.sealed {
		return ErrSealed
	}
	if c.Full() {
		return fmt.Errorf("chunk: full at %d rows", c.capacity)
	}
	if len(vals) != len(c.cols) {
		return fmt.Errorf("chunk: row has %d values, schema has %d columns", len(vals), len(c.cols))
	}
	for i, v := range vals {
		if err := c.cols[i].accepts(v); err != nil {
			return fmt.Errorf("column %q: %w", c.schema.Columns[i].Name, err)
		}
	}
	for i, v := range vals {
		c.cols[i].append(v)
	}
	if c.rows == 0 {
		c.FirstLine = line
	}
	c.LastLine = line
	c.rows++
	return nil
}

// Row materializes row i into dst (grown as needed) and returns it.
func (c *Chunk) Row(i int, dst []schema.Value) []schema.Value {
	dst = dst[:0]
	for _, col := range c.cols {
		dst = append(dst, col.Value(i))
	}
	return dst
}

// Seal checks the equal-length invariant and makes the chunk read-only.
func (c *Chunk) Seal() error {
	for i, col := range c.cols {
		if col.Len() != c.rows {
			return fmt.Errorf("chunk: column %q has %d rows, chunk has %d", c.schema.Columns[i].Name, col.Len(), c.rows)
		}
		if err := col.check(); err != nil {
			return fmt.Errorf("column %q: %w", c.schema.Columns[i].Name, err)
		}
	}
	c.sealed = true
	return nil
}

// Reset empties the chunk for reuse with the same schema.
func (c *Chunk) Reset() {
	for _, col := range c.cols {
		col.Reset()
	}
	c.rows = 0
	c.sealed = false
	c.FirstLine, c.LastLine = 0, 0
}

// Assemble builds a sealed chunk of rows rows from columns decoded elsewhere.
// Column types must match s and every column must hold rows values.
func Assemble(s *schema.Schema, rows int, cols []*Column) (*Chunk, error) {
	if len(cols) != s.Len() {
		return nil, fmt.Errorf("chunk: %d columns for a %d-column schema", len(cols), s.Len())
	}
	for i, col := range cols {
		if col.Type() != s.Columns[i].Type {
			return nil, fmt.Errorf("chunk: column %q is %s, schema says %s", s.Columns[i].Name, col.Type(), s.Columns[i].Type)
		}
	}
	c := &Chunk{schema: s, cols: cols, capacity: rows, rows: rows}
	if err := c.Seal(); err != nil {
		return nil, err
	}
	return c, nil
}
