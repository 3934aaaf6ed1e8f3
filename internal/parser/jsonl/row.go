package jsonl

import (
	"sync"

	"jsonl2col/internal/schema"
)

// Row is a pooled, positional row aligned with a schema.
//
// Contract:
//   - The decoder writes into r.V[0:colCount]; absent keys stay null.
//   - Once the row's values have been copied into a chunk, the consumer
//     must call r.Free() to return it to the pool.
//   - Do not retain references to r or r.V beyond the owning stage.
type Row struct {
	Line int
	V    []schema.Value
}

var rowPool sync.Pool

// GetRow returns a pooled Row with length colCount and every value null.
func GetRow(colCount int) *Row {
	if v := rowPool.Get(); v != nil {
		r := v.(*Row)
		if cap(r.V) < colCount {
			r.V = make([]schema.Value, colCount)
		}
		r.V = r.V[:colCount]
		clear(r.V)
		r.Line = 0
		return r
	}
	return &Row{V: make([]schema.Value, colCount)}
}

// Free returns the Row to the pool. The caller must not use r after Free().
func (r *Row) Free() {
	rowPool.Put(r)
}
