// Package chunk holds decoded rows in column-major batches.
//
// A Chunk owns one Column per schema column. Every Column keeps a validity
// bitmap plus a typed value buffer:
//
//	bool            bit-packed values
//	int64, float64  one slot per row (null rows hold zero)
//	utf8, raw_json  Len()+1 byte offsets into a shared data buffer
//	null            validity only
//
// The Accumulator fills chunks row by row and hands each full chunk to a
// Flusher, which is the only place a chunk leaves this package.
package chunk

import (
	"errors"
	"fmt"
	"math"

	"jsonl2col/internal/bitmap"
	"jsonl2col/internal/schema"
)

// ErrTypeMismatch is returned when a value's type differs from its column's.
var ErrTypeMismatch = errors.New("chunk: value type does not match column")

// ErrColumnTooLarge is returned when a variable-width column exceeds the
// 32-bit offset range of a single chunk.
var ErrColumnTooLarge = errors.New("chunk: column data exceeds 4 GiB")

// Column is a growable typed array with a validity bitmap.
type Column struct {
	typ   schema.Type
	valid *bitmap.Bitmap

	bools   *bitmap.Bitmap
	ints    []int64
	floats  []float64
	offsets []uint32
	data    []byte
}

// NewColumn returns an empty column of type t sized for capacity rows.
func NewColumn(t schema.Type, capacity int) *Column {
	c := &Column{typ: t, valid: bitmap.New(capacity)}
	switch t {
	case schema.Bool:
		c.bools = bitmap.New(capacity)
	case schema.Int64:
		c.ints = make([]int64, 0, capacity)
	case schema.Float64:
		c.floats = make([]float64, 0, capacity)
	case schema.Utf8, schema.RawJSON:
		c.offsets = make([]uint32, 1, capacity+1)
	}
	return c
}

func (c *Column) Type() schema.Type { return c.typ }

// Len returns the number of rows in the column.
func (c *Column) Len() int { return c.valid.Len() }

// NullCount returns the number of null rows.
func (c *Column) NullCount() int { return c.valid.Len() - c.valid.Count() }

// Validity is the non-null mask; bit i is set when row i holds a value.
func (c *Column) Validity() *bitmap.Bitmap { return c.valid }

// Bools returns the packed values of a bool column.
func (c *Column) Bools() *bitmap.Bitmap { return c.bools }

func (c *Column) Ints() []int64     { return c.ints }
func (c *Column) Floats() []float64 { return c.floats }

// Offsets returns the Len()+1 offsets of a utf8 or raw_json column. Row i
// spans Data()[Offsets()[i]:Offsets()[i+1]].
func (c *Column) Offsets() []uint32 { return c.offsets }
func (c *Column) Data() []byte      { return c.data }

// accepts reports whether v can be appended without error.
func (c *Column) accepts(v schema.Value) error {
	if v.IsNull() {
		return nil
	}
	if v.Type != c.typ {
		return fmt.Errorf("%w: column %s, value %s", ErrTypeMismatch, c.typ, v.Type)
	}
	if (c.typ == schema.Utf8 || c.typ == schema.RawJSON) && uint64(len(c.data))+uint64(len(v.Str)) > math.MaxUint32 {
		return ErrColumnTooLarge
	}
	return nil
}

// Append adds v as the next row. A null v is valid for every column type.
func (c *Column) Append(v schema.Value) error {
	if err := c.accepts(v); err != nil {
		return err
	}
	c.append(v)
	return nil
}

func (c *Column) append(v schema.Value) {
	null := v.IsNull()
	c.valid.Append(!null)
	switch c.typ {
	case schema.Bool:
		c.bools.Append(!null && v.Bool)
	case schema.Int64:
		if null {
			c.ints = append(c.ints, 0)
		} else {
			c.ints = append(c.ints, v.Int)
		}
	case schema.Float64:
		if null {
			c.floats = append(c.floats, 0)
		} else {
			c.floats = append(c.floats, v.Float)
		}
	case schema.Utf8, schema.RawJSON:
		if !null {
			c.data = append(c.data, v.Str...)
		}
		c.offsets = append(c.offsets, uint32(len(c.data)))
	}
}

// Value materializes row i. It panics if i is out of range.
func (c *Column) Value(i int) schema.Value {
	if i < 0 || i >= c.Len() {
		panic(fmt.Sprintf("chunk: row %d out of range [0,%d)", i, c.Len()))
	}
	if !c.valid.Has(i) {
		return schema.NullValue()
	}
	switch c.typ {
	case schema.Bool:
		return schema.BoolValue(c.bools.Has(i))
	case schema.Int64:
		return schema.IntValue(c.ints[i])
	case schema.Float64:
		return schema.FloatValue(c.floats[i])
	case schema.Utf8:
		return schema.StringValue(string(c.data[c.offsets[i]:c.offsets[i+1]]))
	case schema.RawJSON:
		return schema.RawJSONValue(string(c.data[c.offsets[i]:c.offsets[i+1]]))
	default:
		return schema.NullValue()
	}
}

// Reset empties the column and keeps its buffers.
func (c *Column) Reset() {
	c.valid.Reset()
	if c.bools != nil {
		c.bools.Reset()
	}
	c.ints = c.ints[:0]
	c.floats = c.floats[:0]
	if c.offsets != nil {
		c.offsets = c.offsets[:1]
		c.offsets[0] = 0
	}
	c.data = c.data[:0]
}

// check verifies that every typed buffer agrees with the validity length.
func (c *Column) check() error {
	n := c.Len()
	var got int
	switch c.typ {
	case schema.Bool:
		got = c.bools.Len()
	case schema.Int64:
		got = len(c.ints)
	case schema.Float64:
		got = len(c.floats)
	case schema.Utf8, schema.RawJSON:
		got = len(c.offsets) - 1
		if int(c.offsets[len(c.offsets)-1]) != len(c.data) {
			return fmt.Errorf("chunk: %s column offsets end at %d, data is %d bytes", c.typ, c.offsets[len(c.offsets)-1], len(c.data))
		}
	default:
		got = n
	}
	if got != n {
		return fmt.Errorf("chunk: %s column holds %d values for %d rows", c.typ, got, n)
	}
	return nil
}
