package colfile

import (
	"encoding/binary"
	"fmt"
	"math"

	"jsonl2col/internal/bitmap"
	"jsonl2col/internal/chunk"
	"jsonl2col/internal/schema"
)

var le = binary.LittleEndian

// appendPayload appends the uncompressed column-major encoding of c to dst.
func appendPayload(dst []byte, c *chunk.Chunk) []byte {
	n := c.Rows()
	dst = le.AppendUint32(dst, uint32(n))
	dst = le.AppendUint32(dst, uint32(c.NumColumns()))

	for i := 0; i < c.NumColumns(); i++ {
		col := c.Column(i)
		dst = append(dst, byte(col.Type()))
		dst = col.Validity().AppendBytes(dst)

		lenAt := len(dst)
		dst = le.AppendUint32(dst, 0)
		switch col.Type() {
		case schema.Bool:
			dst = col.Bools().AppendBytes(dst)
		case schema.Int64:
			for _, v := range col.Ints() {
				dst = le.AppendUint64(dst, uint64(v))
			}
		case schema.Float64:
			for _, v := range col.Floats() {
				dst = le.AppendUint64(dst, math.Float64bits(v))
			}
		case schema.Utf8, schema.RawJSON:
			for _, off := range col.Offsets() {
				dst = le.AppendUint32(dst, off)
			}
			dst = append(dst, col.Data()...)
		}
		le.PutUint32(dst[lenAt:], uint32(len(dst)-lenAt-4))
	}
	return dst
}

// payloadReader is a bounds-checked cursor over a decompressed payload.
type payloadReader struct {
	p   []byte
	off int
	err error
}

func (r *payloadReader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.p)-r.off < n {
		r.err = fmt.Errorf("%w: payload truncated at byte %d (need %d more)", ErrCorrupt, r.off, n)
		return nil
	}
	b := r.p[r.off : r.off+n]
	r.off += n
	return b
}

func (r *payloadReader) u8() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *payloadReader) u32() uint32 {
	if b := r.take(4); b != nil {
		return le.Uint32(b)
	}
	return 0
}

// decodePayload rebuilds a sealed chunk from a payload written by
// appendPayload. Column types must agree with s.
func decodePayload(p []byte, s *schema.Schema) (*chunk.Chunk, error) {
	r := &payloadReader{p: p}
	n := int(r.u32())
	ncols := int(r.u32())
	if r.err != nil {
		return nil, r.err
	}
	if ncols != s.Len() {
		return nil, fmt.Errorf("%w: block has %d columns, schema has %d", ErrCorrupt, ncols, s.Len())
	}

	cols := make([]*chunk.Column, ncols)
	for i := range cols {
		t := schema.Type(r.u8())
		valid := r.take(bitmap.ByteLen(n))
		values := r.take(int(r.u32()))
		if r.err != nil {
			return nil, r.err
		}
		if t != s.Columns[i].Type {
			return nil, fmt.Errorf("%w: column %q stored as %s, schema says %s", ErrCorrupt, s.Columns[i].Name, t, s.Columns[i].Type)
		}
		col, err := decodeColumn(t, n, bitmap.FromBytes(valid, n), values)
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", s.Columns[i].Name, err)
		}
		cols[i] = col
	}
	if r.off != len(p) {
		return nil, fmt.Errorf("%w: %d trailing payload bytes", ErrCorrupt, len(p)-r.off)
	}
	return chunk.Assemble(s, n, cols)
}

func decodeColumn(t schema.Type, n int, valid *bitmap.Bitmap, values []byte) (*chunk.Column, error) {
	want := -1
	switch t {
	case schema.Null:
		want = 0
	case schema.Bool:
		want = bitmap.ByteLen(n)
	case schema.Int64, schema.Float64:
		want = 8 * n
	}
	if want >= 0 && len(values) != want {
		return nil, fmt.Errorf("%w: %s values are %d bytes, want %d", ErrCorrupt, t, len(values), want)
	}

	var (
		bools   *bitmap.Bitmap
		offsets []uint32
		data    []byte
	)
	switch t {
	case schema.Bool:
		bools = bitmap.FromBytes(values, n)
	case schema.Utf8, schema.RawJSON:
		head := 4 * (n + 1)
		if len(values) < head {
			return nil, fmt.Errorf("%w: offsets truncated", ErrCorrupt)
		}
		offsets = make([]uint32, n+1)
		for i := range offsets {
			offsets[i] = le.Uint32(values[4*i:])
		}
		data = values[head:]
		if offsets[0] != 0 || int(offsets[n]) != len(data) {
			return nil, fmt.Errorf("%w: offsets do not span data", ErrCorrupt)
		}
		for i := 0; i < n; i++ {
			if offsets[i] > offsets[i+1] {
				return nil, fmt.Errorf("%w: offsets not monotonic at row %d", ErrCorrupt, i)
			}
		}
	case schema.Null, schema.Int64, schema.Float64:
	default:
		return nil, fmt.Errorf("%w: unknown column type %d", ErrCorrupt, uint8(t))
	}

	col := chunk.NewColumn(t, n)
	for i := 0; i < n; i++ {
		var v schema.Value
		if valid.Has(i) {
			switch t {
			case schema.Bool:
				v = schema.BoolValue(bools.Has(i))
			case schema.Int64:
				v = schema.IntValue(int64(le.Uint64(values[8*i:])))
			case schema.Float64:
				v = schema.FloatValue(math.Float64frombits(le.Uint64(values[8*i:])))
			case schema.Utf8:
				v = schema.StringValue(string(data[offsets[i]:offsets[i+1]]))
			case schema.RawJSON:
				v = schema.RawJSONValue(string(data[offsets[i]:offsets[i+1]]))
			case schema.Null:
				return nil, fmt.Errorf("%w: null column has a valid row %d", ErrCorrupt, i)
			}
		}
		if err := col.Append(v); err != nil {
			return nil, err
		}
	}
	return col, nil
}
