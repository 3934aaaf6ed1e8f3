package jsonl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"

	"jsonl2col/internal/errs"
	"jsonl2col/internal/schema"
)

// Mode selects how the decoder treats a value whose type the column does not
// subsume.
type Mode uint8

const (
	// Strict fails the row with *errs.SchemaMismatchError.
	Strict Mode = iota
	// Coerce converts the value where a lossless-enough rule exists and
	// stores null otherwise.
	Coerce
)

func (m Mode) String() string {
	switch m {
	case Strict:
		return "strict"
	case Coerce:
		return "coerce"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode maps "strict" or "coerce" to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "strict":
		return Strict, nil
	case "coerce":
		return Coerce, nil
	default:
		return Strict, fmt.Errorf("jsonl: unknown decode mode %q (want strict|coerce)", s)
	}
}

// DecoderOptions configures a Decoder.
type DecoderOptions struct {
	Mode          Mode
	NormalizeKeys bool
}

// DecodeStats counts the adjustments a Coerce decoder made.
type DecodeStats struct {
	Coerced     int64 // values converted to the column type
	Nulled      int64 // values with no conversion rule, stored as null
	UnknownKeys int64 // keys with no column, dropped
}

// Decoder turns lines into schema-aligned rows.
//
// Absent keys and explicit nulls decode to null. When a key repeats within a
// line the last occurrence wins.
type Decoder struct {
	schema *schema.Schema
	mode   Mode
	scan   *Scanner
	stats  DecodeStats
	buf    []byte
}

// NewDecoder returns a Decoder for s.
func NewDecoder(s *schema.Schema, opt DecoderOptions) *Decoder {
	return &Decoder{
		schema: s,
		mode:   opt.Mode,
		scan:   NewScanner(opt.NormalizeKeys),
	}
}

// Stats returns the running coerce counters.
func (d *Decoder) Stats() DecodeStats { return d.stats }

// Decode parses ln into a pooled Row. Errors are *errs.MalformedRowError,
// *errs.TruncatedInputError or, in Strict mode, *errs.SchemaMismatchError.
func (d *Decoder) Decode(ln Line) (*Row, error) {
	fields, err := d.scan.ScanLine(ln)
	if err != nil {
		return nil, err
	}

	r := GetRow(d.schema.Len())
	r.Line = ln.Num
	for i := range fields {
		f := &fields[i]
		idx, ok := d.schema.Index(f.Key)
		if !ok {
			if d.mode == Strict {
				r.Free()
				return nil, &errs.SchemaMismatchError{
					Line:   ln.Num,
					Column: f.Key,
					Want:   "absent",
					Got:    f.Type.String(),
				}
			}
			d.stats.UnknownKeys++
			continue
		}

		v, err := d.convert(ln, d.schema.Columns[idx], f)
		if err != nil {
			r.Free()
			return nil, err
		}
		r.V[idx] = v
	}
	return r, nil
}

func (d *Decoder) convert(ln Line, col schema.Column, f *Field) (schema.Value, error) {
	if f.Type == schema.Null {
		return schema.NullValue(), nil
	}

	if schema.Subsumes(col.Type, f.Type) {
		switch {
		case col.Type == f.Type:
			v, err := f.Value()
			if err != nil {
				return schema.Value{}, LineError(ln, err)
			}
			return v, nil
		case col.Type == schema.RawJSON:
			d.buf = f.AppendJSON(d.buf[:0])
			return schema.RawJSONValue(string(d.buf)), nil
		default:
			// Int64 into Float64: reparse the text for correct rounding.
			v, err := parseFloat(f.Raw)
			if err != nil {
				return schema.Value{}, LineError(ln, err)
			}
			return schema.FloatValue(v), nil
		}
	}

	if d.mode == Strict {
		return schema.Value{}, &errs.SchemaMismatchError{
			Line:   ln.Num,
			Column: col.Name,
			Want:   col.Type.String(),
			Got:    f.Type.String(),
		}
	}

	v := d.coerce(col.Type, f)
	if v.IsNull() {
		d.stats.Nulled++
	} else {
		d.stats.Coerced++
	}
	return v, nil
}

// coerce applies the conversion rules for a value the column cannot hold.
//
//	utf8    <- any value, as its JSON text
//	int64   <- integral float in range, or a string holding an integer
//	float64 <- a string holding a number
//	bool    <- the strings "true" and "false"
//
// Anything else becomes null.
func (d *Decoder) coerce(col schema.Type, f *Field) schema.Value {
	switch col {
	case schema.Utf8:
		d.buf = f.AppendJSON(d.buf[:0])
		return schema.StringValue(string(d.buf))

	case schema.Int64:
		switch f.Type {
		case schema.Float64:
			if v, err := parseFloat(f.Raw); err == nil && isInt64(v) {
				return schema.IntValue(int64(v))
			}
		case schema.Utf8:
			if s, err := jsonparser.ParseString(f.Raw); err == nil {
				if n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64); err == nil {
					return schema.IntValue(n)
				}
			}
		}

	case schema.Float64:
		if f.Type == schema.Utf8 {
			if s, err := jsonparser.ParseString(f.Raw); err == nil {
				if v, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
					return schema.FloatValue(v)
				}
			}
		}

	case schema.Bool:
		if f.Type == schema.Utf8 {
			switch string(f.Raw) {
			case "true":
				return schema.BoolValue(true)
			case "false":
				return schema.BoolValue(false)
			}
		}
	}
	return schema.NullValue()
}

func isInt64(v float64) bool {
	return v == math.Trunc(v) && v >= -(1<<63) && v < (1<<63)
}
