package schema

import (
	"math"
	"strconv"

	"github.com/goccy/go-json"
)

// Value is one typed cell of a decoded row. A Value whose Type is Null is a
// SQL-style null; the payload fields are ignored in that case.
//
// Str carries the text for Utf8 values and the verbatim JSON text for RawJSON
// values.
type Value struct {
	Type  Type
	Bool  bool
	Int   int64
	Float float64
	Str   string
}

// NullValue returns the null Value.
func NullValue() Value { return Value{} }

func BoolValue(b bool) Value        { return Value{Type: Bool, Bool: b} }
func IntValue(i int64) Value        { return Value{Type: Int64, Int: i} }
func FloatValue(f float64) Value    { return Value{Type: Float64, Float: f} }
func StringValue(s string) Value    { return Value{Type: Utf8, Str: s} }
func RawJSONValue(raw string) Value { return Value{Type: RawJSON, Str: raw} }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.Type == Null }

// AppendJSON appends the JSON encoding of v to dst. RawJSON values are
// emitted verbatim; non-finite floats (which JSON cannot carry) become null.
func (v Value) AppendJSON(dst []byte) []byte {
	switch v.Type {
	case Bool:
		return strconv.AppendBool(dst, v.Bool)
	case Int64:
		return strconv.AppendInt(dst, v.Int, 10)
	case Float64:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return append(dst, "null"...)
		}
		return strconv.AppendFloat(dst, v.Float, 'g', -1, 64)
	case Utf8:
		b, err := json.Marshal(v.Str)
		if err != nil {
			return append(dst, "null"...)
		}
		return append(dst, b...)
	case RawJSON:
		return append(dst, v.Str...)
	default:
		return append(dst, "null"...)
	}
}

func (v Value) String() string {
	return string(v.AppendJSON(nil))
}
