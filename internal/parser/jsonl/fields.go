package jsonl

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"

	"jsonl2col/internal/errs"
	"jsonl2col/internal/schema"
)

// ErrNotObject is reported for lines whose top-level value is not a JSON object.
var ErrNotObject = errors.New("top-level value is not an object")

var errInvalidJSON = errors.New("invalid JSON")

// maxInterned bounds the key intern table so that a stream of distinct
// unknown keys cannot grow it without limit.
const maxInterned = 1 << 14

// Field is one top-level key of a line and its classified value.
//
// Raw is the value's text as it appears in the line; for strings it is the
// escaped content between the quotes. Raw aliases the line buffer and is only
// valid until the next line is read.
type Field struct {
	Key  string
	Type schema.Type
	Raw  []byte
	Int  int64 // parsed value when Type == schema.Int64
}

// Value returns the field's natural value for its own type.
func (f *Field) Value() (schema.Value, error) {
	switch f.Type {
	case schema.Null:
		return schema.NullValue(), nil
	case schema.Bool:
		return schema.BoolValue(len(f.Raw) > 0 && f.Raw[0] == 't'), nil
	case schema.Int64:
		return schema.IntValue(f.Int), nil
	case schema.Float64:
		v, err := parseFloat(f.Raw)
		if err != nil {
			return schema.Value{}, err
		}
		return schema.FloatValue(v), nil
	case schema.Utf8:
		s, err := jsonparser.ParseString(f.Raw)
		if err != nil {
			return schema.Value{}, fmt.Errorf("key %q: %w", f.Key, err)
		}
		return schema.StringValue(s), nil
	default:
		return schema.RawJSONValue(string(f.Raw)), nil
	}
}

// AppendJSON appends the value's JSON text to dst.
func (f *Field) AppendJSON(dst []byte) []byte {
	if f.Type == schema.Utf8 {
		dst = append(dst, '"')
		dst = append(dst, f.Raw...)
		return append(dst, '"')
	}
	return append(dst, f.Raw...)
}

// Scanner classifies the top-level fields of one line at a time. Keys are
// interned so that steady-state scanning allocates only for new key names.
//
// A Scanner is not safe for concurrent use.
type Scanner struct {
	normalize bool
	fields    []Field
	names     map[string]string
}

// NewScanner returns a Scanner. With normalize set, keys are converted to
// Unicode NFC so that differently composed spellings land in one column.
func NewScanner(normalize bool) *Scanner {
	return &Scanner{
		normalize: normalize,
		names:     make(map[string]string),
	}
}

// Scan classifies the fields of a single line. The returned slice is reused
// by the next call. Errors are plain; use ScanLine for line-aware errors.
func (s *Scanner) Scan(line []byte) ([]Field, error) {
	s.fields = s.fields[:0]

	line = bytes.TrimSpace(line)
	if len(line) == 0 || line[0] != '{' {
		if len(line) > 0 && json.Valid(line) {
			return nil, ErrNotObject
		}
		return nil, errInvalidJSON
	}
	if !json.Valid(line) {
		return nil, errInvalidJSON
	}

	var scanErr error
	err := jsonparser.ObjectEach(line, func(key, value []byte, vt jsonparser.ValueType, _ int) error {
		name := s.intern(key)
		f := Field{Key: name, Raw: value}
		switch vt {
		case jsonparser.Null:
			f.Type = schema.Null
		case jsonparser.Boolean:
			f.Type = schema.Bool
		case jsonparser.Number:
			f.Type, f.Int = classifyNumber(value)
		case jsonparser.String:
			f.Type = schema.Utf8
		case jsonparser.Array, jsonparser.Object:
			f.Type = schema.RawJSON
		default:
			scanErr = fmt.Errorf("key %q: unsupported value", name)
			return scanErr
		}
		s.fields = append(s.fields, f)
		return nil
	})
	if scanErr != nil {
		return nil, scanErr
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	return s.fields, nil
}

// ScanLine is Scan with errors typed by position: a failure on a final line
// that lacks its newline is an *errs.TruncatedInputError, anything else an
// *errs.MalformedRowError.
func (s *Scanner) ScanLine(ln Line) ([]Field, error) {
	fields, err := s.Scan(ln.Data)
	if err != nil {
		return nil, LineError(ln, err)
	}
	return fields, nil
}

// LineError wraps a parse failure of ln in the matching typed error.
func LineError(ln Line, err error) error {
	if !ln.Terminated {
		return &errs.TruncatedInputError{Line: ln.Num, Err: err}
	}
	return &errs.MalformedRowError{Line: ln.Num, Err: err}
}

func (s *Scanner) intern(raw []byte) string {
	// ObjectEach hands over keys already unescaped.
	key := raw
	if s.normalize && !norm.NFC.IsNormal(key) {
		key = norm.NFC.Bytes(key)
	}

	if name, ok := s.names[string(key)]; ok {
		return name
	}
	name := string(key)
	if len(s.names) < maxInterned {
		s.names[name] = name
	}
	return name
}

// classifyNumber maps a JSON number to Int64 when it is written without a
// fraction or exponent and fits in 64 bits; everything else is Float64.
func classifyNumber(raw []byte) (schema.Type, int64) {
	if bytes.ContainsAny(raw, ".eE") {
		return schema.Float64, 0
	}
	v, err := jsonparser.ParseInt(raw)
	if err != nil {
		return schema.Float64, 0
	}
	return schema.Int64, v
}

// parseFloat accepts magnitudes beyond float64 range as ±Inf.
func parseFloat(raw []byte) (float64, error) {
	v, err := strconv.ParseFloat(string(raw), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, err
	}
	return v, nil
}
