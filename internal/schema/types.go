package schema

import (
	"fmt"
	"strings"
)

// Type is the closed set of column types a JSON value can be classified as.
//
// Types form a widening lattice:
//
//	Null ⊑ every type
//	Int64 ⊑ Float64
//	every type ⊑ RawJSON
//
// Two distinct non-null types other than Int64/Float64 only meet at RawJSON.
type Type uint8

const (
	Null Type = iota
	Bool
	Int64
	Float64
	Utf8
	RawJSON
)

var typeNames = [...]string{
	Null:    "null",
	Bool:    "bool",
	Int64:   "int64",
	Float64: "float64",
	Utf8:    "utf8",
	RawJSON: "raw_json",
}

func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

// Valid reports whether t is one of the defined types.
func (t Type) Valid() bool { return int(t) < len(typeNames) }

// ParseType maps a type name (as written in the artifact footer) back to a Type.
func ParseType(s string) (Type, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range typeNames {
		if n == s {
			return Type(i), nil
		}
	}
	return Null, fmt.Errorf("schema: unknown type %q", s)
}

// MarshalText lets Type serialize as its name in JSON.
func (t Type) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("schema: invalid type %d", uint8(t))
	}
	return []byte(t.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Join returns the least type able to represent values of both a and b.
// It is commutative, associative and idempotent, and never returns a type
// below either argument.
func Join(a, b Type) Type {
	switch {
	case a == b:
		return a
	case a == Null:
		return b
	case b == Null:
		return a
	case a == RawJSON || b == RawJSON:
		return RawJSON
	case (a == Int64 && b == Float64) || (a == Float64 && b == Int64):
		return Float64
	default:
		return RawJSON
	}
}

// Subsumes reports whether a value of type v can be stored in a column of
// type col without widening the column.
func Subsumes(col, v Type) bool {
	return Join(col, v) == col
}
