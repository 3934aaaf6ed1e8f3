// Package errs defines the failure taxonomy shared by every conversion stage.
//
// Stages return these types (wrapped or bare) so the orchestrator and the CLI
// can tell a data-quality problem from an I/O problem with errors.As, without
// parsing messages:
//
//   - *IOError:             source/destination open, read or write failure
//   - *MalformedRowError:   a line is not a JSON object
//   - *SchemaMismatchError: a value does not fit its inferred column (strict mode)
//   - *TruncatedInputError: the stream ended in the middle of a record
package errs

import (
	"context"
	"errors"
	"fmt"
)

// IOError reports a failed filesystem operation.
type IOError struct {
	Op   string // open, read, write, sync, close, stat
	Path string
	Err  error
}

func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("io: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("io: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// MalformedRowError reports a line that could not be parsed as a JSON object.
type MalformedRowError struct {
	Line int
	Err  error
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("malformed row at line %d: %v", e.Line, e.Err)
}

func (e *MalformedRowError) Unwrap() error { return e.Err }

// SchemaMismatchError reports a value whose JSON type would require widening
// its column beyond the unified schema. Want is the declared column type and
// Got the observed value type; Want is "absent" when the key itself was never
// seen during inference.
type SchemaMismatchError struct {
	Line   int
	Column string
	Want   string
	Got    string
}

func (e *SchemaMismatchError) Error() string {
	if e.Want == "absent" {
		return fmt.Sprintf("schema mismatch at line %d: column %q is not in the inferred schema (value type %s)", e.Line, e.Column, e.Got)
	}
	return fmt.Sprintf("schema mismatch at line %d: column %q declared %s, got %s", e.Line, e.Column, e.Want, e.Got)
}

// TruncatedInputError reports a final line that is cut off mid-record.
type TruncatedInputError struct {
	Line int
	Err  error
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input: line %d ends mid-record: %v", e.Line, e.Err)
}

func (e *TruncatedInputError) Unwrap() error { return e.Err }

// Kind returns a short, stable label for err suitable for metrics and logs.
func Kind(err error) string {
	var (
		ioErr    *IOError
		rowErr   *MalformedRowError
		mismatch *SchemaMismatchError
		trunc    *TruncatedInputError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &trunc):
		return "truncated_input"
	case errors.As(err, &rowErr):
		return "malformed_row"
	case errors.As(err, &mismatch):
		return "schema_mismatch"
	case errors.As(err, &ioErr):
		return "io"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}

// IsDataError reports whether err is a row-level data-quality failure
// (malformed or truncated), as opposed to I/O or schema failures.
func IsDataError(err error) bool {
	switch Kind(err) {
	case "malformed_row", "truncated_input":
		return true
	}
	return false
}
