// Package jsonl reads newline-delimited JSON and turns each line into a row
// aligned with a unified schema.
//
// High-level flow:
//
//  1. Reader splits the (BOM-stripped) byte stream into lines, skipping blank
//     ones and remembering whether each line was newline-terminated.
//  2. ScanFields walks one line's top-level object in key order, classifying
//     every value into a schema.Type without materializing a map.
//  3. Decoder maps the scanned fields onto schema positions, applying the
//     strict or coerce policy, and returns a pooled *Row.
//
// The package never holds more than one line in memory at a time.
package jsonl

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"jsonl2col/internal/errs"
)

// DefaultMaxLineBytes caps a single line when callers do not configure one.
const DefaultMaxLineBytes = 64 << 20

const readBufSize = 1 << 20

// ErrLineTooLong is wrapped in an *errs.IOError when a line exceeds the limit.
var ErrLineTooLong = errors.New("jsonl: line exceeds max_line_bytes")

// Line is one non-blank input line.
//
// Data excludes the line terminator and is only valid until the next call to
// Reader.Next.
type Line struct {
	Num        int
	Data       []byte
	Terminated bool
}

// Reader yields the non-blank lines of a JSONL stream in order.
//
// A leading UTF-8 byte order mark is dropped; a UTF-16 BOM switches decoding
// to UTF-16 so the lines come out as UTF-8.
type Reader struct {
	br      *bufio.Reader
	name    string
	maxLine int
	num     int
	buf     []byte
	eof     bool
}

// NewReader wraps r. name is used in error messages (typically the path).
// maxLineBytes <= 0 selects DefaultMaxLineBytes.
func NewReader(r io.Reader, name string, maxLineBytes int) *Reader {
	if maxLineBytes <= 0 {
		maxLineBytes = DefaultMaxLineBytes
	}
	decoded := transform.NewReader(r, unicode.BOMOverride(transform.Nop))
	return &Reader{
		br:      bufio.NewReaderSize(decoded, readBufSize),
		name:    name,
		maxLine: maxLineBytes,
	}
}

// Next returns the next non-blank line, or io.EOF when the stream is
// exhausted. Read failures are returned as *errs.IOError.
func (r *Reader) Next() (Line, error) {
	for {
		if r.eof {
			return Line{}, io.EOF
		}

		data, terminated, err := r.readLine()
		if err == io.EOF {
			r.eof = true
			return Line{}, io.EOF
		}
		if err != nil {
			return Line{}, err
		}
		if !terminated {
			r.eof = true
		}
		r.num++

		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return Line{Num: r.num, Data: data, Terminated: terminated}, nil
	}
}

// LinesRead returns the number of physical lines consumed so far, including
// blank ones.
func (r *Reader) LinesRead() int { return r.num }

// readLine reads up to and excluding the next '\n' (and a preceding '\r').
// terminated is false for a final line without a newline. The max line
// length applies to the returned bytes, never to the terminator.
func (r *Reader) readLine() (data []byte, terminated bool, err error) {
	r.buf = r.buf[:0]
	for {
		frag, rerr := r.br.ReadSlice('\n')
		switch {
		case rerr == nil:
			if len(r.buf) == 0 {
				// Fast path: the whole line is in the bufio buffer.
				data = trimCR(frag[:len(frag)-1])
			} else {
				r.buf = append(r.buf, frag[:len(frag)-1]...)
				data = trimCR(r.buf)
			}
			if len(data) > r.maxLine {
				return nil, false, r.tooLong()
			}
			return data, true, nil

		case errors.Is(rerr, bufio.ErrBufferFull):
			// One extra byte for a '\r' that may precede the newline.
			if len(r.buf)+len(frag) > r.maxLine+1 {
				return nil, false, r.tooLong()
			}
			r.buf = append(r.buf, frag...)

		case errors.Is(rerr, io.EOF):
			r.buf = append(r.buf, frag...)
			if len(r.buf) == 0 {
				return nil, false, io.EOF
			}
			data = trimCR(r.buf)
			if len(data) > r.maxLine {
				return nil, false, r.tooLong()
			}
			return data, false, nil

		default:
			return nil, false, &errs.IOError{Op: "read", Path: r.name, Err: rerr}
		}
	}
}

func (r *Reader) tooLong() error {
	return &errs.IOError{
		Op:   "read",
		Path: r.name,
		Err:  fmt.Errorf("line %d: %w (%d bytes)", r.num+1, ErrLineTooLong, r.maxLine),
	}
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
