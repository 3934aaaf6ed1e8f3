// Package file implements a local filesystem-backed data source.
package file

import (
	"context"
	"errors"
	"io"
	"os"

	"jsonl2col/internal/errs"
)

var errIsDir = errors.New("is a directory")

// Local is a filesystem data source that opens files from the local disk.
type Local struct{ path string }

// NewLocal returns a new Local data source bound to the provided filesystem
// path. Open may be called any number of times, concurrently.
func NewLocal(path string) *Local { return &Local{path: path} }

// Name returns the path.
func (l *Local) Name() string { return l.path }

// Open opens the configured path for reading and returns an io.ReadCloser.
//
// Behavior:
//   - If the context is already canceled or its deadline exceeded at the time
//     of the call, Open returns the context error immediately without touching
//     the filesystem.
//   - Otherwise the file is opened and the kernel is told it will be read
//     sequentially, which widens readahead for the two full scans.
//   - Filesystem errors are returned as *errs.IOError with op "open", still
//     permitting errors.Is checks such as errors.Is(err, os.ErrNotExist).
func (l *Local) Open(ctx context.Context) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	f, err := os.Open(l.path)
	if err != nil {
		return nil, &errs.IOError{Op: "open", Path: l.path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &errs.IOError{Op: "stat", Path: l.path, Err: err}
	}
	if st.IsDir() {
		_ = f.Close()
		return nil, &errs.IOError{Op: "open", Path: l.path, Err: errIsDir}
	}
	adviseSequential(f)
	return f, nil
}
