// Package datasource abstracts where input bytes come from. The converter
// reads its input twice, so a Source must be able to Open more than once and
// yield the same bytes each time.
package datasource

import (
	"context"
	"io"
)

// Source opens a fresh stream over the same input on every call.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
	// Name identifies the source in logs and errors (a path or URL).
	Name() string
}
