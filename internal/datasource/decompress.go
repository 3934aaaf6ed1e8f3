package datasource

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"jsonl2col/internal/errs"
)

const sniffBufSize = 256 << 10

var (
	gzipMagic = []byte{0x1f, 0x8b}
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
)

// Compression names the stream format detected by Sniff.
type Compression string

const (
	Plain Compression = "none"
	Gzip  Compression = "gzip"
	Zstd  Compression = "zstd"
)

// Sniff reports the compression of the stream behind br from its first bytes
// without consuming them.
func Sniff(br *bufio.Reader) (Compression, error) {
	head, err := br.Peek(len(zstdMagic))
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return Plain, err
	}
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd, nil
	case bytes.HasPrefix(head, gzipMagic):
		return Gzip, nil
	default:
		return Plain, nil
	}
}

// OpenDecoded opens src and transparently decompresses gzip or zstd input.
// Failures are reported as *errs.IOError.
func OpenDecoded(ctx context.Context, src Source) (io.ReadCloser, Compression, error) {
	rc, err := src.Open(ctx)
	if err != nil {
		return nil, Plain, asIOError("open", src.Name(), err)
	}

	br := bufio.NewReaderSize(rc, sniffBufSize)
	kind, err := Sniff(br)
	if err != nil {
		_ = rc.Close()
		return nil, Plain, asIOError("read", src.Name(), err)
	}

	switch kind {
	case Gzip:
		zr, err := gzip.NewReader(br)
		if err != nil {
			_ = rc.Close()
			return nil, kind, asIOError("gzip", src.Name(), err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr, rc}}, kind, nil
	case Zstd:
		zr, err := zstd.NewReader(br, zstd.WithDecoderConcurrency(1))
		if err != nil {
			_ = rc.Close()
			return nil, kind, asIOError("zstd", src.Name(), err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zstdCloser{zr}, rc}}, kind, nil
	default:
		return &stackedReader{Reader: br, closers: []io.Closer{rc}}, kind, nil
	}
}

func asIOError(op, name string, err error) error {
	var ioErr *errs.IOError
	if errors.As(err, &ioErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &errs.IOError{Op: op, Path: name, Err: err}
}

// stackedReader reads from the outermost decoder and closes every layer.
type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var errList []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errList = append(errList, err)
		}
	}
	if len(errList) > 0 {
		return fmt.Errorf("datasource: close: %w", errors.Join(errList...))
	}
	return nil
}

type zstdCloser struct{ d *zstd.Decoder }

func (z zstdCloser) Close() error {
	z.d.Close()
	return nil
}
