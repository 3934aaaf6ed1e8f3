package colfile

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/errs"
	"jsonl2col/internal/schema"
)

const writeBufSize = 1 << 20

// ErrClosed is returned by writes after Finish or Abort.
var ErrClosed = errors.New("colfile: writer closed")

// ErrChunkTooLarge is returned when a chunk's payload or stored block does not
// fit the format's u32 length fields. Lower the rows per chunk.
var ErrChunkTooLarge = errors.New("colfile: chunk exceeds 4 GiB")

// maxBlockBytes bounds both the uncompressed payload and the stored block.
var maxBlockBytes int64 = math.MaxUint32

// WriterOptions configures a Writer.
type WriterOptions struct {
	Codec Codec
}

// Writer appends chunks to an artifact and seals it with a footer.
//
// Memory is bounded by one chunk: every WriteChunk encodes into the same
// scratch buffers and hands the bytes to a buffered file writer.
//
// A Writer is not safe for concurrent use.
type Writer struct {
	path   string
	file   *os.File // nil for writers over a plain io.Writer
	bw     *bufio.Writer
	closer io.Closer

	schema *schema.Schema
	codec  Codec
	comp   *compressor

	payload []byte
	block   []byte

	off    int64
	chunks []ChunkMeta
	rows   int64

	done bool
	err  error
}

// Create truncates or creates path and writes the artifact header.
func Create(path string, s *schema.Schema, opt WriterOptions) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, &errs.IOError{Op: "create", Path: path, Err: err}
	}
	w, err := newWriter(f, path, s, opt)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	w.file = f
	w.closer = f
	return w, nil
}

// NewWriter writes an artifact to wr. If wr is an io.Closer it is closed by
// Finish and Abort.
func NewWriter(wr io.Writer, s *schema.Schema, opt WriterOptions) (*Writer, error) {
	w, err := newWriter(wr, "", s, opt)
	if err != nil {
		return nil, err
	}
	if c, ok := wr.(io.Closer); ok {
		w.closer = c
	}
	return w, nil
}

func newWriter(wr io.Writer, path string, s *schema.Schema, opt WriterOptions) (*Writer, error) {
	comp, err := newCompressor(opt.Codec)
	if err != nil {
		return nil, err
	}
	w := &Writer{
		path:   path,
		bw:     bufio.NewWriterSize(wr, writeBufSize),
		schema: s,
		codec:  opt.Codec,
		comp:   comp,
	}

	hdr := make([]byte, headerSize)
	copy(hdr, Magic)
	hdr[4] = Version
	if err := w.write(hdr); err != nil {
		comp.Close()
		return nil, err
	}
	return w, nil
}

// Flush implements chunk.Flusher.
func (w *Writer) Flush(ctx context.Context, c *chunk.Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return w.WriteChunk(c)
}

// WriteChunk encodes, compresses and appends one sealed chunk.
func (w *Writer) WriteChunk(c *chunk.Chunk) error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return ErrClosed
	}
	if !c.Sealed() {
		return errors.New("colfile: chunk not sealed")
	}

	w.payload = appendPayload(w.payload[:0], c)
	if int64(len(w.payload)) > maxBlockBytes {
		w.err = fmt.Errorf("%w: chunk %d payload is %d bytes", ErrChunkTooLarge, len(w.chunks), len(w.payload))
		return w.err
	}

	w.block = append(w.block[:0], byte(w.codec))
	w.block = le.AppendUint32(w.block, uint32(len(w.payload)))
	block, err := w.comp.appendCompressed(w.block, w.payload)
	if err != nil {
		w.err = fmt.Errorf("colfile: compress chunk %d: %w", len(w.chunks), err)
		return w.err
	}
	w.block = block
	if int64(len(w.block)) > maxBlockBytes {
		w.err = fmt.Errorf("%w: chunk %d block is %d bytes", ErrChunkTooLarge, len(w.chunks), len(w.block))
		return w.err
	}

	nulls := make([]int64, c.NumColumns())
	for i := range nulls {
		nulls[i] = int64(c.Column(i).NullCount())
	}
	meta := ChunkMeta{
		Offset:     w.off,
		Length:     int64(len(w.block)),
		Rows:       c.Rows(),
		XXH3:       xxh3.Hash(w.block),
		NullCounts: nulls,
	}

	if err := w.write(le.AppendUint32(nil, uint32(len(w.block)))); err != nil {
		return err
	}
	if err := w.write(w.block); err != nil {
		return err
	}
	w.chunks = append(w.chunks, meta)
	w.rows += int64(c.Rows())
	return nil
}

// Finish writes the footer and trailer, syncs and closes the destination.
func (w *Writer) Finish(info RunInfo) error {
	if w.err != nil {
		return w.err
	}
	if w.done {
		return ErrClosed
	}

	chunks := w.chunks
	if chunks == nil {
		chunks = []ChunkMeta{}
	}
	footer := Footer{
		Version:      Version,
		CreatedBy:    createdBy,
		Codec:        w.codec,
		Schema:       w.schema.Columns,
		Chunks:       chunks,
		TotalRows:    w.rows,
		RowsExamined: info.RowsExamined,
		RowsSkipped:  info.RowsSkipped,
		Sampled:      info.Sampled,
		Mode:         info.Mode,
	}
	body, err := json.Marshal(footer)
	if err != nil {
		w.err = fmt.Errorf("colfile: encode footer: %w", err)
		return w.err
	}

	tail := le.AppendUint32(nil, uint32(len(body)))
	tail = append(tail, body...)
	tail = le.AppendUint32(tail, uint32(len(body)))
	tail = le.AppendUint64(tail, xxh3.Hash(body))
	tail = append(tail, Magic...)
	if err := w.write(tail); err != nil {
		return err
	}

	if err := w.bw.Flush(); err != nil {
		return w.fail("flush", err)
	}
	if w.file != nil {
		if err := w.file.Sync(); err != nil {
			return w.fail("sync", err)
		}
	}
	w.done = true
	w.comp.Close()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			w.err = &errs.IOError{Op: "close", Path: w.path, Err: err}
			return w.err
		}
	}
	return nil
}

// Abort closes the destination without a footer so readers see it as
// incomplete. It is a no-op after Finish and safe to call more than once.
func (w *Writer) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.comp.Close()

	// Push out buffered chunks so the partial file reflects what was written;
	// its missing trailer still marks it incomplete.
	_ = w.bw.Flush()
	if w.closer != nil {
		if err := w.closer.Close(); err != nil {
			log.Printf("colfile: abort close %s: %v", w.path, err)
			return &errs.IOError{Op: "close", Path: w.path, Err: err}
		}
	}
	return nil
}

// BytesWritten returns the artifact size so far.
func (w *Writer) BytesWritten() int64 { return w.off }

// Chunks returns the number of chunks written.
func (w *Writer) Chunks() int { return len(w.chunks) }

// Rows returns the number of rows written.
func (w *Writer) Rows() int64 { return w.rows }

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.off += int64(n)
	if err != nil {
		return w.fail("write", err)
	}
	return nil
}

func (w *Writer) fail(op string, err error) error {
	w.err = &errs.IOError{Op: op, Path: w.path, Err: err}
	return w.err
}
