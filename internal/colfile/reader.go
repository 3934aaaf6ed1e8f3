package colfile

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/zeebo/xxh3"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/errs"
	"jsonl2col/internal/schema"
)

// maxFooterBytes guards against allocating for a corrupt footer length.
const maxFooterBytes = 256 << 20

// Reader gives random access to the chunks of a complete artifact.
//
// A Reader is not safe for concurrent use.
type Reader struct {
	ra     io.ReaderAt
	size   int64
	closer io.Closer

	footer Footer
	schema *schema.Schema

	dec   decompressor
	raw   []byte
	plain []byte
}

// Open opens and validates the artifact at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &errs.IOError{Op: "open", Path: path, Err: err}
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, &errs.IOError{Op: "stat", Path: path, Err: err}
	}
	r, err := NewReader(f, st.Size())
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	r.closer = f
	return r, nil
}

// NewReader validates the header, trailer and footer of the size-byte
// artifact behind ra. A missing trailer or a footer that fails its checksum
// yields ErrIncomplete.
func NewReader(ra io.ReaderAt, size int64) (*Reader, error) {
	r := &Reader{ra: ra, size: size}

	if size < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrIncomplete, size)
	}
	hdr, err := r.readAt(0, headerSize)
	if err != nil {
		return nil, err
	}
	if string(hdr[:4]) != Magic {
		return nil, ErrNotArtifact
	}
	if hdr[4] != Version {
		return nil, fmt.Errorf("colfile: unsupported version %d", hdr[4])
	}

	if size < headerSize+chunkPrefix+trailerSize {
		return nil, fmt.Errorf("%w: no trailer", ErrIncomplete)
	}
	tr, err := r.readAt(size-trailerSize, trailerSize)
	if err != nil {
		return nil, err
	}
	if string(tr[12:]) != Magic {
		return nil, fmt.Errorf("%w: trailer magic missing", ErrIncomplete)
	}
	flen := int64(le.Uint32(tr[0:4]))
	sum := le.Uint64(tr[4:12])

	bodyAt := size - trailerSize - flen
	if flen > maxFooterBytes || bodyAt-chunkPrefix < headerSize {
		return nil, fmt.Errorf("%w: footer length %d out of range", ErrIncomplete, flen)
	}
	body, err := r.readAt(bodyAt-chunkPrefix, int(flen)+chunkPrefix)
	if err != nil {
		return nil, err
	}
	if int64(le.Uint32(body)) != flen {
		return nil, fmt.Errorf("%w: footer length prefix mismatch", ErrIncomplete)
	}
	body = body[chunkPrefix:]
	if xxh3.Hash(body) != sum {
		return nil, fmt.Errorf("%w: footer checksum mismatch", ErrIncomplete)
	}
	if err := json.Unmarshal(body, &r.footer); err != nil {
		return nil, fmt.Errorf("%w: footer: %v", ErrIncomplete, err)
	}

	r.schema, err = schema.New(r.footer.Schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if err := r.checkIndex(bodyAt - chunkPrefix); err != nil {
		return nil, err
	}
	return r, nil
}

// checkIndex verifies that the chunk index tiles [header, end) in order and
// that row counts add up.
func (r *Reader) checkIndex(end int64) error {
	next := int64(headerSize)
	var rows int64
	for i, m := range r.footer.Chunks {
		if m.Offset != next || m.Length < blockHeader || m.Rows < 0 {
			return fmt.Errorf("%w: chunk %d index entry %+v", ErrCorrupt, i, m)
		}
		next = m.Offset + chunkPrefix + m.Length
		rows += int64(m.Rows)
	}
	if next != end {
		return fmt.Errorf("%w: chunks end at %d, footer starts at %d", ErrCorrupt, next, end)
	}
	if rows != r.footer.TotalRows {
		return fmt.Errorf("%w: chunks hold %d rows, footer says %d", ErrCorrupt, rows, r.footer.TotalRows)
	}
	return nil
}

func (r *Reader) Footer() Footer         { return r.footer }
func (r *Reader) Schema() *schema.Schema { return r.schema }
func (r *Reader) NumChunks() int         { return len(r.footer.Chunks) }
func (r *Reader) TotalRows() int64       { return r.footer.TotalRows }

// Chunk reads, verifies and decodes chunk i.
func (r *Reader) Chunk(i int) (*chunk.Chunk, error) {
	if i < 0 || i >= len(r.footer.Chunks) {
		return nil, fmt.Errorf("colfile: chunk %d out of range [0,%d)", i, len(r.footer.Chunks))
	}
	m := r.footer.Chunks[i]

	raw, err := r.readInto(r.raw, m.Offset, int(m.Length)+chunkPrefix)
	if err != nil {
		return nil, err
	}
	r.raw = raw
	if int64(le.Uint32(raw)) != m.Length {
		return nil, fmt.Errorf("%w: chunk %d length prefix mismatch", ErrCorrupt, i)
	}
	block := raw[chunkPrefix:]
	if xxh3.Hash(block) != m.XXH3 {
		return nil, fmt.Errorf("%w: chunk %d checksum mismatch", ErrCorrupt, i)
	}

	codec := Codec(block[0])
	size := int(le.Uint32(block[1:blockHeader]))
	plain, err := r.dec.decompress(codec, r.plain, block[blockHeader:], size)
	if err != nil {
		return nil, fmt.Errorf("%w: chunk %d: %s: %v", ErrCorrupt, i, codec, err)
	}
	r.plain = plain
	if len(plain) != size {
		return nil, fmt.Errorf("%w: chunk %d decompressed to %d bytes, want %d", ErrCorrupt, i, len(plain), size)
	}

	c, err := decodePayload(plain, r.schema)
	if err != nil {
		return nil, fmt.Errorf("chunk %d: %w", i, err)
	}
	if c.Rows() != m.Rows {
		return nil, fmt.Errorf("%w: chunk %d holds %d rows, index says %d", ErrCorrupt, i, c.Rows(), m.Rows)
	}
	return c, nil
}

// Rows calls fn for every row in file order. The slice passed to fn is
// reused between calls. Iteration stops at the first error.
func (r *Reader) Rows(fn func(row []schema.Value) error) error {
	var buf []schema.Value
	for i := range r.footer.Chunks {
		c, err := r.Chunk(i)
		if err != nil {
			return err
		}
		for j := 0; j < c.Rows(); j++ {
			buf = c.Row(j, buf)
			if err := fn(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

// Verify decodes every chunk, checking checksums and structure.
func (r *Reader) Verify() error {
	for i := range r.footer.Chunks {
		if _, err := r.Chunk(i); err != nil {
			return err
		}
	}
	return nil
}

// Close releases decoder state and closes the underlying file if the Reader
// opened it.
func (r *Reader) Close() error {
	r.dec.Close()
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Reader) readAt(off int64, n int) ([]byte, error) {
	return r.readInto(nil, off, n)
}

func (r *Reader) readInto(buf []byte, off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > r.size {
		return nil, fmt.Errorf("%w: read [%d,%d) beyond %d bytes", ErrCorrupt, off, off+int64(n), r.size)
	}
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	if _, err := r.ra.ReadAt(buf, off); err != nil && err != io.EOF {
		return nil, &errs.IOError{Op: "read", Err: err}
	}
	return buf, nil
}
