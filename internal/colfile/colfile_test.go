package colfile

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.Column{
		{Name: "id", Type: schema.Int64},
		{Name: "score", Type: schema.Float64, Nullable: true},
		{Name: "ok", Type: schema.Bool, Nullable: true},
		{Name: "name", Type: schema.Utf8, Nullable: true},
		{Name: "extra", Type: schema.RawJSON, Nullable: true},
		{Name: "gone", Type: schema.Null, Nullable: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func makeRow(i int) []schema.Value {
	row := []schema.Value{
		schema.IntValue(int64(i)),
		schema.FloatValue(float64(i) / 4),
		schema.BoolValue(i%2 == 0),
		schema.StringValue("name-" + string(rune('a'+i%26))),
		schema.RawJSONValue(`{"i":[` + string(rune('0'+i%10)) + `]}`),
		schema.NullValue(),
	}
	if i%3 == 0 {
		row[1] = schema.NullValue()
		row[3] = schema.NullValue()
	}
	if i%5 == 0 {
		row[2] = schema.NullValue()
		row[4] = schema.NullValue()
	}
	return row
}

// writeArtifact writes n generated rows in chunks of chunkRows and returns the
// finished bytes.
func writeArtifact(t *testing.T, codec Codec, n, chunkRows int) []byte {
	t.Helper()
	s := testSchema(t)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, s, WriterOptions{Codec: codec})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	acc := chunk.NewAccumulator(s, chunkRows, 1, w)
	ctx := context.Background()
	for i := 0; i < n; i++ {
		if err := acc.Add(ctx, i+1, makeRow(i)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if err := acc.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Finish(RunInfo{RowsExamined: int64(n), Mode: "strict"}); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if w.BytesWritten() != int64(buf.Len()) {
		t.Fatalf("BytesWritten = %d, buffer has %d", w.BytesWritten(), buf.Len())
	}
	return buf.Bytes()
}

func openBytes(t *testing.T, b []byte) (*Reader, error) {
	t.Helper()
	return NewReader(bytes.NewReader(b), int64(len(b)))
}

func TestRoundTrip_AllCodecs(t *testing.T) {
	for _, codec := range []Codec{CodecNone, CodecZstd, CodecS2, CodecGzip} {
		t.Run(codec.String(), func(t *testing.T) {
			const n, chunkRows = 1000, 128
			data := writeArtifact(t, codec, n, chunkRows)

			r, err := openBytes(t, data)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}
			defer r.Close()

			f := r.Footer()
			if f.Codec != codec || f.TotalRows != n || f.Version != Version || f.Mode != "strict" {
				t.Fatalf("footer = %+v", f)
			}
			if r.NumChunks() != 8 {
				t.Fatalf("NumChunks = %d, want 8", r.NumChunks())
			}
			if !reflect.DeepEqual(r.Schema().Columns, testSchema(t).Columns) {
				t.Fatalf("schema = %v", r.Schema())
			}

			i := 0
			err = r.Rows(func(row []schema.Value) error {
				if want := makeRow(i); !reflect.DeepEqual(row, want) {
					t.Fatalf("row %d = %v, want %v", i, row, want)
				}
				i++
				return nil
			})
			if err != nil {
				t.Fatalf("Rows: %v", err)
			}
			if i != n {
				t.Fatalf("iterated %d rows, want %d", i, n)
			}
		})
	}
}

func TestFooter_NullCounts(t *testing.T) {
	r, err := openBytes(t, writeArtifact(t, CodecNone, 30, 30))
	if err != nil {
		t.Fatal(err)
	}
	got := r.Footer().Chunks[0].NullCounts
	// rows 0..29: multiples of 3 -> 10, multiples of 5 -> 6.
	want := []int64{0, 10, 6, 10, 6, 30}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("null counts = %v, want %v", got, want)
	}
}

func TestEmptyArtifact(t *testing.T) {
	r, err := openBytes(t, writeArtifact(t, CodecZstd, 0, 16))
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.NumChunks() != 0 || r.TotalRows() != 0 {
		t.Fatalf("empty artifact has %d chunks, %d rows", r.NumChunks(), r.TotalRows())
	}
	if err := r.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSpecialFloats(t *testing.T) {
	s, err := schema.New([]schema.Column{{Name: "f", Type: schema.Float64}})
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, s, WriterOptions{Codec: CodecS2})
	if err != nil {
		t.Fatal(err)
	}
	c := chunk.New(s, 4)
	vals := []float64{math.Inf(1), math.Inf(-1), math.Copysign(0, -1), math.MaxFloat64}
	for i, v := range vals {
		if err := c.AppendRow(i, []schema.Value{schema.FloatValue(v)}); err != nil {
			t.Fatal(err)
		}
	}
	if err := c.Seal(); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteChunk(c); err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(RunInfo{}); err != nil {
		t.Fatal(err)
	}

	r, err := openBytes(t, buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Chunk(0)
	if err != nil {
		t.Fatal(err)
	}
	for i, v := range vals {
		if math.Float64bits(got.Column(0).Floats()[i]) != math.Float64bits(v) {
			t.Fatalf("float %d = %v, want %v", i, got.Column(0).Floats()[i], v)
		}
	}
}

func TestAbort_LeavesIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jcol")
	s := testSchema(t)
	w, err := Create(path, s, WriterOptions{Codec: CodecZstd})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	acc := chunk.NewAccumulator(s, 10, 1, w)
	ctx := context.Background()
	for i := 0; i < 25; i++ {
		if err := acc.Add(ctx, i+1, makeRow(i)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort: %v", err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("second Abort: %v", err)
	}
	if err := w.Finish(RunInfo{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("Finish after Abort: err = %v, want ErrClosed", err)
	}

	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if st.Size() <= headerSize {
		t.Fatalf("aborted file has %d bytes, want the two written chunks", st.Size())
	}
	if _, err := Open(path); !errors.Is(err, ErrIncomplete) {
		t.Fatalf("Open(aborted) err = %v, want ErrIncomplete", err)
	}
}

func TestCreate_FinishThenAbortIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jcol")
	w, err := Create(path, testSchema(t), WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Finish(RunInfo{}); err != nil {
		t.Fatal(err)
	}
	if err := w.Abort(); err != nil {
		t.Fatalf("Abort after Finish: %v", err)
	}
	r, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	if r.Footer().Codec != CodecNone {
		t.Fatalf("codec = %s, want none (zero value)", r.Footer().Codec)
	}
}

func TestNewReader_DetectsDamage(t *testing.T) {
	good := writeArtifact(t, CodecZstd, 300, 100)

	tests := []struct {
		name   string
		mutate func([]byte) []byte
		want   error
	}{
		{"empty file", func([]byte) []byte { return nil }, ErrIncomplete},
		{"header only", func(b []byte) []byte { return b[:headerSize] }, ErrIncomplete},
		{"truncated trailer", func(b []byte) []byte { return b[:len(b)-1] }, ErrIncomplete},
		{"truncated mid-chunk", func(b []byte) []byte { return b[:len(b)/2] }, ErrIncomplete},
		{"footer byte flipped", func(b []byte) []byte { b[len(b)-trailerSize-3] ^= 0xff; return b }, ErrIncomplete},
		{"wrong magic", func(b []byte) []byte { b[0] = 'X'; return b }, ErrNotArtifact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := tt.mutate(append([]byte(nil), good...))
			if _, err := openBytes(t, b); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestChunk_DetectsCorruption(t *testing.T) {
	data := writeArtifact(t, CodecGzip, 300, 100)
	r, err := openBytes(t, data)
	if err != nil {
		t.Fatal(err)
	}
	m := r.Footer().Chunks[1]
	data[m.Offset+chunkPrefix+m.Length/2] ^= 0x01

	if _, err := r.Chunk(0); err != nil {
		t.Fatalf("undamaged chunk 0: %v", err)
	}
	if _, err := r.Chunk(1); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("damaged chunk: err = %v, want ErrCorrupt", err)
	}
	if err := r.Verify(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Verify: err = %v, want ErrCorrupt", err)
	}
}

func TestParseCodec(t *testing.T) {
	tests := map[string]Codec{"": CodecZstd, "none": CodecNone, "ZSTD": CodecZstd, "s2": CodecS2, " gzip ": CodecGzip}
	for in, want := range tests {
		got, err := ParseCodec(in)
		if err != nil || got != want {
			t.Errorf("ParseCodec(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseCodec("lz4"); err == nil {
		t.Errorf("ParseCodec(lz4) succeeded")
	}
}

func TestWriteChunk_RequiresSealed(t *testing.T) {
	s := testSchema(t)
	w, err := NewWriter(&bytes.Buffer{}, s, WriterOptions{})
	if err != nil {
		t.Fatal(err)
	}
	c := chunk.New(s, 2)
	if err := c.AppendRow(1, makeRow(1)); err != nil {
		t.Fatal(err)
	}
	if err := w.WriteChunk(c); err == nil {
		t.Fatalf("WriteChunk(unsealed) succeeded")
	}
}

func TestWriteChunk_RejectsOversizedChunk(t *testing.T) {
	s := testSchema(t)
	build := func(rows int) *chunk.Chunk {
		c := chunk.New(s, rows)
		for i := 0; i < rows; i++ {
			if err := c.AppendRow(i+1, makeRow(i)); err != nil {
				t.Fatal(err)
			}
		}
		if err := c.Seal(); err != nil {
			t.Fatal(err)
		}
		return c
	}
	payloadLen := func(c *chunk.Chunk) int64 { return int64(len(appendPayload(nil, c))) }

	defer func(old int64) { maxBlockBytes = old }(maxBlockBytes)

	tests := []struct {
		name  string
		codec Codec
		limit func(small, big *chunk.Chunk) int64
	}{
		// Well above the small chunk, well below the big one's payload.
		{"payload", CodecZstd, func(small, _ *chunk.Chunk) int64 { return payloadLen(small) + 64 }},
		// The big payload fits exactly; the stored block adds a codec byte
		// and a length field on top of it.
		{"block", CodecNone, func(_, big *chunk.Chunk) int64 { return payloadLen(big) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			small, big := build(4), build(64)
			maxBlockBytes = tt.limit(small, big)

			path := filepath.Join(t.TempDir(), "out.jcol")
			w, err := Create(path, s, WriterOptions{Codec: tt.codec})
			if err != nil {
				t.Fatal(err)
			}
			if err := w.WriteChunk(small); err != nil {
				t.Fatalf("WriteChunk(small): %v", err)
			}
			if err := w.WriteChunk(big); !errors.Is(err, ErrChunkTooLarge) {
				t.Fatalf("WriteChunk(big) err = %v, want ErrChunkTooLarge", err)
			}
			if err := w.Finish(RunInfo{}); !errors.Is(err, ErrChunkTooLarge) {
				t.Fatalf("Finish after oversized chunk: err = %v, want ErrChunkTooLarge", err)
			}
			if err := w.Abort(); err != nil {
				t.Fatalf("Abort: %v", err)
			}
			if _, err := Open(path); !errors.Is(err, ErrIncomplete) {
				t.Fatalf("Open err = %v, want ErrIncomplete", err)
			}
		})
	}
}
