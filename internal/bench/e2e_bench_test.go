package bench

import (
	"context"
	"io"
	"testing"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/colfile"
	"jsonl2col/internal/parser/jsonl"
	"jsonl2col/internal/schema"
)

// line mimics a typical event export row: ints, floats, strings with escapes,
// a bool, and a nested object stored as raw JSON.
var line = []byte(`{"id":123456,"ts":1700000000.25,"user":"ann \"a\" smith","ok":true,"region":"eu-west-1","attrs":{"k":[1,2,3]},"score":null}`)

func benchSchema(b *testing.B) *schema.Schema {
	b.Helper()
	sc := jsonl.NewScanner(false)
	fs, err := sc.Scan(line)
	if err != nil {
		b.Fatalf("Scan: %v", err)
	}
	inf := schema.NewInferencer(0)
	fields := make([]schema.Field, len(fs))
	for i, f := range fs {
		fields[i] = schema.Field{Name: f.Key, Type: f.Type}
	}
	inf.Observe(fields)
	return inf.Result().Schema
}

// BenchmarkEndToEnd exercises the pass-2 hot path in memory: decode a line,
// append it to a chunk, and encode+compress full chunks into a discarded
// artifact. It leaves out file I/O so codec and decode costs dominate.
//
// Run with:
//
//	go test -run=^$ -bench ^BenchmarkEndToEnd -cpuprofile cpu.out -memprofile mem.out -count=1
func BenchmarkEndToEnd(b *testing.B) {
	for _, codec := range []colfile.Codec{colfile.CodecNone, colfile.CodecZstd, colfile.CodecS2} {
		b.Run(codec.String(), func(b *testing.B) {
			ctx := context.Background()
			s := benchSchema(b)

			w, err := colfile.NewWriter(io.Discard, s, colfile.WriterOptions{Codec: codec})
			if err != nil {
				b.Fatalf("NewWriter: %v", err)
			}
			var acc *chunk.Accumulator
			acc = chunk.NewAccumulator(s, 8192, 1, chunk.FlushFunc(func(_ context.Context, c *chunk.Chunk) error {
				if err := w.WriteChunk(c); err != nil {
					return err
				}
				acc.Recycle(c)
				return nil
			}))
			dec := jsonl.NewDecoder(s, jsonl.DecoderOptions{Mode: jsonl.Strict})

			b.SetBytes(int64(len(line)))
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				r, err := dec.Decode(jsonl.Line{Num: i + 1, Data: line, Terminated: true})
				if err != nil {
					b.Fatalf("Decode: %v", err)
				}
				err = acc.Add(ctx, r.Line, r.V)
				r.Free()
				if err != nil {
					b.Fatalf("Add: %v", err)
				}
			}
			if err := acc.Close(ctx); err != nil {
				b.Fatalf("Close: %v", err)
			}
			b.StopTimer()

			if err := w.Finish(colfile.RunInfo{RowsExamined: 1, Mode: "strict"}); err != nil {
				b.Fatalf("Finish: %v", err)
			}
			if w.Rows() != int64(b.N) {
				b.Fatalf("rows = %d, want %d", w.Rows(), b.N)
			}
		})
	}
}
