package pipeline

import (
	"context"
	"errors"
	"io"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/colfile"
	"jsonl2col/internal/config"
	"jsonl2col/internal/datasource"
	"jsonl2col/internal/metrics"
	"jsonl2col/internal/parser/jsonl"
	"jsonl2col/internal/schema"
)

// convert is pass 2. The sink is created only after pass 1 succeeded, and is
// aborted on any error so a failed run never leaves a readable artifact.
func convert(
	ctx context.Context,
	src datasource.Source,
	cfg config.Convert,
	inf schema.Result,
	codec colfile.Codec,
	mode jsonl.Mode,
	stats *counters,
) (jsonl.DecodeStats, error) {
	rc, _, err := datasource.OpenDecoded(ctx, src)
	if err != nil {
		return jsonl.DecodeStats{}, err
	}
	defer rc.Close()

	w, err := createSinkFn(cfg.Output.Path, inf.Schema, colfile.WriterOptions{Codec: codec})
	if err != nil {
		return jsonl.DecodeStats{}, err
	}

	rd := jsonl.NewReader(rc, src.Name(), cfg.Input.MaxLineBytes)
	dec := jsonl.NewDecoder(inf.Schema, jsonl.DecoderOptions{Mode: mode, NormalizeKeys: cfg.Input.NormalizeKeys})
	cw := &chunkWriter{sink: w, job: cfg.Job, verbose: cfg.Runtime.Verbose, stats: stats, start: time.Now()}

	if cfg.Runtime.Sequential {
		err = runSequential(ctx, rd, dec, inf.Schema, cfg, cw, stats)
	} else {
		err = runPipelined(ctx, rd, dec, inf.Schema, cfg, cw, stats)
	}
	dstats := dec.Stats()
	if err != nil {
		if aerr := w.Abort(); aerr != nil {
			log.Printf("convert: abort: %v", aerr)
		}
		return dstats, err
	}

	t := time.Now()
	err = w.Finish(colfile.RunInfo{
		RowsExamined: inf.RowsExamined,
		RowsSkipped:  inf.RowsSkipped,
		Sampled:      inf.Sampled,
		Mode:         mode.String(),
	})
	metrics.RecordStep(cfg.Job, "finish", err, time.Since(t))
	if err != nil {
		_ = w.Abort()
		return dstats, err
	}
	stats.bytes.Store(w.BytesWritten())
	return dstats, nil
}

// runSequential decodes, accumulates and writes on the calling goroutine.
func runSequential(
	ctx context.Context,
	rd *jsonl.Reader,
	dec *jsonl.Decoder,
	s *schema.Schema,
	cfg config.Convert,
	cw *chunkWriter,
	stats *counters,
) error {
	var acc *chunk.Accumulator
	acc = chunk.NewAccumulator(s, cfg.Output.ChunkRows, 1, chunk.FlushFunc(func(ctx context.Context, c *chunk.Chunk) error {
		if err := cw.write(c); err != nil {
			return err
		}
		acc.Recycle(c)
		return nil
	}))

	for n := 0; ; n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		ln, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		r, err := dec.Decode(ln)
		if err != nil {
			return err
		}
		stats.decoded.Add(1)
		err = acc.Add(ctx, r.Line, r.V)
		r.Free()
		if err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := acc.Close(ctx); err != nil {
		return err
	}
	stats.noteAccumulator(acc)
	return nil
}

// runPipelined runs pass 2 as three stages under one errgroup:
//
//	decode → rows (bounded) → accumulate → chunks (bounded) → write
//
// Order is preserved because every stage is a single goroutine. The first
// failing stage cancels the others.
func runPipelined(
	ctx context.Context,
	rd *jsonl.Reader,
	dec *jsonl.Decoder,
	s *schema.Schema,
	cfg config.Convert,
	cw *chunkWriter,
	stats *counters,
) error {
	g, gctx := errgroup.WithContext(ctx)

	rows := make(chan *jsonl.Row, cfg.Runtime.RowBuffer)
	chunks := make(chan *chunk.Chunk, cfg.Runtime.ChunkQueue)

	// Spare chunks: one being filled plus the queue plus the one being written.
	acc := chunk.NewAccumulator(s, cfg.Output.ChunkRows, cfg.Runtime.ChunkQueue+1,
		chunk.FlushFunc(func(ctx context.Context, c *chunk.Chunk) error {
			select {
			case chunks <- c:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

	// 1) Decoder: lines → pooled rows.
	g.Go(func() error {
		defer close(rows)
		for n := 0; ; n++ {
			if n%ctxCheckEvery == 0 {
				if err := gctx.Err(); err != nil {
					return err
				}
			}
			ln, err := rd.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			r, err := dec.Decode(ln)
			if err != nil {
				return err
			}
			stats.decoded.Add(1)
			select {
			case rows <- r:
			case <-gctx.Done():
				r.Free()
				return gctx.Err()
			}
		}
	})

	// 2) Accumulator: rows → sealed chunks.
	g.Go(func() error {
		defer close(chunks)
		for r := range rows {
			err := acc.Add(gctx, r.Line, r.V)
			r.Free()
			if err != nil {
				return err
			}
		}
		if err := gctx.Err(); err != nil {
			return err
		}
		if err := acc.Close(gctx); err != nil {
			return err
		}
		stats.noteAccumulator(acc)
		return nil
	})

	// 3) Writer: chunks → sink, then back to the accumulator for reuse.
	g.Go(func() error {
		for c := range chunks {
			if err := cw.write(c); err != nil {
				return err
			}
			acc.Recycle(c)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	// A parent cancellation that raced with a clean drain still fails the run.
	return ctx.Err()
}

// chunkWriter writes chunks to the sink and reports progress.
type chunkWriter struct {
	sink    sink
	job     string
	verbose bool
	stats   *counters
	start   time.Time
}

func (cw *chunkWriter) write(c *chunk.Chunk) error {
	before := cw.sink.BytesWritten()
	if err := cw.sink.WriteChunk(c); err != nil {
		return err
	}
	n := cw.sink.BytesWritten() - before

	idx := cw.stats.chunks.Add(1)
	written := cw.stats.written.Add(int64(c.Rows()))
	cw.stats.bytes.Store(cw.sink.BytesWritten())
	metrics.RecordChunk(cw.job, n)

	if cw.verbose {
		rps := int64(0)
		if el := time.Since(cw.start).Seconds(); el > 0 {
			rps = int64(float64(written) / el)
		}
		log.Printf("convert: chunk=%d rows=%d lines=%d-%d bytes=%d total_rows=%d rps=%d",
			idx, c.Rows(), c.FirstLine, c.LastLine, n, written, rps)
	}
	return nil
}
