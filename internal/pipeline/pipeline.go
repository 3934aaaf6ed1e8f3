// Package pipeline runs a conversion end to end.
//
// A run is two passes over the same input:
//
//	pass 1: Source → Reader → Scanner → Inferencer          (unified schema)
//	pass 2: Source → Reader → Decoder → Accumulator → Sink  (artifact)
//
// Pass 2 runs either on one goroutine or as three stages joined by bounded
// channels (decode → accumulate → write). Both keep peak memory around
// O(chunk_rows + row_buffer) regardless of input size. Any pass-2 error
// aborts the sink, leaving the output without a footer.
package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"jsonl2col/internal/chunk"
	"jsonl2col/internal/colfile"
	"jsonl2col/internal/config"
	"jsonl2col/internal/datasource"
	"jsonl2col/internal/datasource/file"
	"jsonl2col/internal/datasource/httpds"
	"jsonl2col/internal/errs"
	"jsonl2col/internal/metrics"
	"jsonl2col/internal/parser/jsonl"
	"jsonl2col/internal/schema"
)

// Result reports what a run produced.
type Result struct {
	Infer       schema.Result
	Mode        jsonl.Mode
	Compression datasource.Compression
	Decode      jsonl.DecodeStats

	LinesRead   int64 // physical lines seen by pass 1
	RowsWritten int64
	Chunks      int
	Bytes       int64
	Elapsed     time.Duration
}

// sink is the subset of *colfile.Writer the convert pass drives.
type sink interface {
	WriteChunk(c *chunk.Chunk) error
	Finish(info colfile.RunInfo) error
	Abort() error
	BytesWritten() int64
}

// Function variables used to introduce test seams.
// In production these point to real implementations; tests can override them.
var (
	openSourceFn = openSource

	createSinkFn = func(path string, s *schema.Schema, opt colfile.WriterOptions) (sink, error) {
		return colfile.Create(path, s, opt)
	}
)

// counters holds cross-goroutine statistics for one run.
type counters struct {
	lines       atomic.Int64 // physical lines read in pass 1, blanks included
	examined    atomic.Int64 // rows folded into the schema (pass 1)
	skipped     atomic.Int64 // rows pass 1 could not parse
	decoded     atomic.Int64 // rows decoded in pass 2
	accumulated atomic.Int64 // rows appended to chunks
	sealed      atomic.Int64 // chunks sealed by the accumulator
	written     atomic.Int64 // rows flushed to the artifact
	chunks      atomic.Int64
	bytes       atomic.Int64
}

// noteAccumulator records what the accumulator handed downstream.
func (c *counters) noteAccumulator(acc *chunk.Accumulator) {
	c.accumulated.Store(acc.Rows())
	c.sealed.Store(int64(acc.Chunks()))
}

// Run executes both passes for cfg. cfg is resolved against env and defaults
// first, so callers may pass a partially filled Convert.
func Run(ctx context.Context, cfg config.Convert) (Result, error) {
	cfg = cfg.Resolve()
	start := time.Now()
	var res Result

	codec, err := colfile.ParseCodec(cfg.Output.Codec)
	if err != nil {
		return res, err
	}
	mode, err := jsonl.ParseMode(cfg.EffectiveMode())
	if err != nil {
		return res, err
	}
	res.Mode = mode

	src := openSourceFn(cfg)
	var stats counters

	log.Printf("infer: source=%s sample_limit=%d", src.Name(), cfg.Infer.SampleLimit)
	t0 := time.Now()
	inf, comp, err := infer(ctx, src, cfg, &stats)
	metrics.RecordStep(cfg.Job, "infer", err, time.Since(t0))
	if err != nil {
		return res, fmt.Errorf("infer: %w", err)
	}
	res.Infer = inf
	res.Compression = comp
	res.LinesRead = stats.lines.Load()
	log.Printf("infer: columns=%d lines=%d examined=%d skipped=%d sampled=%v compression=%s elapsed=%s",
		inf.Schema.Len(), stats.lines.Load(), inf.RowsExamined, inf.RowsSkipped, inf.Sampled, comp,
		time.Since(t0).Truncate(time.Millisecond))
	if cfg.Runtime.Verbose {
		log.Printf("infer: schema %s", inf.Schema)
	}

	log.Printf("convert: output=%s codec=%s mode=%s chunk_rows=%d sequential=%v",
		cfg.Output.Path, codec, mode, cfg.Output.ChunkRows, cfg.Runtime.Sequential)
	t1 := time.Now()
	dstats, err := convert(ctx, src, cfg, inf, codec, mode, &stats)
	metrics.RecordStep(cfg.Job, "convert", err, time.Since(t1))
	res.Decode = dstats
	res.RowsWritten = stats.written.Load()
	res.Chunks = int(stats.chunks.Load())
	res.Bytes = stats.bytes.Load()
	res.Elapsed = time.Since(start)

	recordRowMetrics(cfg.Job, &stats, dstats, err)
	if err != nil {
		return res, fmt.Errorf("convert: %w", err)
	}
	metrics.RecordArtifact(cfg.Job, res.Bytes)

	logGlobalSummary(&stats, dstats, inf.Sampled, res.Elapsed)
	return res, nil
}

// Infer runs pass 1 only and returns the unified schema.
func Infer(ctx context.Context, cfg config.Convert) (schema.Result, error) {
	cfg = cfg.Resolve()
	var stats counters
	res, _, err := infer(ctx, openSourceFn(cfg), cfg, &stats)
	return res, err
}

// openSource picks the Source implementation for the input path.
func openSource(cfg config.Convert) datasource.Source {
	if httpds.IsURL(cfg.Input.Path) {
		c := httpds.NewClient(httpds.Config{
			HeaderTimeout: time.Duration(cfg.Input.HTTPHeaderTimeout),
			MaxRetries:    cfg.Input.HTTPRetries,
		})
		return httpds.NewSource(c, cfg.Input.Path)
	}
	return file.NewLocal(cfg.Input.Path)
}

func recordRowMetrics(job string, c *counters, d jsonl.DecodeStats, err error) {
	metrics.RecordRow(job, "examined", c.examined.Load())
	metrics.RecordRow(job, "skipped", c.skipped.Load())
	metrics.RecordRow(job, "written", c.written.Load())
	metrics.RecordRow(job, "coerced", d.Coerced)
	metrics.RecordRow(job, "nulled", d.Nulled)
	metrics.RecordRow(job, "unknown_keys", d.UnknownKeys)
	if errs.IsDataError(err) {
		// The row that stopped pass 2.
		metrics.RecordRow(job, "rejected", 1)
	}
}
