package pipeline

import (
	"log"
	"sync"
	"time"

	"jsonl2col/internal/parser/jsonl"
)

// errAgg keeps a count of errors and the first few messages for the summary.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int
	first []string
}

func newErrAgg(limit int) *errAgg {
	return &errAgg{limit: limit}
}

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if a.count < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

func (a *errAgg) log(title string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.count == 0 {
		return
	}
	log.Printf("%s: %d (showing first %d)", title, a.count, len(a.first))
	for i, s := range a.first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// logGlobalSummary prints final statistics for a successful run.
//
// Without sampling every examined row must be written:
//
//	examined == decoded == written
//
// With sampling, decoded covers the whole input and examined only the sample.
// Between the pass-2 stages nothing may be lost:
//
//	decoded == accumulated == written, sealed == chunks
func logGlobalSummary(c *counters, d jsonl.DecodeStats, sampled bool, elapsed time.Duration) {
	examined := c.examined.Load()
	decoded := c.decoded.Load()
	accumulated := c.accumulated.Load()
	written := c.written.Load()
	sealed, chunks := c.sealed.Load(), c.chunks.Load()

	log.Printf(
		"summary: lines=%d examined=%d skipped=%d decoded=%d written=%d chunks=%d bytes=%d coerced=%d nulled=%d unknown_keys=%d elapsed=%s",
		c.lines.Load(),
		examined,
		c.skipped.Load(),
		decoded,
		written,
		chunks,
		c.bytes.Load(),
		d.Coerced,
		d.Nulled,
		d.UnknownKeys,
		elapsed.Truncate(time.Millisecond),
	)

	if decoded != written || accumulated != written || (!sampled && examined != written) {
		log.Printf(
			"WARNING: row accounting mismatch: examined=%d decoded=%d accumulated=%d written=%d",
			examined, decoded, accumulated, written,
		)
	}
	if sealed != chunks {
		log.Printf("WARNING: chunk accounting mismatch: sealed=%d written=%d", sealed, chunks)
	}
}
