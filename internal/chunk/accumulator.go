package chunk

import (
	"context"

	"jsonl2col/internal/schema"
)

// Flusher receives sealed chunks. The chunk may be reused by the
// Accumulator once it is handed back through Recycle, so a Flusher that keeps
// the chunk past the call must not modify it and must recycle it when done.
type Flusher interface {
	Flush(ctx context.Context, c *Chunk) error
}

// FlushFunc adapts a function to Flusher.
type FlushFunc func(ctx context.Context, c *Chunk) error

func (f FlushFunc) Flush(ctx context.Context, c *Chunk) error { return f(ctx, c) }

// Accumulator appends rows to the in-progress chunk and flushes it when it
// reaches capacity. Close flushes the final partial chunk.
//
// Add and Close must be called from one goroutine; Recycle may be called from
// any goroutine.
type Accumulator struct {
	schema   *schema.Schema
	capacity int
	flusher  Flusher

	cur  *Chunk
	free chan *Chunk

	chunks int
	rows   int64
	closed bool
}

// NewAccumulator returns an Accumulator producing chunks of capacity rows
// (DefaultCapacity when <= 0). spare is how many recycled chunks are kept.
func NewAccumulator(s *schema.Schema, capacity, spare int, f Flusher) *Accumulator {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if spare < 1 {
		spare = 1
	}
	return &Accumulator{
		schema:   s,
		capacity: capacity,
		flusher:  f,
		free:     make(chan *Chunk, spare),
	}
}

// Add appends one row, flushing first if the current chunk is full after the
// append.
func (a *Accumulator) Add(ctx context.Context, line int, vals []schema.Value) error {
	if a.cur == nil {
		a.cur = a.next()
	}
	if err := a.cur.AppendRow(line, vals); err != nil {
		return err
	}
	a.rows++
	if a.cur.Full() {
		return a.flush(ctx)
	}
	return nil
}

// Close flushes a partially filled chunk. It is safe to call more than once.
func (a *Accumulator) Close(ctx context.Context) error {
	if a.closed {
		return nil
	}
	a.closed = true
	if a.cur != nil && a.cur.Rows() > 0 {
		return a.flush(ctx)
	}
	return nil
}

// Recycle returns a chunk the Flusher no longer needs.
func (a *Accumulator) Recycle(c *Chunk) {
	if c == nil || c.schema != a.schema {
		return
	}
	c.Reset()
	select {
	case a.free <- c:
	default:
	}
}

// Chunks returns the number of chunks flushed so far.
func (a *Accumulator) Chunks() int { return a.chunks }

// Rows returns the number of rows accepted so far.
func (a *Accumulator) Rows() int64 { return a.rows }

func (a *Accumulator) flush(ctx context.Context) error {
	c := a.cur
	a.cur = nil
	if err := c.Seal(); err != nil {
		return err
	}
	if err := a.flusher.Flush(ctx, c); err != nil {
		return err
	}
	a.chunks++
	return nil
}

func (a *Accumulator) next() *Chunk {
	select {
	case c := <-a.free:
		return c
	default:
		return New(a.schema, a.capacity)
	}
}
