// Package metrics provides a small, backend-agnostic abstraction for recording
// operational metrics from a conversion run.
//
// The global backend defaults to a no-op implementation, so the Record helpers
// are always safe to call. Concrete systems (Prometheus Pushgateway, Datadog)
// live in subpackages and are installed with SetBackend.
package metrics

import "time"

// Metric names emitted by the Record helpers.
const (
	StepTotal     = "jsonl2col_step_total"
	StepDuration  = "jsonl2col_step_duration_seconds"
	RowsTotal     = "jsonl2col_rows_total"
	ChunksTotal   = "jsonl2col_chunks_total"
	ChunkBytes    = "jsonl2col_chunk_bytes"
	ArtifactBytes = "jsonl2col_artifact_bytes_total"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/size style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

// nopBackend is used by default so metrics are optional.
type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency and success/failure of one run phase
// ("infer", "convert", "finish").
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}

	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}

	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow increments a row-level counter for the given job and kind.
//
// Kinds mirror the run summary:
//   - "examined"
//   - "skipped"
//   - "written"
//   - "coerced"
//   - "nulled"
//   - "unknown_keys"
func RecordRow(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordChunk counts one flushed chunk and observes its encoded size.
func RecordChunk(job string, bytes int64) {
	lbls := Labels{"job": job}
	backend.IncCounter(ChunksTotal, 1, lbls)
	backend.ObserveHistogram(ChunkBytes, float64(bytes), lbls)
}

// RecordArtifact adds the final artifact size.
func RecordArtifact(job string, bytes int64) {
	if bytes <= 0 {
		return
	}
	backend.IncCounter(ArtifactBytes, float64(bytes), Labels{"job": job})
}
