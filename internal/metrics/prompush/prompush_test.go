package prompush

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	dto "github.com/prometheus/client_model/go"

	"jsonl2col/internal/metrics"
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	b, err := NewBackend("jsonl2col", "http://example.com")
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	return b
}

// family gathers the registry and returns the named metric family.
func family(t *testing.T, b *Backend, name string) *dto.MetricFamily {
	t.Helper()
	mfs, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric family %q not gathered", name)
	return nil
}

// series returns the metric in mf whose labels match want exactly.
func series(t *testing.T, mf *dto.MetricFamily, want map[string]string) *dto.Metric {
	t.Helper()
	for _, m := range mf.GetMetric() {
		if len(m.GetLabel()) != len(want) {
			continue
		}
		ok := true
		for _, lp := range m.GetLabel() {
			if want[lp.GetName()] != lp.GetValue() {
				ok = false
				break
			}
		}
		if ok {
			return m
		}
	}
	t.Fatalf("%s: no series with labels %v", mf.GetName(), want)
	return nil
}

func TestNewBackend(t *testing.T) {
	t.Parallel()

	if _, err := NewBackend("orders-export", ""); err == nil {
		t.Fatalf("NewBackend without gateway URL: error = nil, want non-nil")
	}

	tests := []struct {
		job  string
		want string
	}{
		{job: "", want: "jsonl2col"},
		{job: "orders-export", want: "orders-export"},
	}
	for _, tt := range tests {
		b, err := NewBackend(tt.job, "http://pushgateway:9091")
		if err != nil {
			t.Fatalf("NewBackend(%q) error = %v", tt.job, err)
		}
		if b.jobName != tt.want {
			t.Errorf("NewBackend(%q).jobName = %q, want %q", tt.job, b.jobName, tt.want)
		}
	}
}

func TestConversionSeries(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	// One run: both passes succeed, two chunks land in a finished artifact.
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "infer", "status": "ok"})
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "convert", "status": "ok"})
	b.ObserveHistogram(metrics.StepDuration, 0.25, metrics.Labels{"step": "convert", "status": "ok"})
	b.ObserveHistogram(metrics.StepDuration, 0.75, metrics.Labels{"step": "convert", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 120, metrics.Labels{"kind": "examined"})
	b.IncCounter(metrics.RowsTotal, 118, metrics.Labels{"kind": "written"})
	b.IncCounter(metrics.RowsTotal, 2, metrics.Labels{"kind": "skipped"})
	b.IncCounter(metrics.ChunksTotal, 2, metrics.Labels{})
	b.ObserveHistogram(metrics.ChunkBytes, 1000, metrics.Labels{})
	b.ObserveHistogram(metrics.ChunkBytes, 3000, metrics.Labels{})
	b.IncCounter(metrics.ArtifactBytes, 4096, metrics.Labels{})

	steps := family(t, b, metrics.StepTotal)
	for _, step := range []string{"infer", "convert"} {
		m := series(t, steps, map[string]string{"step": step, "status": "ok"})
		if got := m.GetCounter().GetValue(); got != 1 {
			t.Errorf("%s{step=%s} = %v, want 1", metrics.StepTotal, step, got)
		}
	}

	dur := series(t, family(t, b, metrics.StepDuration), map[string]string{"step": "convert", "status": "ok"})
	if got := dur.GetSummary().GetSampleCount(); got != 2 {
		t.Errorf("step duration count = %d, want 2", got)
	}
	if got := dur.GetSummary().GetSampleSum(); got != 1 {
		t.Errorf("step duration sum = %v, want 1", got)
	}

	rows := family(t, b, metrics.RowsTotal)
	for kind, want := range map[string]float64{"examined": 120, "written": 118, "skipped": 2} {
		if got := series(t, rows, map[string]string{"kind": kind}).GetCounter().GetValue(); got != want {
			t.Errorf("%s{kind=%s} = %v, want %v", metrics.RowsTotal, kind, got, want)
		}
	}

	if got := family(t, b, metrics.ChunksTotal).GetMetric()[0].GetCounter().GetValue(); got != 2 {
		t.Errorf("chunks = %v, want 2", got)
	}
	h := family(t, b, metrics.ChunkBytes).GetMetric()[0].GetHistogram()
	if h.GetSampleCount() != 2 || h.GetSampleSum() != 4000 {
		t.Errorf("chunk bytes count=%d sum=%v, want 2 and 4000", h.GetSampleCount(), h.GetSampleSum())
	}
	if got := family(t, b, metrics.ArtifactBytes).GetMetric()[0].GetCounter().GetValue(); got != 4096 {
		t.Errorf("artifact bytes = %v, want 4096", got)
	}
}

func TestUnknownNamesIgnored(t *testing.T) {
	t.Parallel()
	b := newTestBackend(t)

	b.IncCounter("jsonl2col_unknown_total", 10, metrics.Labels{"foo": "bar"})
	b.ObserveHistogram("jsonl2col_unknown_seconds", 1, metrics.Labels{"foo": "bar"})

	mfs, err := b.reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range mfs {
		if strings.Contains(mf.GetName(), "unknown") {
			t.Fatalf("unexpected family %q", mf.GetName())
		}
	}
}

func TestZeroBackendIsSafe(t *testing.T) {
	t.Parallel()

	b := &Backend{}
	b.IncCounter(metrics.StepTotal, 1, metrics.Labels{"step": "infer", "status": "ok"})
	b.IncCounter(metrics.RowsTotal, 1, metrics.Labels{"kind": "written"})
	b.IncCounter(metrics.ChunksTotal, 1, nil)
	b.IncCounter(metrics.ArtifactBytes, 1, nil)
	b.ObserveHistogram(metrics.StepDuration, 1, metrics.Labels{"step": "infer", "status": "ok"})
	b.ObserveHistogram(metrics.ChunkBytes, 1, nil)
}

func TestFlush(t *testing.T) {
	t.Parallel()

	type pushed struct {
		method, path, body string
	}
	reqCh := make(chan pushed, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqCh <- pushed{method: r.Method, path: r.URL.Path, body: string(body)}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	b, err := NewBackend("orders-export", srv.URL)
	if err != nil {
		t.Fatalf("NewBackend() error = %v", err)
	}
	b.IncCounter(metrics.RowsTotal, 3, metrics.Labels{"kind": "written"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	var got pushed
	select {
	case got = <-reqCh:
	default:
		t.Fatalf("Flush() sent no request to the Pushgateway")
	}
	if got.method != http.MethodPut {
		t.Errorf("method = %q, want PUT", got.method)
	}
	if !strings.Contains(got.path, "/job/orders-export") {
		t.Errorf("path = %q, want the job grouping key", got.path)
	}
	if !strings.Contains(got.body, metrics.RowsTotal) {
		t.Errorf("pushed body does not mention %s", metrics.RowsTotal)
	}
}

func BenchmarkIncCounterRows(b *testing.B) {
	backend, err := NewBackend("jsonl2col", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}
	labels := metrics.Labels{"kind": "written"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.IncCounter(metrics.RowsTotal, 1, labels)
	}
}

func BenchmarkObserveChunkBytes(b *testing.B) {
	backend, err := NewBackend("jsonl2col", "http://example.com")
	if err != nil {
		b.Fatalf("NewBackend() error = %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.ObserveHistogram(metrics.ChunkBytes, float64(i&0xffff), nil)
	}
}
