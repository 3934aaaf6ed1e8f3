package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "convert.json")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_Decodes(t *testing.T) {
	p := writeFile(t, `{
		"job": "orders",
		"input":   {"path": "https://example.com/o.jsonl.gz", "normalize_keys": true, "http_header_timeout": "45s"},
		"output":  {"path": "o.jcol", "codec": "s2", "chunk_rows": 1024},
		"infer":   {"sample_limit": 500},
		"decode":  {"mode": "coerce"},
		"runtime": {"row_buffer": 16, "verbose": true},
		"metrics": {"backend": "pushgateway", "pushgateway_url": "http://pg:9091"}
	}`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Job != "orders" || !c.Input.NormalizeKeys || c.Output.Codec != "s2" || c.Output.ChunkRows != 1024 {
		t.Fatalf("unexpected config: %+v", c)
	}
	if time.Duration(c.Input.HTTPHeaderTimeout) != 45*time.Second {
		t.Fatalf("http_header_timeout = %v", time.Duration(c.Input.HTTPHeaderTimeout))
	}
	if c.Infer.SampleLimit != 500 || c.Decode.Mode != "coerce" || c.Runtime.RowBuffer != 16 || !c.Runtime.Verbose {
		t.Fatalf("unexpected config: %+v", c)
	}
	if c.Metrics.PushgatewayURL != "http://pg:9091" {
		t.Fatalf("metrics = %+v", c.Metrics)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name, body, substr string
	}{
		{"unknown field", `{"output": {"path": "x", "chunkrows": 5}}`, "chunkrows"},
		{"bad duration", `{"input": {"http_header_timeout": "soon"}}`, "duration"},
		{"not json", `job: x`, "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Fatalf("err = %v, want it to mention %q", err, tt.substr)
			}
		})
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Fatalf("Load(missing) succeeded")
	}
}

func TestDuration_Seconds(t *testing.T) {
	var d Duration
	if err := d.UnmarshalJSON([]byte("1.5")); err != nil {
		t.Fatal(err)
	}
	if time.Duration(d) != 1500*time.Millisecond {
		t.Fatalf("d = %v", time.Duration(d))
	}
	b, err := d.MarshalJSON()
	if err != nil || string(b) != `"1.5s"` {
		t.Fatalf("MarshalJSON = %s, %v", b, err)
	}
}

func TestResolve_Precedence(t *testing.T) {
	t.Setenv("JSONL2COL_CHUNK_ROWS", "2048")
	t.Setenv("JSONL2COL_CODEC", "gzip")
	t.Setenv("JSONL2COL_CH_BUFFER", "not-a-number")
	t.Setenv("DD_AGENT_HOST", "agent")
	t.Setenv("DD_DOGSTATSD_PORT", "")

	c := Convert{Output: Output{Codec: "s2"}}.Resolve()

	if c.Output.ChunkRows != 2048 {
		t.Errorf("chunk_rows = %d, want env 2048", c.Output.ChunkRows)
	}
	if c.Output.Codec != "s2" {
		t.Errorf("codec = %q, want explicit s2 over env", c.Output.Codec)
	}
	if c.Runtime.RowBuffer != DefaultRowBuffer {
		t.Errorf("row_buffer = %d, want default for invalid env", c.Runtime.RowBuffer)
	}
	if c.Job != DefaultJob || c.Runtime.ChunkQueue != DefaultChunkQueue || c.Input.MaxLineBytes != DefaultMaxLineBytes {
		t.Errorf("defaults not applied: %+v", c)
	}
	if c.Metrics.DatadogAddr != "agent:8125" {
		t.Errorf("datadog addr = %q", c.Metrics.DatadogAddr)
	}
}

func TestEffectiveMode(t *testing.T) {
	tests := []struct {
		mode   string
		sample int
		want   string
	}{
		{"", 0, "strict"},
		{"", 100, "coerce"},
		{"Strict", 100, "strict"},
		{" coerce ", 0, "coerce"},
	}
	for _, tt := range tests {
		c := Convert{Decode: Decode{Mode: tt.mode}, Infer: Infer{SampleLimit: tt.sample}}
		if got := c.EffectiveMode(); got != tt.want {
			t.Errorf("EffectiveMode(%q, %d) = %q, want %q", tt.mode, tt.sample, got, tt.want)
		}
	}
}
