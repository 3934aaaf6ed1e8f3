// Package config defines the JSON-serializable configuration model for a
// conversion run. Values come from three layers, highest precedence first:
//
//  1. the run settings (CLI flags, or a --config JSON file they override),
//  2. environment variables for tuning knobs (JSONL2COL_CHUNK_ROWS, ...),
//  3. built-in defaults.
//
// Example (trimmed):
//
//	{
//	  "job":     "orders-export",
//	  "input":   { "path": "orders.jsonl.gz", "normalize_keys": true },
//	  "output":  { "path": "orders.jcol", "codec": "zstd", "chunk_rows": 65536 },
//	  "infer":   { "sample_limit": 100000 },
//	  "decode":  { "mode": "coerce" },
//	  "runtime": { "row_buffer": 4096 },
//	  "metrics": { "backend": "pushgateway", "pushgateway_url": "http://pg:9091" }
//	}
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// Built-in defaults.
const (
	DefaultJob          = "jsonl2col"
	DefaultChunkRows    = 65536
	DefaultCodec        = "zstd"
	DefaultRowBuffer    = 4096
	DefaultChunkQueue   = 1
	DefaultErrorSamples = 5
	DefaultMaxLineBytes = 64 << 20
	DefaultHTTPRetries  = 3
)

// Convert is the full description of one conversion run.
type Convert struct {
	// Job labels metrics and log lines.
	Job string `json:"job"`

	Input   Input         `json:"input"`
	Output  Output        `json:"output"`
	Infer   Infer         `json:"infer"`
	Decode  Decode        `json:"decode"`
	Runtime RuntimeConfig `json:"runtime"`
	Metrics Metrics       `json:"metrics"`
}

// Input identifies the JSONL source.
type Input struct {
	// Path is a local path or an http(s) URL. Gzip and zstd input is
	// detected from the stream and decoded transparently.
	Path string `json:"path"`

	// MaxLineBytes caps a single line; longer lines fail the run.
	MaxLineBytes int `json:"max_line_bytes"`

	// NormalizeKeys folds keys to Unicode NFC before schema lookup.
	NormalizeKeys bool `json:"normalize_keys"`

	// HTTPRetries is the number of retries for URL inputs.
	HTTPRetries int `json:"http_retries"`
	// HTTPHeaderTimeout bounds the wait for response headers (e.g. "30s").
	HTTPHeaderTimeout Duration `json:"http_header_timeout"`
}

// Output describes the artifact.
type Output struct {
	Path      string `json:"path"`
	Codec     string `json:"codec"`
	ChunkRows int    `json:"chunk_rows"`
}

// Infer configures the schema inference pass.
type Infer struct {
	// SampleLimit is the number of rows examined; 0 scans every row.
	SampleLimit int `json:"sample_limit"`
}

// Decode configures the conversion pass.
type Decode struct {
	// Mode is "strict" or "coerce". Empty picks strict for exhaustive
	// inference and coerce when sampling.
	Mode string `json:"mode"`
}

// RuntimeConfig controls concurrency and buffer sizes.
type RuntimeConfig struct {
	// Sequential runs decode, accumulate and write on one goroutine.
	Sequential bool `json:"sequential"`
	// RowBuffer is the capacity of the decoded-row channel.
	RowBuffer int `json:"row_buffer"`
	// ChunkQueue is how many sealed chunks may wait for the writer.
	ChunkQueue int `json:"chunk_queue"`
	// ErrorSamples is how many distinct error messages the summary keeps.
	ErrorSamples int `json:"error_samples"`
	// Verbose enables per-chunk progress logging.
	Verbose bool `json:"verbose"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	// Backend is "none", "pushgateway" or "datadog".
	Backend        string `json:"backend"`
	PushgatewayURL string `json:"pushgateway_url"`
	// DatadogAddr is a DogStatsD address such as "127.0.0.1:8125".
	DatadogAddr string `json:"datadog_addr"`
}

// Duration decodes from a Go duration string ("250ms") or a number of seconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("config: duration must be a string or seconds: %s", b)
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Load decodes a JSON config file. Unknown fields are rejected so typos do not
// silently fall back to defaults.
func Load(path string) (Convert, error) {
	var c Convert
	f, err := os.Open(path)
	if err != nil {
		return c, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return c, fmt.Errorf("config: decode %s: %w", path, err)
	}
	return c, nil
}

// Resolve fills every unset tuning field from the environment, then from the
// built-in defaults. Values already set in c win.
func (c Convert) Resolve() Convert {
	c.Job = pickString(c.Job, getenvString("JSONL2COL_JOB", DefaultJob))
	c.Input.MaxLineBytes = pickInt(c.Input.MaxLineBytes, getenvInt("JSONL2COL_MAX_LINE_BYTES", DefaultMaxLineBytes))
	c.Input.HTTPRetries = pickInt(c.Input.HTTPRetries, getenvInt("JSONL2COL_HTTP_RETRIES", DefaultHTTPRetries))
	c.Output.Codec = pickString(c.Output.Codec, getenvString("JSONL2COL_CODEC", DefaultCodec))
	c.Output.ChunkRows = pickInt(c.Output.ChunkRows, getenvInt("JSONL2COL_CHUNK_ROWS", DefaultChunkRows))
	c.Runtime.RowBuffer = pickInt(c.Runtime.RowBuffer, getenvInt("JSONL2COL_CH_BUFFER", DefaultRowBuffer))
	c.Runtime.ChunkQueue = pickInt(c.Runtime.ChunkQueue, getenvInt("JSONL2COL_CHUNK_QUEUE", DefaultChunkQueue))
	c.Runtime.ErrorSamples = pickInt(c.Runtime.ErrorSamples, DefaultErrorSamples)
	c.Metrics.Backend = pickString(c.Metrics.Backend, getenvString("METRICS_BACKEND", "none"))
	c.Metrics.PushgatewayURL = pickString(c.Metrics.PushgatewayURL, os.Getenv("PUSHGATEWAY_URL"))
	if c.Metrics.DatadogAddr == "" {
		if host := os.Getenv("DD_AGENT_HOST"); host != "" {
			c.Metrics.DatadogAddr = host + ":" + getenvString("DD_DOGSTATSD_PORT", "8125")
		}
	}
	return c
}

// EffectiveMode returns the decode mode, applying the sampling-aware default
// when none is configured.
func (c Convert) EffectiveMode() string {
	if m := strings.ToLower(strings.TrimSpace(c.Decode.Mode)); m != "" {
		return m
	}
	if c.Infer.SampleLimit > 0 {
		return "coerce"
	}
	return "strict"
}

// getenvInt reads an int from environment, returning def when unset/invalid.
func getenvInt(k string, def int) int {
	if s := os.Getenv(k); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return def
}

func getenvString(k, def string) string {
	if s := strings.TrimSpace(os.Getenv(k)); s != "" {
		return s
	}
	return def
}

// pickInt chooses the first positive value 'a', otherwise returns 'b'.
func pickInt(a, b int) int {
	if a > 0 {
		return a
	}
	return b
}

func pickString(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return a
	}
	return b
}
