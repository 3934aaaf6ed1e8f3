package config

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"jsonl2col/internal/colfile"
	"jsonl2col/internal/datasource/httpds"
	"jsonl2col/internal/parser/jsonl"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "output.codec"). Message is
// human-readable.
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// Validate performs static checks over a resolved Convert. It does not mutate
// c; callers decide whether warnings are fatal.
func Validate(c Convert) []Issue {
	var issues []Issue
	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{SeverityError, "job", "job name is required"})
	}
	issues = append(issues, validateIO(c.Input, c.Output)...)
	issues = append(issues, validateDecode(c)...)
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateIO(in Input, out Output) []Issue {
	var issues []Issue

	if strings.TrimSpace(in.Path) == "" {
		issues = append(issues, Issue{SeverityError, "input.path", "input path is required"})
	}
	if strings.TrimSpace(out.Path) == "" {
		issues = append(issues, Issue{SeverityError, "output.path", "output path is required"})
	}
	if in.Path != "" && out.Path != "" && !httpds.IsURL(in.Path) &&
		filepath.Clean(in.Path) == filepath.Clean(out.Path) {
		issues = append(issues, Issue{SeverityError, "output.path", "output would overwrite the input"})
	}
	if httpds.IsURL(out.Path) {
		issues = append(issues, Issue{SeverityError, "output.path", "output must be a local path"})
	}
	if in.MaxLineBytes < 0 {
		issues = append(issues, Issue{SeverityError, "input.max_line_bytes", "max_line_bytes must not be negative"})
	} else if in.MaxLineBytes > 0 && in.MaxLineBytes < 1024 {
		issues = append(issues, Issue{SeverityWarning, "input.max_line_bytes",
			fmt.Sprintf("max_line_bytes=%d is small; lines over it fail the run", in.MaxLineBytes)})
	}
	if in.HTTPRetries < 0 {
		issues = append(issues, Issue{SeverityError, "input.http_retries", "http_retries must not be negative"})
	}
	if in.HTTPHeaderTimeout < 0 {
		issues = append(issues, Issue{SeverityError, "input.http_header_timeout", "http_header_timeout must not be negative"})
	}

	if _, err := colfile.ParseCodec(out.Codec); err != nil {
		issues = append(issues, Issue{SeverityError, "output.codec", err.Error()})
	}
	switch {
	case out.ChunkRows < 0:
		issues = append(issues, Issue{SeverityError, "output.chunk_rows", "chunk_rows must not be negative"})
	case out.ChunkRows > 0 && out.ChunkRows < 64:
		issues = append(issues, Issue{SeverityWarning, "output.chunk_rows",
			fmt.Sprintf("chunk_rows=%d; tiny chunks compress poorly", out.ChunkRows)})
	}
	return issues
}

func validateDecode(c Convert) []Issue {
	var issues []Issue
	if c.Infer.SampleLimit < 0 {
		issues = append(issues, Issue{SeverityError, "infer.sample_limit", "sample_limit must not be negative"})
	}
	mode, err := jsonl.ParseMode(c.EffectiveMode())
	if err != nil {
		issues = append(issues, Issue{SeverityError, "decode.mode", err.Error()})
		return issues
	}
	if mode == jsonl.Strict && c.Infer.SampleLimit > 0 {
		issues = append(issues, Issue{SeverityWarning, "decode.mode",
			"strict mode with sampling fails on the first row the sample did not cover"})
	}
	return issues
}

func validateRuntime(r RuntimeConfig) []Issue {
	var issues []Issue
	if r.RowBuffer < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.row_buffer", "row_buffer must not be negative"})
	}
	if r.ChunkQueue < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.chunk_queue", "chunk_queue must not be negative"})
	}
	if r.ErrorSamples < 0 {
		issues = append(issues, Issue{SeverityError, "runtime.error_samples", "error_samples must not be negative"})
	}
	if r.Sequential && (r.RowBuffer > 0 || r.ChunkQueue > 0) {
		issues = append(issues, Issue{SeverityWarning, "runtime.sequential",
			"row_buffer and chunk_queue are ignored in sequential mode"})
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue
	switch strings.ToLower(strings.TrimSpace(m.Backend)) {
	case "", "none":
	case "pushgateway", "prom", "prometheus":
		if m.PushgatewayURL == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url", "pushgateway backend needs a URL"})
		} else if u, err := url.Parse(m.PushgatewayURL); err != nil || u.Host == "" {
			issues = append(issues, Issue{SeverityError, "metrics.pushgateway_url",
				fmt.Sprintf("invalid URL %q", m.PushgatewayURL)})
		}
	case "datadog", "dogstatsd":
		if m.DatadogAddr == "" {
			issues = append(issues, Issue{SeverityWarning, "metrics.datadog_addr",
				"no address; the statsd client falls back to DD_AGENT_HOST or 127.0.0.1:8125"})
		}
	default:
		issues = append(issues, Issue{SeverityError, "metrics.backend",
			fmt.Sprintf("unknown backend %q (want none|pushgateway|datadog)", m.Backend)})
	}
	return issues
}
