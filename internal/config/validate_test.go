package config

import (
	"strings"
	"testing"
)

// hasIssue reports whether issues contains an Issue with the given severity,
// path, and a Message containing msgSubstr.
func hasIssue(t *testing.T, issues []Issue, sev IssueSeverity, path, msgSubstr string) bool {
	t.Helper()
	for _, iss := range issues {
		if iss.Severity == sev && iss.Path == path && strings.Contains(iss.Message, msgSubstr) {
			return true
		}
	}
	return false
}

func validConvert() Convert {
	return Convert{
		Input:  Input{Path: "in.jsonl"},
		Output: Output{Path: "out.jcol"},
	}.Resolve()
}

func TestValidate_ValidMinimal(t *testing.T) {
	t.Setenv("METRICS_BACKEND", "")
	issues := Validate(validConvert())
	if len(issues) != 0 {
		t.Fatalf("expected no issues, got %+v", issues)
	}
	if HasErrors(issues) {
		t.Fatalf("HasErrors = true for clean config")
	}
}

func TestValidate_Cases(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Convert)
		sev    IssueSeverity
		path   string
		substr string
	}{
		{"missing job", func(c *Convert) { c.Job = " " }, SeverityError, "job", "required"},
		{"missing input", func(c *Convert) { c.Input.Path = "" }, SeverityError, "input.path", "required"},
		{"missing output", func(c *Convert) { c.Output.Path = "" }, SeverityError, "output.path", "required"},
		{"output overwrites input", func(c *Convert) { c.Output.Path = "./in.jsonl" }, SeverityError, "output.path", "overwrite"},
		{"url output", func(c *Convert) { c.Output.Path = "https://x/y.jcol" }, SeverityError, "output.path", "local"},
		{"bad codec", func(c *Convert) { c.Output.Codec = "lz4" }, SeverityError, "output.codec", "unknown codec"},
		{"negative chunk rows", func(c *Convert) { c.Output.ChunkRows = -1 }, SeverityError, "output.chunk_rows", "negative"},
		{"tiny chunks", func(c *Convert) { c.Output.ChunkRows = 8 }, SeverityWarning, "output.chunk_rows", "tiny"},
		{"negative max line", func(c *Convert) { c.Input.MaxLineBytes = -5 }, SeverityError, "input.max_line_bytes", "negative"},
		{"small max line", func(c *Convert) { c.Input.MaxLineBytes = 100 }, SeverityWarning, "input.max_line_bytes", "small"},
		{"negative retries", func(c *Convert) { c.Input.HTTPRetries = -1 }, SeverityError, "input.http_retries", "negative"},
		{"negative sample", func(c *Convert) { c.Infer.SampleLimit = -1 }, SeverityError, "infer.sample_limit", "negative"},
		{"bad mode", func(c *Convert) { c.Decode.Mode = "lenient" }, SeverityError, "decode.mode", "unknown decode mode"},
		{"strict with sampling", func(c *Convert) {
			c.Decode.Mode = "strict"
			c.Infer.SampleLimit = 10
		}, SeverityWarning, "decode.mode", "sampling"},
		{"negative row buffer", func(c *Convert) { c.Runtime.RowBuffer = -1 }, SeverityError, "runtime.row_buffer", "negative"},
		{"negative chunk queue", func(c *Convert) { c.Runtime.ChunkQueue = -1 }, SeverityError, "runtime.chunk_queue", "negative"},
		{"sequential with buffers", func(c *Convert) { c.Runtime.Sequential = true }, SeverityWarning, "runtime.sequential", "ignored"},
		{"unknown backend", func(c *Convert) { c.Metrics.Backend = "graphite" }, SeverityError, "metrics.backend", "unknown backend"},
		{"pushgateway without url", func(c *Convert) {
			c.Metrics.Backend = "pushgateway"
			c.Metrics.PushgatewayURL = ""
		}, SeverityError, "metrics.pushgateway_url", "needs a URL"},
		{"pushgateway bad url", func(c *Convert) {
			c.Metrics.Backend = "pushgateway"
			c.Metrics.PushgatewayURL = "not a url"
		}, SeverityError, "metrics.pushgateway_url", "invalid URL"},
		{"datadog without addr", func(c *Convert) {
			c.Metrics.Backend = "datadog"
			c.Metrics.DatadogAddr = ""
		}, SeverityWarning, "metrics.datadog_addr", "falls back"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validConvert()
			tt.mutate(&c)
			issues := Validate(c)
			if !hasIssue(t, issues, tt.sev, tt.path, tt.substr) {
				t.Fatalf("expected %s at %s containing %q; got %+v", tt.sev, tt.path, tt.substr, issues)
			}
			if got := HasErrors(issues); got != (tt.sev == SeverityError) {
				t.Fatalf("HasErrors = %v for %+v", got, issues)
			}
		})
	}
}

func TestIssue_Error(t *testing.T) {
	iss := Issue{Severity: SeverityError, Path: "output.codec", Message: "bad"}
	if got, want := iss.Error(), "error at output.codec: bad"; got != want {
		t.Fatalf("Error() = %q, want %q", got, want)
	}
}
