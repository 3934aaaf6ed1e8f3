// Command jsonl2col converts a JSONL file into a chunked, column-major,
// compressed artifact with a self-describing footer.
//
// Usage:
//
//	jsonl2col [flags] <input> <output>
//	jsonl2col --emit-ddl postgres [flags] <input>
//
// The input may be a local path or an http(s) URL; gzip and zstd input is
// detected and decoded transparently.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/pflag"

	"jsonl2col/internal/config"
	"jsonl2col/internal/ddl"
	"jsonl2col/internal/errs"
	"jsonl2col/internal/metrics"
	"jsonl2col/internal/metrics/datadog"
	"jsonl2col/internal/metrics/prompush"
	"jsonl2col/internal/pipeline"
)

const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// options holds flag values that are not part of config.Convert.
type options struct {
	configPath string
	validate   bool
	emitDDL    string
	table      string
}

// run is main without process globals so it can be tested.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log.SetOutput(stderr)

	fs := pflag.NewFlagSet("jsonl2col", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: jsonl2col [flags] <input> <output>\n\n")
		fs.PrintDefaults()
	}

	var (
		opt  options
		over config.Convert
	)
	fs.StringVar(&opt.configPath, "config", "", "JSON config file; flags override its values")
	fs.BoolVar(&opt.validate, "validate", false, "validate the configuration and exit")
	fs.StringVar(&opt.emitDDL, "emit-ddl", "", "print CREATE TABLE for the inferred schema (generic|postgres) and exit")
	fs.StringVar(&opt.table, "table", "", "table name for --emit-ddl (default: input file stem)")

	fs.StringVar(&over.Job, "job", "", "job name for logs and metrics")
	fs.IntVar(&over.Infer.SampleLimit, "infer-length", 0, "rows to sample for schema inference (0 = scan all)")
	fs.StringVar(&over.Decode.Mode, "mode", "", "decode mode: strict|coerce (default strict, coerce when sampling)")
	fs.StringVar(&over.Output.Codec, "codec", "", "chunk compression: none|zstd|s2|gzip (default zstd)")
	fs.IntVar(&over.Output.ChunkRows, "chunk-rows", 0, "rows per chunk (default 65536)")
	fs.IntVar(&over.Input.MaxLineBytes, "max-line-bytes", 0, "maximum bytes in one input line (default 64MiB)")
	fs.BoolVar(&over.Input.NormalizeKeys, "normalize-keys", false, "fold keys to Unicode NFC")
	fs.BoolVar(&over.Runtime.Sequential, "sequential", false, "run the convert pass on one goroutine")
	fs.IntVar(&over.Runtime.RowBuffer, "row-buffer", 0, "decoded-row channel capacity (default 4096)")
	fs.StringVar(&over.Metrics.Backend, "metrics-backend", "", "metrics backend: none|pushgateway|datadog")
	fs.StringVar(&over.Metrics.PushgatewayURL, "pushgateway-url", "", "Pushgateway base URL")
	fs.StringVar(&over.Metrics.DatadogAddr, "datadog-addr", "", "DogStatsD address (host:port)")
	fs.BoolVarP(&over.Runtime.Verbose, "verbose", "v", false, "enable verbose logs")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		fs.Usage()
		return exitUsage
	}

	cfg := config.Convert{}
	if opt.configPath != "" {
		c, err := config.Load(opt.configPath)
		if err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitError
		}
		cfg = c
	}
	applyFlags(fs, &cfg, over)

	pos := fs.Args()
	switch {
	case len(pos) > 2:
		fs.Usage()
		return exitUsage
	case len(pos) >= 1:
		cfg.Input.Path = pos[0]
		if len(pos) == 2 {
			cfg.Output.Path = pos[1]
		}
	}
	if cfg.Input.Path == "" || (cfg.Output.Path == "" && opt.emitDDL == "") {
		fs.Usage()
		return exitUsage
	}

	cfg = cfg.Resolve()
	issues := config.Validate(cfg)
	hasError := false
	for _, iss := range issues {
		if opt.emitDDL != "" && iss.Path == "output.path" {
			continue
		}
		fmt.Fprintf(stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
		if iss.Severity == config.SeverityError {
			hasError = true
		}
	}
	if hasError {
		log.Printf("configuration is invalid")
		return exitError
	}
	if opt.validate {
		log.Printf("configuration is valid")
		return exitOK
	}

	if opt.emitDDL != "" {
		if err := emitDDL(ctx, cfg, opt, stdout); err != nil {
			fmt.Fprintf(stderr, "error: %v\n", err)
			return exitError
		}
		return exitOK
	}

	flush := setupMetrics(cfg)
	defer flush()

	res, err := pipeline.Run(ctx, cfg)
	if err != nil {
		log.Printf("run failed: kind=%s", errs.Kind(err))
		fmt.Fprintf(stderr, "error: %v\n", err)
		return exitError
	}
	fmt.Fprintf(stdout, "wrote %d rows in %d chunks (%d bytes, %d columns) to %s\n",
		res.RowsWritten, res.Chunks, res.Bytes, res.Infer.Schema.Len(), cfg.Output.Path)
	return exitOK
}

// applyFlags copies flags the user set explicitly over cfg, so a config file
// value survives unless a flag overrides it.
func applyFlags(fs *pflag.FlagSet, cfg *config.Convert, f config.Convert) {
	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("job", func() { cfg.Job = f.Job })
	set("infer-length", func() { cfg.Infer.SampleLimit = f.Infer.SampleLimit })
	set("mode", func() { cfg.Decode.Mode = f.Decode.Mode })
	set("codec", func() { cfg.Output.Codec = f.Output.Codec })
	set("chunk-rows", func() { cfg.Output.ChunkRows = f.Output.ChunkRows })
	set("max-line-bytes", func() { cfg.Input.MaxLineBytes = f.Input.MaxLineBytes })
	set("normalize-keys", func() { cfg.Input.NormalizeKeys = f.Input.NormalizeKeys })
	set("sequential", func() { cfg.Runtime.Sequential = f.Runtime.Sequential })
	set("row-buffer", func() { cfg.Runtime.RowBuffer = f.Runtime.RowBuffer })
	set("metrics-backend", func() { cfg.Metrics.Backend = f.Metrics.Backend })
	set("pushgateway-url", func() { cfg.Metrics.PushgatewayURL = f.Metrics.PushgatewayURL })
	set("datadog-addr", func() { cfg.Metrics.DatadogAddr = f.Metrics.DatadogAddr })
	set("verbose", func() { cfg.Runtime.Verbose = f.Runtime.Verbose })
}

func emitDDL(ctx context.Context, cfg config.Convert, opt options, w io.Writer) error {
	d, err := ddl.ParseDialect(opt.emitDDL)
	if err != nil {
		return err
	}
	table := opt.table
	if table == "" {
		table = tableFromPath(cfg.Input.Path)
	}

	res, err := pipeline.Infer(ctx, cfg)
	if err != nil {
		return err
	}
	def, err := ddl.FromSchema(table, res.Schema, d)
	if err != nil {
		return err
	}
	sql, err := ddl.Render(def, d)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, sql)
	return err
}

// tableFromPath derives a table name from the input's base name without any
// extensions ("data/events.jsonl.gz" -> "events").
func tableFromPath(p string) string {
	base := filepath.Base(strings.TrimRight(p, "/"))
	if i := strings.IndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}

// setupMetrics installs the configured backend and returns a function that
// flushes it.
func setupMetrics(cfg config.Convert) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch strings.ToLower(cfg.Metrics.Backend) {
	case "pushgateway", "prom", "prometheus":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
	case "datadog", "dogstatsd":
		addr := cfg.Metrics.DatadogAddr
		if addr == "" {
			addr = "127.0.0.1:8125"
		}
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       addr,
			Namespace:  "jsonl2col.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
	default:
		if cfg.Runtime.Verbose {
			log.Printf("metrics: disabled (backend=%q)", cfg.Metrics.Backend)
		}
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: failed to init %s backend: %v; using nop", cfg.Metrics.Backend, err)
		return func() {}
	}

	log.Printf("metrics: backend=%s job=%s", cfg.Metrics.Backend, cfg.Job)
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
