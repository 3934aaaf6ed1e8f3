// Command colinspect prints the footer of a jsonl2col artifact, verifies its
// checksums, and dumps its rows back to JSONL.
//
// Usage:
//
//	colinspect [--verify] [--rows [--omit-nulls]] [--footer] <file>
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/goccy/go-json"
	"github.com/spf13/pflag"

	"jsonl2col/internal/colfile"
	"jsonl2col/internal/schema"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("colinspect", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	verify := fs.Bool("verify", false, "decode every chunk and check checksums")
	rows := fs.Bool("rows", false, "dump rows as JSONL instead of the summary")
	omitNulls := fs.Bool("omit-nulls", false, "with --rows, leave out null fields")
	footer := fs.Bool("footer", false, "print the raw footer as JSON")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: colinspect [--verify] [--rows [--omit-nulls]] [--footer] <file>")
		return 2
	}

	r, err := colfile.Open(fs.Arg(0))
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer r.Close()

	out := bufio.NewWriter(stdout)
	defer out.Flush()

	switch {
	case *rows:
		err = dumpRows(out, r, *omitNulls)
	case *footer:
		var b []byte
		b, err = json.MarshalIndent(r.Footer(), "", "  ")
		if err == nil {
			_, err = fmt.Fprintf(out, "%s\n", b)
		}
	default:
		err = printSummary(out, r)
	}
	if err == nil && *verify {
		if err = r.Verify(); err == nil {
			fmt.Fprintf(out, "verify: ok (%d chunks)\n", r.NumChunks())
		}
	}
	if err != nil {
		out.Flush()
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

func printSummary(w io.Writer, r *colfile.Reader) error {
	f := r.Footer()
	fmt.Fprintf(w, "version=%d created_by=%s codec=%s mode=%s\n", f.Version, f.CreatedBy, f.Codec, f.Mode)
	fmt.Fprintf(w, "rows=%d chunks=%d examined=%d skipped=%d sampled=%v\n\n",
		f.TotalRows, len(f.Chunks), f.RowsExamined, f.RowsSkipped, f.Sampled)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tCOLUMN\tTYPE\tNULLABLE\tNULLS")
	for i, c := range f.Schema {
		var nulls int64
		for _, m := range f.Chunks {
			if i < len(m.NullCounts) {
				nulls += m.NullCounts[i]
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%v\t%d\n", i, c.Name, c.Type, c.Nullable, nulls)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHUNK\tOFFSET\tLENGTH\tROWS\tXXH3")
	for i, m := range f.Chunks {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%016x\n", i, m.Offset, m.Length, m.Rows, m.XXH3)
	}
	return tw.Flush()
}

// dumpRows writes one JSON object per row with keys in schema order.
func dumpRows(w io.Writer, r *colfile.Reader, omitNulls bool) error {
	s := r.Schema()
	keys := make([][]byte, s.Len())
	for i, name := range s.Names() {
		k, err := json.Marshal(name)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	var buf []byte
	return r.Rows(func(row []schema.Value) error {
		buf = append(buf[:0], '{')
		first := true
		for i, v := range row {
			if omitNulls && v.IsNull() {
				continue
			}
			if !first {
				buf = append(buf, ',')
			}
			first = false
			buf = append(buf, keys[i]...)
			buf = append(buf, ':')
			buf = v.AppendJSON(buf)
		}
		buf = append(buf, '}', '\n')
		_, err := w.Write(buf)
		return err
	})
}
