package pipeline

import (
	"context"
	"io"

	"jsonl2col/internal/config"
	"jsonl2col/internal/datasource"
	"jsonl2col/internal/parser/jsonl"
	"jsonl2col/internal/schema"
)

// ctxCheckEvery is how many lines pass between context checks.
const ctxCheckEvery = 4096

// infer is pass 1. Lines that fail to parse are counted and summarized but do
// not stop inference; read failures do.
func infer(ctx context.Context, src datasource.Source, cfg config.Convert, stats *counters) (schema.Result, datasource.Compression, error) {
	rc, comp, err := datasource.OpenDecoded(ctx, src)
	if err != nil {
		return schema.Result{}, comp, err
	}
	defer rc.Close()

	rd := jsonl.NewReader(rc, src.Name(), cfg.Input.MaxLineBytes)
	sc := jsonl.NewScanner(cfg.Input.NormalizeKeys)
	inf := schema.NewInferencer(cfg.Infer.SampleLimit)
	skipAgg := newErrAgg(cfg.Runtime.ErrorSamples)

	var fields []schema.Field
	for n := 0; !inf.Done(); n++ {
		if n%ctxCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return schema.Result{}, comp, err
			}
		}
		ln, err := rd.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return schema.Result{}, comp, err
		}

		fs, err := sc.ScanLine(ln)
		if err != nil {
			inf.Skip()
			stats.skipped.Add(1)
			skipAgg.add(err.Error())
			continue
		}
		fields = fields[:0]
		for i := range fs {
			fields = append(fields, schema.Field{Name: fs[i].Key, Type: fs[i].Type})
		}
		inf.Observe(fields)
		stats.examined.Add(1)
	}

	if inf.Done() {
		// Peek one line: only input left unexamined makes this a sample.
		switch _, err := rd.Next(); {
		case err == nil:
			inf.MoreInput()
		case err != io.EOF:
			return schema.Result{}, comp, err
		}
	}

	stats.lines.Store(int64(rd.LinesRead()))
	skipAgg.log("infer: skipped rows")
	return inf.Result(), comp, nil
}
