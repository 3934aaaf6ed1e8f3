package schema

// Field is one observed key of a row together with the classified type of
// its value.
type Field struct {
	Name string
	Type Type
}

// Result is the outcome of the inference pass.
type Result struct {
	Schema       *Schema
	RowsExamined int64
	RowsSkipped  int64
	// Sampled is true when inference stopped at a sample limit, so columns or
	// type conflicts in later rows may be missing from Schema.
	Sampled bool
}

// Inferencer accumulates the unified schema from a stream of rows.
//
// For each observed row, unseen keys are appended in first-seen order with the
// type of their value; known keys are widened with Join. Widening is
// monotonic: a column type never moves down the lattice.
//
// The zero value is not usable; construct with NewInferencer.
type Inferencer struct {
	limit int64

	cols    []Column
	index   map[string]int
	present []int64 // rows in which the column held a non-null value
	stamp   []int64 // last row that touched the column, dedups repeated keys

	examined int64
	skipped  int64
	more     bool // input continued past the sample limit
}

// NewInferencer returns an Inferencer that examines at most sampleLimit rows.
// A sampleLimit <= 0 means every row is examined.
func NewInferencer(sampleLimit int) *Inferencer {
	if sampleLimit < 0 {
		sampleLimit = 0
	}
	return &Inferencer{
		limit: int64(sampleLimit),
		index: make(map[string]int),
	}
}

// Done reports whether the sample limit has been reached. An exhaustive
// Inferencer is never done; the caller stops at end of input.
func (in *Inferencer) Done() bool {
	return in.limit > 0 && in.examined >= in.limit
}

// Observe folds one row's fields into the schema. Repeated keys within a row
// are joined like any other occurrence.
func (in *Inferencer) Observe(fields []Field) {
	in.examined++
	row := in.examined

	for _, f := range fields {
		i, ok := in.index[f.Name]
		if !ok {
			i = len(in.cols)
			in.index[f.Name] = i
			in.cols = append(in.cols, Column{Name: f.Name, Type: f.Type})
			in.present = append(in.present, 0)
			in.stamp = append(in.stamp, 0)
		} else {
			in.cols[i].Type = Join(in.cols[i].Type, f.Type)
		}

		if f.Type != Null && in.stamp[i] != row {
			in.stamp[i] = row
			in.present[i]++
		}
	}
}

// Skip records a row that could not be parsed during inference.
func (in *Inferencer) Skip() { in.skipped++ }

// RowsExamined returns the number of rows folded in so far.
func (in *Inferencer) RowsExamined() int64 { return in.examined }

// MoreInput records that at least one line follows the last examined row.
// Callers report it after Done so that an input of exactly sampleLimit rows
// still counts as fully scanned.
func (in *Inferencer) MoreInput() { in.more = true }

// Result freezes the accumulated schema. Nullability is exact for an
// exhaustive scan; after sampling, every column is nullable because unseen
// rows may omit it.
func (in *Inferencer) Result() Result {
	sampled := in.Done() && in.more
	cols := make([]Column, len(in.cols))
	for i, c := range in.cols {
		c.Nullable = sampled || in.present[i] < in.examined
		cols[i] = c
	}
	s, err := New(cols)
	if err != nil {
		// Names are unique by construction of index.
		panic(err)
	}
	return Result{
		Schema:       s,
		RowsExamined: in.examined,
		RowsSkipped:  in.skipped,
		Sampled:      sampled,
	}
}
