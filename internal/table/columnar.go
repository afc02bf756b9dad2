// Package table materializes decoded rows into the rectangular,
// column-major tables handed across the worker boundary.
package table

import "github.com/skyfleet/flightlog/internal/model"

// Builder accumulates the ordered row list for one message type and
// converts it to a ColumnarTable. Columns cover the union of every key that
// actually appeared in any row, not just the declared labels: tolerant
// decoding means emitted keys can be a subset of the schema.
type Builder struct {
	rows []map[string]float64
	keys []string
	seen map[string]struct{}
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{seen: make(map[string]struct{})}
}

// Append adds one decoded row. The row is retained as-is; callers must not
// mutate it afterwards.
func (b *Builder) Append(row map[string]float64) {
	b.rows = append(b.rows, row)
	for k := range row {
		if _, ok := b.seen[k]; !ok {
			b.seen[k] = struct{}{}
			b.keys = append(b.keys, k)
		}
	}
}

// Len returns the number of rows accumulated so far.
func (b *Builder) Len() int {
	return len(b.rows)
}

// Build converts the accumulated rows to a rectangular table: every column
// has exactly one slot per row, nil where the key was absent in that row.
func (b *Builder) Build() model.ColumnarTable {
	t := make(model.ColumnarTable, len(b.keys))
	for _, k := range b.keys {
		col := make([]*float64, len(b.rows))
		for i, row := range b.rows {
			if v, ok := row[k]; ok {
				v := v
				col[i] = &v
			}
		}
		t[k] = col
	}
	return t
}

// BuildRange materializes rows [from, to) only, for incremental emission.
func (b *Builder) BuildRange(from, to int) model.ColumnarTable {
	if from < 0 {
		from = 0
	}
	if to > len(b.rows) {
		to = len(b.rows)
	}
	t := make(model.ColumnarTable, len(b.keys))
	for _, k := range b.keys {
		col := make([]*float64, 0, to-from)
		for i := from; i < to; i++ {
			if v, ok := b.rows[i][k]; ok {
				v := v
				col = append(col, &v)
			} else {
				col = append(col, nil)
			}
		}
		t[k] = col
	}
	return t
}
