package model

// ColumnarTable holds every decoded occurrence of one message type in
// column-major form: field label -> one slot per occurrence. All columns
// of a table have equal length; a nil slot marks a field that was absent
// from that particular record (it marshals as JSON null).
type ColumnarTable map[string][]*float64

// RowCount returns the number of occurrences the table covers.
func (t ColumnarTable) RowCount() int {
	for _, col := range t {
		return len(col)
	}
	return 0
}

// ParseResult maps a message-type name (e.g. "ATT", "GPS") to its columnar
// table. This is the unit shipped across the worker boundary and posted to
// the remote analysis backend.
type ParseResult map[string]ColumnarTable

// Update kinds posted on the interactive UI channel.
const (
	UpdateTypes    = "types"    // available message types announced
	UpdateColumns  = "columns"  // a batch of decoded columns for one type
	UpdateProgress = "progress" // scan progress for long files
	UpdateError    = "error"    // non-fatal parser diagnostic
)

// Update is one incremental posting on the interactive UI channel. The
// legacy per-type decoder and the alternate parser families all emit this
// shape; the universal decoder never does (its output travels as a single
// ParseResult).
type Update struct {
	Kind        string        `json:"kind"`
	Types       []string      `json:"types,omitempty"`
	MessageType string        `json:"messageType,omitempty"`
	Columns     ColumnarTable `json:"columns,omitempty"`
	Offset      int           `json:"offset,omitempty"` // row offset of a columns batch
	Percent     float64       `json:"percent,omitempty"`
	Done        bool          `json:"done,omitempty"`
	Message     string        `json:"message,omitempty"`
}
