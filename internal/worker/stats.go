package worker

import (
	"sync"

	"github.com/skyfleet/flightlog/internal/dataflash"
	"github.com/skyfleet/flightlog/internal/model"
)

// Stats holds in-memory cumulative decode statistics. Nothing here is
// persisted: the counters describe the running process only.
type Stats struct {
	mu               sync.RWMutex
	filesParsed      int64
	recordsDecoded   int64
	droppedTruncated int64
	droppedUnknown   int64
	lastParseMillis  int64
	typeCounts       map[string]int64
}

// Snapshot is the JSON shape served by the stats endpoint.
type Snapshot struct {
	FilesParsed      int64            `json:"files_parsed"`
	RecordsDecoded   int64            `json:"records_decoded"`
	DroppedTruncated int64            `json:"dropped_truncated"`
	DroppedUnknown   int64            `json:"dropped_unknown_type"`
	LastParseMillis  int64            `json:"last_parse_ms"`
	MessageTypes     map[string]int64 `json:"message_types"`
}

// NewStats returns zeroed counters.
func NewStats() *Stats {
	return &Stats{typeCounts: make(map[string]int64)}
}

// RecordParse folds one universal parse into the counters.
func (s *Stats) RecordParse(result model.ParseResult, st dataflash.DecodeStats) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.filesParsed++
	s.recordsDecoded += st.RecordsDecoded
	s.droppedTruncated += st.DroppedTruncated
	s.droppedUnknown += st.DroppedUnknown
	s.lastParseMillis = st.Duration.Milliseconds()
	for name, tbl := range result {
		s.typeCounts[name] += int64(tbl.RowCount())
	}
}

// Snapshot returns a copy of the current counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make(map[string]int64, len(s.typeCounts))
	for k, v := range s.typeCounts {
		types[k] = v
	}
	return Snapshot{
		FilesParsed:      s.filesParsed,
		RecordsDecoded:   s.recordsDecoded,
		DroppedTruncated: s.droppedTruncated,
		DroppedUnknown:   s.droppedUnknown,
		LastParseMillis:  s.lastParseMillis,
		MessageTypes:     types,
	}
}
