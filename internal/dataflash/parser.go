// Package dataflash decodes self-describing binary flight-controller logs.
// Message layouts are themselves encoded as records in the stream, so
// parsing is two passes: learn every layout first, then decode data records
// against the completed registry.
package dataflash

import (
	"time"

	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/model"
	"github.com/skyfleet/flightlog/internal/table"
)

// DecodeStats summarizes one universal parse for metrics and diagnostics.
type DecodeStats struct {
	Formats          int
	RecordsDecoded   int64
	DroppedTruncated int64
	DroppedUnknown   int64
	Duration         time.Duration
}

// Parser is the universal two-pass decoder. It owns the buffer only for
// the duration of one Parse call and keeps no state between calls.
type Parser struct {
	log *zap.Logger
}

// NewParser returns a universal parser logging through log.
func NewParser(log *zap.Logger) *Parser {
	return &Parser{log: log}
}

// Parse decodes every registered message type in buf and returns the
// per-type columnar tables. The result is best-effort: truncated records,
// unknown type ids and undecodable fields are skipped locally and never
// fail the call.
func (p *Parser) Parse(buf []byte) (model.ParseResult, DecodeStats) {
	start := time.Now()

	reg := LearnFormats(buf)

	stats := DecodeStats{Formats: len(reg)}
	builders := make(map[byte]*table.Builder, len(reg))

	sc := NewScanner(buf)
	for {
		off, ok := sc.Next()
		if !ok {
			break
		}
		typeID := buf[off+2]
		desc, ok := reg[typeID]
		if !ok {
			// Schema records were consumed by the learn pass; they are
			// not dropped data. Anything else is a type id never defined
			// by a schema record, or an accidental marker inside payload
			// bytes. Skipped silently.
			if typeID != fmtTypeID {
				stats.DroppedUnknown++
			}
			continue
		}
		row, ok := decodeRecord(buf, off, desc)
		if !ok {
			stats.DroppedTruncated++
			continue
		}
		b := builders[desc.TypeID]
		if b == nil {
			b = table.NewBuilder()
			builders[desc.TypeID] = b
		}
		b.Append(row)
		stats.RecordsDecoded++
	}

	result := make(model.ParseResult, len(builders))
	for typeID, b := range builders {
		result[reg[typeID].Name] = b.Build()
	}

	stats.Duration = time.Since(start)
	p.log.Info("universal parse complete",
		zap.Int("formats", stats.Formats),
		zap.Int("messageTypes", len(result)),
		zap.Int64("records", stats.RecordsDecoded),
		zap.Int64("droppedTruncated", stats.DroppedTruncated),
		zap.Int64("droppedUnknown", stats.DroppedUnknown),
		zap.Duration("took", stats.Duration),
	)
	return result, stats
}
