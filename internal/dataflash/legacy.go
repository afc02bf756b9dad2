package dataflash

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/model"
	"github.com/skyfleet/flightlog/internal/table"
)

// legacyBatchRows is how many rows one incremental columns update carries.
const legacyBatchRows = 1000

// progressEveryHits is how many scanner hits pass between progress updates
// during the index scan. Small files finish before the first one.
const progressEveryHits = 50000

// LegacyParser is the per-type streaming decoder feeding the interactive UI
// channel. It scans the buffer once up front, learning schema records and
// indexing data-record offsets per type, announces the available types, and
// decodes one type on demand per LoadType call, emitting column batches
// incrementally. It owns its own registry and materializers, fully
// independent of the universal decoder running over the same buffer.
type LegacyParser struct {
	buf      []byte
	ui       chan<- model.Update
	log      *zap.Logger
	registry Registry
	offsets  map[byte][]int
	byName   map[string]byte
}

// NewLegacyParser returns a legacy parser posting updates to ui.
func NewLegacyParser(ui chan<- model.Update, log *zap.Logger) *LegacyParser {
	return &LegacyParser{ui: ui, log: log}
}

// Parse indexes buf and announces the message types present. Heavy decoding
// is deferred to LoadType so the UI gets its type list immediately. Long
// scans post periodic progress updates.
func (p *LegacyParser) Parse(buf []byte) {
	p.buf = buf
	p.registry = make(Registry)
	p.offsets = make(map[byte][]int)
	p.byName = make(map[string]byte)

	hits := 0
	sc := NewScanner(buf)
	for {
		off, ok := sc.Next()
		if !ok {
			break
		}
		hits++
		if hits%progressEveryHits == 0 {
			p.ui <- model.Update{
				Kind:    model.UpdateProgress,
				Percent: 100 * float64(off) / float64(len(buf)),
			}
		}
		typeID := buf[off+2]
		if typeID == fmtTypeID && off+fmtRecordLen <= len(buf) {
			desc := FormatDescriptor{
				TypeID:  buf[off+fmtDefTypeOff],
				Length:  int(buf[off+fmtLengthOff]),
				Name:    cString(buf[off+fmtNameOff : off+fmtNameOff+fmtNameLen]),
				Formats: []byte(cString(buf[off+fmtCodesOff : off+fmtCodesOff+fmtCodesLen])),
			}
			if labels := cString(buf[off+fmtLabelsOff : off+fmtLabelsOff+fmtLabelsLen]); labels != "" {
				desc.Labels = strings.Split(labels, ",")
			}
			p.registry[desc.TypeID] = desc
			p.byName[desc.Name] = desc.TypeID
		}
		p.offsets[typeID] = append(p.offsets[typeID], off)
	}

	types := make([]string, 0, len(p.registry))
	for _, desc := range p.registry {
		if len(p.offsets[desc.TypeID]) > 0 {
			types = append(types, desc.Name)
		}
	}
	sort.Strings(types)

	p.log.Info("legacy index built",
		zap.Int("formats", len(p.registry)),
		zap.Int("types", len(types)),
	)
	p.ui <- model.Update{Kind: model.UpdateTypes, Types: types, Done: true}
}

// LoadType decodes every occurrence of the named message type and streams
// the columns to the UI channel in fixed-size batches. Unknown names emit a
// diagnostic update rather than an error.
func (p *LegacyParser) LoadType(name string) {
	typeID, ok := p.byName[name]
	if !ok {
		p.log.Warn("loadType for unknown message type", zap.String("type", name))
		p.ui <- model.Update{Kind: model.UpdateError, MessageType: name, Message: "unknown message type"}
		return
	}
	desc := p.registry[typeID]

	b := table.NewBuilder()
	for _, off := range p.offsets[typeID] {
		row, ok := decodeRecord(p.buf, off, desc)
		if !ok {
			continue
		}
		b.Append(row)
	}

	if b.Len() == 0 {
		p.ui <- model.Update{Kind: model.UpdateColumns, MessageType: name, Done: true}
		return
	}

	for from := 0; from < b.Len(); from += legacyBatchRows {
		to := from + legacyBatchRows
		if to > b.Len() {
			to = b.Len()
		}
		p.ui <- model.Update{
			Kind:        model.UpdateColumns,
			MessageType: name,
			Columns:     b.BuildRange(from, to),
			Offset:      from,
			Percent:     100 * float64(to) / float64(b.Len()),
			Done:        to == b.Len(),
		}
	}
}
