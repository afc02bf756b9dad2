// Package mavlink is the telemetry-stream (.tlog) parser family. It shares
// the worker dispatch contract with the DataFlash decoder but not its
// schema-learning algorithm: MAVLink frames are length-prefixed and the
// message catalog is fixed by the dialect, so this parser only surveys the
// stream and reports per-message-id occurrence counts to the UI channel.
package mavlink

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/model"
)

const (
	magicV1 = 0xFE
	magicV2 = 0xFD

	// Frame overhead beyond the payload: v1 = STX+LEN+SEQ+SYS+COMP+ID+CRC16,
	// v2 adds INCOMPAT/COMPAT flags and a 3-byte id.
	overheadV1 = 8
	overheadV2 = 12
	sigLen     = 13 // optional v2 signature

	sigFlag = 0x01
)

// Parser scans a .tlog buffer frame by frame. Bad framing advances one byte
// at a time, the same corruption posture as the DataFlash scanner.
type Parser struct {
	ui     chan<- model.Update
	log    *zap.Logger
	counts map[uint32]int
}

// NewParser returns a tlog parser posting updates to ui.
func NewParser(ui chan<- model.Update, log *zap.Logger) *Parser {
	return &Parser{ui: ui, log: log}
}

// Parse surveys buf and announces the message ids present.
func (p *Parser) Parse(buf []byte) {
	p.counts = make(map[uint32]int)
	frames := 0

	i := 0
	for i < len(buf) {
		id, size, ok := frameAt(buf, i)
		if !ok {
			i++
			continue
		}
		p.counts[id]++
		frames++
		i += size
	}

	types := make([]string, 0, len(p.counts))
	for id := range p.counts {
		types = append(types, fmt.Sprintf("MAV_%d", id))
	}
	sort.Strings(types)

	p.log.Info("tlog survey complete",
		zap.Int("frames", frames),
		zap.Int("messageIds", len(p.counts)),
	)
	p.ui <- model.Update{Kind: model.UpdateTypes, Types: types, Done: true}
}

// LoadType reports that per-field decode is not available for this family.
func (p *Parser) LoadType(name string) {
	p.ui <- model.Update{
		Kind:        model.UpdateError,
		MessageType: name,
		Message:     "field decode not supported for MAVLink streams",
	}
}

// frameAt validates the frame starting at i and returns its message id and
// total size.
func frameAt(buf []byte, i int) (uint32, int, bool) {
	switch buf[i] {
	case magicV1:
		if i+overheadV1 > len(buf) {
			return 0, 0, false
		}
		size := int(buf[i+1]) + overheadV1
		if i+size > len(buf) {
			return 0, 0, false
		}
		return uint32(buf[i+5]), size, true
	case magicV2:
		if i+overheadV2 > len(buf) {
			return 0, 0, false
		}
		size := int(buf[i+1]) + overheadV2
		if buf[i+2]&sigFlag != 0 {
			size += sigLen
		}
		if i+size > len(buf) {
			return 0, 0, false
		}
		id := uint32(buf[i+7]) | uint32(buf[i+8])<<8 | uint32(buf[i+9])<<16
		return id, size, true
	}
	return 0, 0, false
}
