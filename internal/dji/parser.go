// Package dji is the vendor log parser family. Like the MAVLink parser it
// honors the worker dispatch contract only: DJI DAT records are framed by a
// 0x55 start byte and a one-byte length, and this parser surveys record
// types without attempting field decode.
package dji

import (
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/skyfleet/flightlog/internal/model"
)

const (
	startByte = 0x55
	headerLen = 4 // start byte, length, protocol version, record type
)

// Parser surveys a DJI DAT buffer, counting records per type.
type Parser struct {
	ui     chan<- model.Update
	log    *zap.Logger
	counts map[byte]int
}

// NewParser returns a DJI parser posting updates to ui.
func NewParser(ui chan<- model.Update, log *zap.Logger) *Parser {
	return &Parser{ui: ui, log: log}
}

// Parse surveys buf and announces the record types present.
func (p *Parser) Parse(buf []byte) {
	p.counts = make(map[byte]int)
	records := 0

	i := 0
	for i+headerLen <= len(buf) {
		if buf[i] != startByte {
			i++
			continue
		}
		size := int(buf[i+1])
		if size < headerLen || i+size > len(buf) {
			i++
			continue
		}
		p.counts[buf[i+3]]++
		records++
		i += size
	}

	types := make([]string, 0, len(p.counts))
	for typ := range p.counts {
		types = append(types, fmt.Sprintf("DJI_%d", typ))
	}
	sort.Strings(types)

	p.log.Info("dji survey complete",
		zap.Int("records", records),
		zap.Int("recordTypes", len(p.counts)),
	)
	p.ui <- model.Update{Kind: model.UpdateTypes, Types: types, Done: true}
}

// LoadType reports that per-field decode is not available for this family.
func (p *Parser) LoadType(name string) {
	p.ui <- model.Update{
		Kind:        model.UpdateError,
		MessageType: name,
		Message:     "field decode not supported for DJI logs",
	}
}
