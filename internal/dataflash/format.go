package dataflash

import "strings"

const (
	// fmtTypeID is the reserved type id of schema-definition records.
	fmtTypeID = 128

	// Fixed field offsets of a schema-definition record, relative to the
	// sync marker: defined type id, declared record length, 4-byte name,
	// 16-byte format-code string, 64-byte comma-separated label string.
	fmtDefTypeOff = 3
	fmtLengthOff  = 4
	fmtNameOff    = 5
	fmtNameLen    = 4
	fmtCodesOff   = 9
	fmtCodesLen   = 16
	fmtLabelsOff  = 25
	fmtLabelsLen  = 64

	// fmtRecordLen is the total on-wire size of a schema-definition record.
	fmtRecordLen = fmtLabelsOff + fmtLabelsLen
)

// FormatDescriptor is the learned layout of one message type.
type FormatDescriptor struct {
	TypeID  byte
	Name    string
	Length  int // declared record length in bytes, including the header
	Formats []byte
	Labels  []string
}

// fieldCount is the number of fields the decoder walks. When a malformed
// schema record declares mismatched code/label counts, decoding
// under-iterates to the shorter of the two.
func (d FormatDescriptor) fieldCount() int {
	if len(d.Formats) < len(d.Labels) {
		return len(d.Formats)
	}
	return len(d.Labels)
}

// Registry maps message type id to its learned layout. It is built once per
// parse, before any data decoding, and read-only thereafter.
type Registry map[byte]FormatDescriptor

// LearnFormats runs the schema-learning pass: a full scan of the buffer
// collecting every schema-definition record. The pass completes before the
// decode pass begins, so a data record appearing before its schema
// definition in byte order is still decodable. Repeated definitions for the
// same type id overwrite earlier ones.
func LearnFormats(buf []byte) Registry {
	reg := make(Registry)
	sc := NewScanner(buf)
	for {
		off, ok := sc.Next()
		if !ok {
			break
		}
		if buf[off+2] != fmtTypeID {
			continue
		}
		if off+fmtRecordLen > len(buf) {
			continue // truncated schema record
		}
		desc := FormatDescriptor{
			TypeID:  buf[off+fmtDefTypeOff],
			Length:  int(buf[off+fmtLengthOff]),
			Name:    cString(buf[off+fmtNameOff : off+fmtNameOff+fmtNameLen]),
			Formats: []byte(cString(buf[off+fmtCodesOff : off+fmtCodesOff+fmtCodesLen])),
		}
		if labels := cString(buf[off+fmtLabelsOff : off+fmtLabelsOff+fmtLabelsLen]); labels != "" {
			desc.Labels = strings.Split(labels, ",")
		}
		reg[desc.TypeID] = desc
	}
	return reg
}

// cString reads a zero-terminated ASCII string up to the full width of b.
func cString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
