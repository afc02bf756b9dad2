package dataflash

import "bytes"

// Record headers start with this 2-byte sync marker, followed by the
// message type id.
var syncMarker = []byte{0xA3, 0x95}

const (
	headerLen = 3 // marker (2) + type id (1)
)

// Scanner walks a raw log buffer and yields the offset of every candidate
// record header. Hits are not validated here: a marker occurring by accident
// inside payload bytes is filtered by the consumer (schema-record check or
// registry lookup). Scanning restarts after every hit at offset+1 rather
// than jumping by declared record length, so a corrupted or truncated
// record cannot hide a valid subsequent header.
type Scanner struct {
	buf []byte
	pos int
}

// NewScanner returns a scanner positioned at the start of buf. The buffer
// is borrowed and never mutated.
func NewScanner(buf []byte) *Scanner {
	return &Scanner{buf: buf}
}

// Next returns the offset of the next sync marker, or false when the
// buffer is exhausted. Only offsets with room for a full header qualify.
func (s *Scanner) Next() (int, bool) {
	for s.pos <= len(s.buf)-headerLen {
		i := bytes.Index(s.buf[s.pos:], syncMarker)
		if i < 0 {
			s.pos = len(s.buf)
			return 0, false
		}
		off := s.pos + i
		s.pos = off + 1
		if off+headerLen > len(s.buf) {
			return 0, false
		}
		return off, true
	}
	return 0, false
}

// Reset rewinds the scanner to the start of the buffer.
func (s *Scanner) Reset() {
	s.pos = 0
}
