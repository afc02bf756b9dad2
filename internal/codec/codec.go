// Package codec holds the static DataFlash type-tag table: one entry per
// tag character, mapping to a byte width and a decode rule. Adding a tag is
// a table entry, not a new branch.
package codec

import (
	"encoding/binary"
	"math"
)

// Entry describes how one type-tag character is decoded. Width is the
// number of payload bytes the field occupies. Decode converts those bytes
// to a float64; it is nil for tags that only advance the cursor (fixed
// name/string fields).
type Entry struct {
	Width  int
	Decode func(b []byte) float64
}

func decodeInt8(b []byte) float64  { return float64(int8(b[0])) }
func decodeUint8(b []byte) float64 { return float64(b[0]) }

func decodeInt16(b []byte) float64  { return float64(int16(binary.LittleEndian.Uint16(b))) }
func decodeUint16(b []byte) float64 { return float64(binary.LittleEndian.Uint16(b)) }

func decodeInt32(b []byte) float64  { return float64(int32(binary.LittleEndian.Uint32(b))) }
func decodeUint32(b []byte) float64 { return float64(binary.LittleEndian.Uint32(b)) }

// 64-bit integers are narrowed to float64 so every decoded value has a
// uniform scalar shape downstream.
func decodeInt64(b []byte) float64  { return float64(int64(binary.LittleEndian.Uint64(b))) }
func decodeUint64(b []byte) float64 { return float64(binary.LittleEndian.Uint64(b)) }

func decodeFloat32(b []byte) float64 {
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b)))
}

func decodeFloat64(b []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(b))
}

// e/E carry fixed-point centi-units.
func decodeCenti(b []byte) float64  { return decodeInt32(b) / 100.0 }
func decodeCentiU(b []byte) float64 { return decodeUint32(b) / 100.0 }

var table = map[byte]Entry{
	'b': {Width: 1, Decode: decodeInt8},
	'B': {Width: 1, Decode: decodeUint8},
	'h': {Width: 2, Decode: decodeInt16},
	'H': {Width: 2, Decode: decodeUint16},
	'i': {Width: 4, Decode: decodeInt32},
	'I': {Width: 4, Decode: decodeUint32},
	'q': {Width: 8, Decode: decodeInt64},
	'Q': {Width: 8, Decode: decodeUint64},
	'f': {Width: 4, Decode: decodeFloat32},
	'd': {Width: 8, Decode: decodeFloat64},
	'e': {Width: 4, Decode: decodeCenti},
	'E': {Width: 4, Decode: decodeCentiU},

	// L is a plain int32; distinct from 'i' only semantically (lat/lon).
	'L': {Width: 4, Decode: decodeInt32},
	// M is an enum/flag byte.
	'M': {Width: 1, Decode: decodeUint8},

	// Fixed-length name/string fields: cursor advances, no value produced.
	'n': {Width: 4},
	'N': {Width: 16},
	'Z': {Width: 64},
}

// Lookup returns the codec entry for a tag character. A miss means an
// unknown tag: the caller skips the field with zero width, which
// desynchronizes the cursor for the rest of the record.
func Lookup(tag byte) (Entry, bool) {
	e, ok := table[tag]
	return e, ok
}
