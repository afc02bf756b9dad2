package dataflash

import "github.com/skyfleet/flightlog/internal/codec"

// decodeRecord decodes one occurrence of a data message at off, where the
// scanner found a header matching desc.TypeID. It returns false when the
// declared record length would exceed the buffer: a truncated record is
// discarded whole. Individual field failures never discard the record; the
// bad field is omitted and decoding continues with its siblings.
func decodeRecord(buf []byte, off int, desc FormatDescriptor) (map[string]float64, bool) {
	if off+desc.Length > len(buf) {
		return nil, false
	}

	row := make(map[string]float64, desc.fieldCount())
	cursor := off + headerLen
	n := desc.fieldCount()
	for i := 0; i < n; i++ {
		entry, ok := codec.Lookup(desc.Formats[i])
		if !ok {
			// Unknown tag: zero-width skip. The cursor is now desynced for
			// the remaining fields, but they are still attempted.
			continue
		}
		if cursor+entry.Width > len(buf) {
			// A desynced cursor can run past the buffer; drop the field.
			continue
		}
		if entry.Decode != nil {
			row[desc.Labels[i]] = entry.Decode(buf[cursor : cursor+entry.Width])
		}
		cursor += entry.Width
	}
	return row, true
}
