package archive

import (
	"encoding/binary"
	"fmt"
)

// ReadEntries walks the local file headers of a stored archive and
// returns its entries in file order. Compressed entries and data
// descriptors are not supported.
func ReadEntries(data []byte) ([]Entry, error) {
	le := binary.LittleEndian
	var entries []Entry
	pos := 0
	for pos+4 <= len(data) {
		sig := le.Uint32(data[pos:])
		if sig == centralHeaderSig || sig == endRecordSig {
			return entries, nil
		}
		if sig != localHeaderSig {
			return nil, fmt.Errorf("%w: bad signature %#x at offset %d", ErrFormat, sig, pos)
		}
		if pos+localHeaderLen > len(data) {
			return nil, fmt.Errorf("%w: truncated header at offset %d", ErrFormat, pos)
		}
		h := data[pos : pos+localHeaderLen]
		method := le.Uint16(h[8:])
		crc := le.Uint32(h[14:])
		csize := int(le.Uint32(h[18:]))
		usize := int(le.Uint32(h[22:]))
		nameLen := int(le.Uint16(h[26:]))
		extraLen := int(le.Uint16(h[28:]))
		if method != methodNone || csize != usize {
			return nil, fmt.Errorf("%w: entry at offset %d is compressed", ErrFormat, pos)
		}
		start := pos + localHeaderLen + nameLen + extraLen
		end := start + csize
		if end > len(data) {
			return nil, fmt.Errorf("%w: truncated entry at offset %d", ErrFormat, pos)
		}
		name := string(data[pos+localHeaderLen : pos+localHeaderLen+nameLen])
		body := data[start:end]
		if CRC32(body) != crc {
			return nil, fmt.Errorf("%w: crc mismatch for %s", ErrFormat, name)
		}
		entries = append(entries, Entry{Path: name, Data: append([]byte(nil), body...)})
		pos = end
	}
	return nil, fmt.Errorf("%w: missing central directory", ErrFormat)
}
