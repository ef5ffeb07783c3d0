// Package archive writes and reads uncompressed ZIP containers.
//
// Entries are always stored (method 0). The layout is the classic
// PKWARE one: a local file header immediately followed by the raw bytes
// for each entry, then one central directory record per entry and a
// single end-of-central-directory record. All integers are little-endian.
package archive

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

const (
	localHeaderSig   = 0x04034b50
	centralHeaderSig = 0x02014b50
	endRecordSig     = 0x06054b50

	localHeaderLen   = 30
	centralHeaderLen = 46
	endRecordLen     = 22

	zipVersion = 20
	flagUTF8   = 0x0800
	methodNone = 0
)

// Entry is one file inside an archive.
type Entry struct {
	Path string
	Data []byte
}

// Writer streams entries to w. Paths are unique and case-sensitive.
// A Writer is not safe for concurrent use.
type Writer struct {
	w       io.Writer
	central bytes.Buffer
	names   map[string]struct{}
	offset  uint64
	count   int
	dosTime uint16
	dosDate uint16
	closed  bool
}

// NewWriter returns a Writer stamping every entry with modified.
func NewWriter(w io.Writer, modified time.Time) *Writer {
	t, d := dosDateTime(modified)
	return &Writer{
		w:       w,
		names:   make(map[string]struct{}),
		dosTime: t,
		dosDate: d,
	}
}

// Add writes a stored entry.
func (zw *Writer) Add(path string, data []byte) error {
	if zw.closed {
		return ErrClosed
	}
	if path == "" || strings.HasPrefix(path, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if _, dup := zw.names[path]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateEntry, path)
	}
	if zw.count+1 > math.MaxUint16 || len(path) > math.MaxUint16 ||
		uint64(len(data)) > math.MaxUint32 || zw.offset > math.MaxUint32 {
		return ErrTooLarge
	}

	crc := CRC32(data)
	size := uint32(len(data))
	offset := uint32(zw.offset)

	var h [localHeaderLen]byte
	le := binary.LittleEndian
	le.PutUint32(h[0:], localHeaderSig)
	le.PutUint16(h[4:], zipVersion)
	le.PutUint16(h[6:], flagUTF8)
	le.PutUint16(h[8:], methodNone)
	le.PutUint16(h[10:], zw.dosTime)
	le.PutUint16(h[12:], zw.dosDate)
	le.PutUint32(h[14:], crc)
	le.PutUint32(h[18:], size)
	le.PutUint32(h[22:], size)
	le.PutUint16(h[26:], uint16(len(path)))
	le.PutUint16(h[28:], 0)

	if err := zw.write(h[:], []byte(path), data); err != nil {
		return err
	}

	var c [centralHeaderLen]byte
	le.PutUint32(c[0:], centralHeaderSig)
	le.PutUint16(c[4:], zipVersion)
	le.PutUint16(c[6:], zipVersion)
	le.PutUint16(c[8:], flagUTF8)
	le.PutUint16(c[10:], methodNone)
	le.PutUint16(c[12:], zw.dosTime)
	le.PutUint16(c[14:], zw.dosDate)
	le.PutUint32(c[16:], crc)
	le.PutUint32(c[20:], size)
	le.PutUint32(c[24:], size)
	le.PutUint16(c[28:], uint16(len(path)))
	// extra length, comment length, disk start, internal and external
	// attributes stay zero.
	le.PutUint32(c[42:], offset)
	zw.central.Write(c[:])
	zw.central.WriteString(path)

	zw.names[path] = struct{}{}
	zw.count++
	return nil
}

// Close writes the central directory and the end record. It does not
// close the underlying writer.
func (zw *Writer) Close() error {
	if zw.closed {
		return ErrClosed
	}
	zw.closed = true

	cdOffset := zw.offset
	cdSize := uint64(zw.central.Len())
	if cdOffset > math.MaxUint32 || cdOffset+cdSize > math.MaxUint32 {
		return ErrTooLarge
	}

	var e [endRecordLen]byte
	le := binary.LittleEndian
	le.PutUint32(e[0:], endRecordSig)
	le.PutUint16(e[8:], uint16(zw.count))
	le.PutUint16(e[10:], uint16(zw.count))
	le.PutUint32(e[12:], uint32(cdSize))
	le.PutUint32(e[16:], uint32(cdOffset))
	return zw.write(zw.central.Bytes(), e[:])
}

func (zw *Writer) write(parts ...[]byte) error {
	for _, p := range parts {
		n, err := zw.w.Write(p)
		zw.offset += uint64(n)
		if err != nil {
			return fmt.Errorf("archive: write: %w", err)
		}
	}
	return nil
}

// Build writes entries in order into a fresh in-memory archive.
func Build(entries []Entry, modified time.Time) ([]byte, error) {
	var buf bytes.Buffer
	zw := NewWriter(&buf, modified)
	for _, e := range entries {
		if err := zw.Add(e.Path, e.Data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// dosDateTime encodes t in MS-DOS format. Times before 1980 clamp to
// 1980-01-01 00:00:00, the earliest representable value.
func dosDateTime(t time.Time) (dosTime, dosDate uint16) {
	if t.IsZero() || t.Year() < 1980 {
		return 0, 1<<5 | 1
	}
	if t.Year() > 2107 {
		t = time.Date(2107, 12, 31, 23, 59, 58, 0, time.UTC)
	}
	dosTime = uint16(t.Hour()<<11 | t.Minute()<<5 | t.Second()/2)
	dosDate = uint16((t.Year()-1980)<<9 | int(t.Month())<<5 | t.Day())
	return dosTime, dosDate
}
