package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"hash/crc32"
	"io"
	"testing"
	"time"
)

var testTime = time.Date(2024, 3, 15, 10, 42, 18, 0, time.UTC)

func TestCRC32(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x61}},
		{"ascii", []byte("The quick brown fox jumps over the lazy dog")},
		{"binary", []byte{0x00, 0xff, 0x10, 0x80, 0x7f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CRC32(tt.input)
			if want := crc32.ChecksumIEEE(tt.input); got != want {
				t.Errorf("CRC32(%q) = %#08x; want %#08x", tt.input, got, want)
			}
			if again := CRC32(tt.input); again != got {
				t.Errorf("CRC32 not stable: %#08x then %#08x", got, again)
			}
		})
	}
	if CRC32(nil) != 0 {
		t.Fatalf("CRC32(nil) = %#x; want 0", CRC32(nil))
	}
	if CRC32([]byte("123456789")) != 0xCBF43926 {
		t.Fatalf("check value mismatch: %#08x", CRC32([]byte("123456789")))
	}
}

func TestBuildRoundTrip(t *testing.T) {
	entries := []Entry{
		{Path: "mimetype", Data: []byte("application/epub+zip")},
		{Path: "META-INF/container.xml", Data: []byte("<container/>")},
		{Path: "empty.txt", Data: nil},
		{Path: "OEBPS/images/image-1.png", Data: []byte{0x89, 'P', 'N', 'G', 0, 1, 2, 3}},
		{Path: "ünïcode/名前.txt", Data: []byte("utf-8 names")},
	}
	data, err := Build(entries, testTime)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	got, err := ReadEntries(data)
	if err != nil {
		t.Fatalf("ReadEntries() error = %v", err)
	}
	if len(got) != len(entries) {
		t.Fatalf("got %d entries; want %d", len(got), len(entries))
	}
	for i := range entries {
		if got[i].Path != entries[i].Path {
			t.Errorf("entry %d path = %q; want %q", i, got[i].Path, entries[i].Path)
		}
		if !bytes.Equal(got[i].Data, entries[i].Data) {
			t.Errorf("entry %d data = %q; want %q", i, got[i].Data, entries[i].Data)
		}
	}
}

func TestBuildReadableByStandardReader(t *testing.T) {
	entries := []Entry{
		{Path: "mimetype", Data: []byte("application/epub+zip")},
		{Path: "a/b.txt", Data: []byte("hello world")},
	}
	data, err := Build(entries, testTime)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("zip.NewReader() error = %v", err)
	}
	if len(zr.File) != len(entries) {
		t.Fatalf("central directory has %d files; want %d", len(zr.File), len(entries))
	}
	for i, f := range zr.File {
		if f.Name != entries[i].Path {
			t.Errorf("file %d = %q; want %q", i, f.Name, entries[i].Path)
		}
		if f.Method != zip.Store {
			t.Errorf("file %d method = %d; want stored", i, f.Method)
		}
		if f.Flags&flagUTF8 == 0 {
			t.Errorf("file %d missing UTF-8 flag", i)
		}
		if !f.Modified.Equal(testTime) {
			t.Errorf("file %d modified = %v; want %v", i, f.Modified, testTime)
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		body, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		if !bytes.Equal(body, entries[i].Data) {
			t.Errorf("file %d body = %q; want %q", i, body, entries[i].Data)
		}
	}
}

func TestFirstEntryLayout(t *testing.T) {
	data, err := Build([]Entry{{Path: "mimetype", Data: []byte("application/epub+zip")}}, testTime)
	if err != nil {
		t.Fatal(err)
	}
	// Readers sniff "mimetype" + content at fixed offsets 30 and 38.
	if string(data[30:38]) != "mimetype" {
		t.Fatalf("name at offset 30 = %q", data[30:38])
	}
	if string(data[38:58]) != "application/epub+zip" {
		t.Fatalf("content at offset 38 = %q", data[38:58])
	}
}

func TestWriterErrors(t *testing.T) {
	var buf bytes.Buffer
	zw := NewWriter(&buf, testTime)
	if err := zw.Add("a.txt", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Add("a.txt", []byte("2")); !errors.Is(err, ErrDuplicateEntry) {
		t.Errorf("duplicate add err = %v; want ErrDuplicateEntry", err)
	}
	if err := zw.Add("A.txt", []byte("3")); err != nil {
		t.Errorf("paths are case-sensitive, got %v", err)
	}
	if err := zw.Add("", nil); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("empty path err = %v; want ErrInvalidPath", err)
	}
	if err := zw.Add("/abs", nil); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("absolute path err = %v; want ErrInvalidPath", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := zw.Add("late.txt", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("add after close err = %v; want ErrClosed", err)
	}
}

func TestEmptyArchive(t *testing.T) {
	data, err := Build(nil, testTime)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != endRecordLen {
		t.Fatalf("empty archive is %d bytes; want %d", len(data), endRecordLen)
	}
	got, err := ReadEntries(data)
	if err != nil || len(got) != 0 {
		t.Fatalf("ReadEntries(empty) = %v, %v", got, err)
	}
}

func TestReadEntriesRejectsCorruption(t *testing.T) {
	data, err := Build([]Entry{{Path: "x", Data: []byte("payload")}}, testTime)
	if err != nil {
		t.Fatal(err)
	}
	corrupt := append([]byte(nil), data...)
	corrupt[localHeaderLen+1] ^= 0xff // flip a payload byte
	if _, err := ReadEntries(corrupt); !errors.Is(err, ErrFormat) {
		t.Errorf("crc corruption err = %v; want ErrFormat", err)
	}
	if _, err := ReadEntries([]byte("PK")); !errors.Is(err, ErrFormat) {
		t.Errorf("short input err = %v; want ErrFormat", err)
	}
}

func TestDOSDateTime(t *testing.T) {
	tests := []struct {
		name     string
		in       time.Time
		wantTime uint16
		wantDate uint16
	}{
		{"zero clamps", time.Time{}, 0, 1<<5 | 1},
		{"pre-1980 clamps", time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC), 0, 1<<5 | 1},
		{"regular", testTime, 10<<11 | 42<<5 | 9, 44<<9 | 3<<5 | 15},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotT, gotD := dosDateTime(tt.in)
			if gotT != tt.wantTime || gotD != tt.wantDate {
				t.Errorf("dosDateTime(%v) = %#x,%#x; want %#x,%#x", tt.in, gotT, gotD, tt.wantTime, tt.wantDate)
			}
		})
	}
}
