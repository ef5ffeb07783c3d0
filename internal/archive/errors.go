package archive

import "errors"

var (
	// ErrDuplicateEntry is returned when a path is added twice to one archive.
	ErrDuplicateEntry = errors.New("archive: duplicate entry path")

	// ErrInvalidPath is returned for empty or absolute entry paths.
	ErrInvalidPath = errors.New("archive: invalid entry path")

	// ErrTooLarge is returned when the archive would need ZIP64 records.
	ErrTooLarge = errors.New("archive: archive exceeds 32-bit container limits")

	// ErrClosed is returned when writing to a closed Writer.
	ErrClosed = errors.New("archive: writer closed")

	// ErrFormat is returned by ReadEntries for malformed input.
	ErrFormat = errors.New("archive: malformed container")
)
