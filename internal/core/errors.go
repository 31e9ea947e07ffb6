package core

import (
	"errors"
	"fmt"

	"github.com/JonMunkholm/dateprobe/internal/store"
)

// UnsupportedFormatError is returned for files whose extension is not csv, xlsx or xls.
type UnsupportedFormatError struct {
	Ext string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return "unsupported file type: no extension"
	}
	return fmt.Sprintf("unsupported file type: %s", e.Ext)
}

var (
	// ErrNoHeader is returned when a file has no header row at all.
	ErrNoHeader = errors.New("empty file: no header row")

	// ErrColumnNotFound is returned when a requested column is absent from the header.
	ErrColumnNotFound = errors.New("column not found")

	// ErrRecordNotFound is returned when a run is started for an unregistered file.
	ErrRecordNotFound = store.ErrNotFound

	// ErrFileNotFound is returned when an uploaded file is missing from disk.
	ErrFileNotFound = errors.New("file not found")

	// ErrInvalidFilename is returned for names that are empty or hidden once
	// reduced to their base name.
	ErrInvalidFilename = errors.New("invalid filename")
)

// IsUnsupportedFormat reports whether err is or wraps an *UnsupportedFormatError.
func IsUnsupportedFormat(err error) bool {
	var ufe *UnsupportedFormatError
	return errors.As(err, &ufe)
}
