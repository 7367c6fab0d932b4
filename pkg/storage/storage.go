package storage

import (
	"errors"
	"io"
	"strings"
)

var (
	// ErrNotFound is returned by OpenForRead when the file does not exist.
	ErrNotFound = errors.New("file not found")
	// ErrInvalidFilename is returned for names that could escape the storage root.
	ErrInvalidFilename = errors.New("invalid filename")
	// ErrBusy is returned when another transfer is already writing the same file.
	ErrBusy = errors.New("file is busy")
)

// Source is a readable file opened for a download.
type Source interface {
	io.ReadCloser
	// Size is the length in bytes, or -1 when unknown.
	Size() int64
}

// Sink is a writable file opened for an upload. Nothing is visible under the
// final name until Commit; Abort discards everything written so far.
type Sink interface {
	io.Writer
	Commit() error
	Abort() error
}

// Backend is the byte source/sink the transfer engine reads and writes against.
type Backend interface {
	OpenForRead(name string) (Source, error)
	OpenForWrite(name string) (Sink, error)
}

// SanitizeName accepts a single plain filename component and rejects anything
// that could address a path outside the storage root.
func SanitizeName(name string) (string, error) {
	switch {
	case name == "", name == ".", name == "..":
		return "", ErrInvalidFilename
	case strings.ContainsAny(name, "/\\\x00"):
		return "", ErrInvalidFilename
	case strings.Contains(name, ".."):
		return "", ErrInvalidFilename
	case len(name) >= 2 && name[1] == ':':
		// drive-qualified names such as C:boot.ini
		return "", ErrInvalidFilename
	case strings.HasPrefix(name, "."):
		// hidden names are reserved for in-flight uploads and lock files
		return "", ErrInvalidFilename
	}
	return name, nil
}
