// Package storage persists captures and the sequence counter on the storage
// medium: a flat directory (typically the mounted SD card) with no subdirectories
// in scope. All access goes through an os.Root so names cannot escape it.
package storage

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var (
	// ErrStorageUnavailable means the medium is not mounted or an entry could not be opened or written.
	ErrStorageUnavailable = errors.New("storage: medium unavailable")

	// ErrNotFound means the requested entry is absent from the medium.
	ErrNotFound = errors.New("storage: not found")

	// ErrCorruptRecord means the counter record could not be parsed as a non-negative integer.
	ErrCorruptRecord = errors.New("storage: corrupt counter record")

	// ErrReservedName is returned when a caller tries to write over a record the store manages itself.
	ErrReservedName = errors.New("storage: reserved name")
)

// Medium is an opened storage root.
type Medium struct {
	dir  string
	root *os.Root
}

// OpenMedium opens dir as the storage root. The directory must already exist:
// a missing mount point is reported as ErrStorageUnavailable, never created.
func OpenMedium(dir string) (*Medium, error) {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return &Medium{dir: dir, root: root}, nil
}

// Dir returns the directory the medium was opened from.
func (m *Medium) Dir() string { return m.dir }

// Close releases the root handle.
func (m *Medium) Close() error { return m.root.Close() }

// entryName normalizes a caller-supplied name to a root-relative entry name.
// A leading separator is accepted ("/picture0.jpg"); anything that would
// address a subdirectory or the root itself is rejected, as is NUL.
func entryName(name string) (string, bool) {
	n := strings.TrimLeft(name, "/")
	if n == "" || n == "." || n == ".." || strings.ContainsAny(n, "/\\\x00") {
		return "", false
	}
	return n, true
}
