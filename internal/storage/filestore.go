package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"strings"
	"syscall"

	"github.com/cjeanneret/sdcam/internal/debug"
)

// listBatch is how many directory entries are read per ReadDir call.
const listBatch = 32

// Entry is one item at the medium root.
type Entry struct {
	Name    string
	Size    int64
	Regular bool
}

// File is an entry opened for reading.
type File struct {
	*os.File
	Size int64
}

// FileStore exposes enumerate/open/create/delete over the medium root.
// Reserved names (the counter record and its temp file) are invisible to callers.
type FileStore struct {
	m        *Medium
	reserved map[string]struct{}
}

// NewFileStore creates a store over m hiding the given reserved names.
func NewFileStore(m *Medium, reserved ...string) *FileStore {
	r := make(map[string]struct{}, len(reserved))
	for _, n := range reserved {
		r[strings.ToLower(n)] = struct{}{}
	}
	return &FileStore{m: m, reserved: r}
}

// isReserved matches case-insensitively: FAT media resolve "FILECOUNTER.TXT"
// to the same entry as "filecounter.txt".
func (s *FileStore) isReserved(name string) bool {
	_, ok := s.reserved[strings.ToLower(name)]
	return ok
}

// List enumerates the medium root lazily. Each call re-reads the directory,
// so iterating the returned sequence again starts from scratch.
// Directories are yielded with Regular=false; callers filter.
// If the root cannot be read, a single ErrStorageUnavailable is yielded.
func (s *FileStore) List() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		dir, err := s.m.root.Open(".")
		if err != nil {
			yield(Entry{}, fmt.Errorf("%w: open root: %v", ErrStorageUnavailable, err))
			return
		}
		defer dir.Close()

		for {
			entries, err := dir.ReadDir(listBatch)
			for _, e := range entries {
				if s.isReserved(e.Name()) {
					continue
				}
				entry := Entry{Name: e.Name(), Regular: e.Type().IsRegular()}
				if info, infoErr := e.Info(); infoErr == nil {
					entry.Size = info.Size()
				}
				if !yield(entry, nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Entry{}, fmt.Errorf("%w: read root: %v", ErrStorageUnavailable, err))
				return
			}
		}
	}
}

// Open opens an existing regular file for reading.
func (s *FileStore) Open(name string) (*File, error) {
	n, ok := entryName(name)
	if !ok || s.isReserved(n) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	// Symlinks are refused before opening so one pointing outside the root
	// reads as absent rather than as a medium failure.
	info, err := s.m.root.Lstat(n)
	if err != nil {
		return nil, classify(n, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %q is not a file", ErrNotFound, n)
	}

	f, err := s.m.root.Open(n)
	if err != nil {
		return nil, classify(n, err)
	}
	info, err = f.Stat()
	if err != nil {
		f.Close()
		return nil, classify(n, err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("%w: %q is not a file", ErrNotFound, n)
	}
	return &File{File: f, Size: info.Size()}, nil
}

// Create writes data under name, truncating any existing entry, and syncs it
// to the medium before returning.
func (s *FileStore) Create(name string, data []byte) error {
	n, ok := entryName(name)
	if !ok {
		return fmt.Errorf("%w: invalid name %q", ErrStorageUnavailable, name)
	}
	if s.isReserved(n) {
		return fmt.Errorf("%w: %q", ErrReservedName, n)
	}

	f, err := s.m.root.OpenFile(n, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, n, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, n, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %v", ErrStorageUnavailable, n, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", ErrStorageUnavailable, n, err)
	}
	return nil
}

// Delete removes a regular file. Directories and symlinks are reported as not found.
func (s *FileStore) Delete(name string) error {
	n, ok := entryName(name)
	if !ok || s.isReserved(n) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	info, err := s.m.root.Lstat(n)
	if err != nil {
		return classify(n, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %q is not a file", ErrNotFound, n)
	}
	if err := s.m.root.Remove(n); err != nil {
		return classify(n, err)
	}
	debug.Verbose("Storage: removed %s", n)
	return nil
}

// classify maps a filesystem error on name to the package taxonomy.
// Names the medium cannot represent (EINVAL on FAT, over-long names) are absent, not failures.
func classify(name string, err error) error {
	if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENAMETOOLONG) {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return fmt.Errorf("%w: %s: %v", ErrStorageUnavailable, name, err)
}
