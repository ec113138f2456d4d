package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/cjeanneret/sdcam/internal/debug"
)

// maxRecordLen bounds how much of the counter record is read.
const maxRecordLen = 32

// Counter is the durable "next sequence number" record: a single text line
// holding a non-negative decimal integer followed by a newline.
//
// Read and Write are not atomic together. Callers serialize the
// read-then-advance sequence themselves.
type Counter struct {
	m    *Medium
	name string
}

// NewCounter returns a counter stored under name at the medium root.
func NewCounter(m *Medium, name string) *Counter {
	return &Counter{m: m, name: name}
}

// Reserved lists the entry names the counter occupies on the medium.
func (c *Counter) Reserved() []string {
	return []string{c.name, c.tmpName()}
}

func (c *Counter) tmpName() string { return c.name + ".tmp" }

// Init creates the record with value 0 if it does not exist yet.
// A leftover temp file from an interrupted write is discarded.
func (c *Counter) Init() error {
	_ = c.m.root.Remove(c.tmpName())

	info, err := c.m.root.Stat(c.name)
	if err == nil {
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%w: %s is not a regular file", ErrStorageUnavailable, c.name)
		}
		return nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: stat %s: %v", ErrStorageUnavailable, c.name, err)
	}
	debug.Info("Storage: creating counter record %s", c.name)
	return c.Write(0)
}

// Read returns the current value.
// An unparsable record yields 0 together with ErrCorruptRecord so the caller
// can decide to carry on from zero.
func (c *Counter) Read() (int, error) {
	f, err := c.m.root.Open(c.name)
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, c.name, err)
	}
	defer f.Close()

	line, err := bufio.NewReader(io.LimitReader(f, maxRecordLen+1)).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return 0, fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, c.name, err)
	}

	text := strings.TrimSpace(line)
	n, ok := parseRecord(text)
	if !ok || len(strings.TrimRight(line, "\r\n")) > maxRecordLen {
		debug.Warn("Storage: counter record %s holds %q, treating as 0", c.name, text)
		return 0, fmt.Errorf("%w: %q", ErrCorruptRecord, text)
	}
	debug.Verbose("Storage: counter = %d", n)
	return n, nil
}

// parseRecord accepts only unsigned decimal digits.
func parseRecord(text string) (int, bool) {
	if text == "" {
		return 0, false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Write replaces the record with v. The new value is written to a temp file,
// synced, then renamed over the record, so a torn write leaves the previous
// value in place.
func (c *Counter) Write(v int) error {
	if v < 0 {
		return fmt.Errorf("storage: negative counter value %d", v)
	}
	tmp := c.tmpName()

	f, err := c.m.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, tmp, err)
	}
	_, err = f.WriteString(strconv.Itoa(v) + "\n")
	if err == nil {
		err = f.Sync()
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = c.m.root.Remove(tmp)
		return fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, tmp, err)
	}

	if err := c.m.root.Rename(tmp, c.name); err != nil {
		_ = c.m.root.Remove(tmp)
		return fmt.Errorf("%w: commit %s: %v", ErrStorageUnavailable, c.name, err)
	}
	c.syncRoot()

	debug.Verbose("Storage: counter <- %d", v)
	return nil
}

// syncRoot flushes the directory entry after a rename. Best effort: some
// filesystems (FAT on SD cards) do not support syncing directories.
func (c *Counter) syncRoot() {
	d, err := c.m.root.Open(".")
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
