// Package capture provides bounded in-memory sinks for child process output.
package capture

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
)

// DefaultMaxMemory is the in-memory threshold before output spills to disk.
const DefaultMaxMemory = 64 * 1024

// SpoolBuffer keeps output in memory up to a threshold, then moves it to a
// temporary file and keeps appending there. A noisy or hung child can
// therefore never grow the runner's heap without bound.
type SpoolBuffer struct {
	mu        sync.Mutex
	maxMemory int
	dir       string
	mem       bytes.Buffer
	file      *os.File
	size      int64
	closed    bool
}

// NewSpoolBuffer creates a buffer that spills to a temp file in dir (the
// default temp dir when empty) once more than maxMemory bytes are written.
func NewSpoolBuffer(maxMemory int, dir string) *SpoolBuffer {
	if maxMemory <= 0 {
		maxMemory = DefaultMaxMemory
	}
	return &SpoolBuffer{maxMemory: maxMemory, dir: dir}
}

// Write implements io.Writer.
func (b *SpoolBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, os.ErrClosed
	}

	if b.file == nil && b.mem.Len()+len(p) > b.maxMemory {
		if err := b.spill(); err != nil {
			return 0, err
		}
	}

	var n int
	var err error
	if b.file != nil {
		n, err = b.file.Write(p)
	} else {
		n, err = b.mem.Write(p)
	}
	b.size += int64(n)
	return n, err
}

// spill moves the in-memory content into a fresh temp file.
func (b *SpoolBuffer) spill() error {
	f, err := os.CreateTemp(b.dir, "testrunner-spool-*")
	if err != nil {
		return fmt.Errorf("failed to create spool file: %w", err)
	}
	if _, err := f.Write(b.mem.Bytes()); err != nil {
		f.Close()
		os.Remove(f.Name())
		return fmt.Errorf("failed to spill output: %w", err)
	}
	b.mem.Reset()
	b.file = f
	return nil
}

// Len returns the number of bytes written so far.
func (b *SpoolBuffer) Len() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Spilled reports whether the content has moved to disk.
func (b *SpoolBuffer) Spilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file != nil
}

// String returns everything written so far.
func (b *SpoolBuffer) String() string {
	var sb bytes.Buffer
	_ = b.CopyTo(&sb)
	return sb.String()
}

// CopyTo copies the whole content to w.
func (b *SpoolBuffer) CopyTo(w io.Writer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file == nil {
		_, err := w.Write(b.mem.Bytes())
		return err
	}

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	_, err := io.Copy(w, b.file)
	// Restore the append position for later writes.
	if _, serr := b.file.Seek(0, io.SeekEnd); serr != nil && err == nil {
		err = serr
	}
	return err
}

// Close releases the spill file, if any.
func (b *SpoolBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.mem.Reset()
	if b.file == nil {
		return nil
	}
	name := b.file.Name()
	err := b.file.Close()
	if rerr := os.Remove(name); rerr != nil && err == nil {
		err = rerr
	}
	b.file = nil
	return err
}
