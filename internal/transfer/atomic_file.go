package transfer

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// DefaultFileMode is the mode of a newly created destination.
const DefaultFileMode os.FileMode = 0644

// AtomicFile collects chunks in a temporary sibling of the destination.
// Commit renames it into place; Abort discards it and leaves the destination
// untouched.
type AtomicFile struct {
	mu      sync.Mutex
	dest    string
	tmp     *os.File
	written int64
	closed  bool
}

func NewAtomicFile(dest string) (*AtomicFile, error) {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTempFileFailed, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(dest)+tempMarker+"*"+tempSuffix)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTempFileFailed, err)
	}
	return &AtomicFile{dest: dest, tmp: tmp}, nil
}

func (f *AtomicFile) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return 0, ErrSessionClosed
	}
	n, err := f.tmp.Write(p)
	f.written += int64(n)
	if err != nil {
		return n, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}
	return n, nil
}

func (f *AtomicFile) Written() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written
}

func (f *AtomicFile) TempPath() string {
	return f.tmp.Name()
}

// destMode keeps the permissions of the file being replaced. New files get
// DefaultFileMode.
func (f *AtomicFile) destMode() os.FileMode {
	if info, err := os.Stat(f.dest); err == nil && info.Mode().IsRegular() {
		return info.Mode().Perm()
	}
	return DefaultFileMode
}

// Commit flushes the temporary file and renames it over the destination. A
// positive mtime (unix seconds) is stamped on the result.
func (f *AtomicFile) Commit(mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return ErrSessionClosed
	}
	f.closed = true

	tmpPath := f.tmp.Name()
	if err := f.tmp.Chmod(f.destMode()); err != nil {
		f.tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if err := f.tmp.Sync(); err != nil {
		f.tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if err := f.tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	if mtime > 0 {
		t := time.Unix(mtime, 0)
		if err := os.Chtimes(tmpPath, t, t); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", ErrCommitFailed, err)
		}
	}
	if err := os.Rename(tmpPath, f.dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

// Abort discards the temporary file. Safe to call after Commit.
func (f *AtomicFile) Abort() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	f.tmp.Close()
	os.Remove(f.tmp.Name())
}
