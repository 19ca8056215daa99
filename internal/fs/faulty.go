package fs

import (
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrInjected is the error returned by FaultyFS when a fault fires.
var ErrInjected = errors.New("injected fault error")

// FaultyFS wraps a FileSystem and injects write failures. Tests use it to
// prove that a failed spill or block write aborts a histogram build without
// exposing partial state.
type FaultyFS struct {
	FS FileSystem

	mu         sync.Mutex
	limit      int64 // total bytes writable before failing, -1 disables
	written    int64
	failOnSync map[string]bool // filename substring -> fail Sync
}

// NewFaultyFS creates a FaultyFS wrapping fs (or Default if nil) with no
// faults armed.
func NewFaultyFS(fsys FileSystem) *FaultyFS {
	if fsys == nil {
		fsys = Default
	}
	return &FaultyFS{
		FS:         fsys,
		limit:      -1,
		failOnSync: make(map[string]bool),
	}
}

// SetWriteLimit arms a fault that fails any write once the total number of
// bytes written through this filesystem would exceed limit.
func (f *FaultyFS) SetWriteLimit(limit int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.limit = limit
}

// FailSync arms a fault that fails Sync on files whose name contains pattern.
func (f *FaultyFS) FailSync(pattern string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnSync[pattern] = true
}

func (f *FaultyFS) OpenFile(name string, flag int, perm os.FileMode) (File, error) {
	file, err := f.FS.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	failSync := false
	for pattern := range f.failOnSync {
		if strings.Contains(name, pattern) {
			failSync = true
		}
	}
	f.mu.Unlock()

	return &faultyFile{File: file, fs: f, failSync: failSync}, nil
}

func (f *FaultyFS) Remove(name string) error { return f.FS.Remove(name) }
func (f *FaultyFS) MkdirAll(path string, perm os.FileMode) error {
	return f.FS.MkdirAll(path, perm)
}
func (f *FaultyFS) Stat(name string) (os.FileInfo, error) { return f.FS.Stat(name) }

type faultyFile struct {
	File
	fs       *FaultyFS
	failSync bool
}

func (ff *faultyFile) Write(p []byte) (int, error) {
	ff.fs.mu.Lock()
	exceeded := ff.fs.limit >= 0 && ff.fs.written+int64(len(p)) > ff.fs.limit
	if !exceeded {
		ff.fs.written += int64(len(p))
	}
	ff.fs.mu.Unlock()

	if exceeded {
		return 0, ErrInjected
	}
	return ff.File.Write(p)
}

func (ff *faultyFile) Sync() error {
	if ff.failSync {
		return ErrInjected
	}
	return ff.File.Sync()
}
