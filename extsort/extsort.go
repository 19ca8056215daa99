// Package extsort implements a disk-backed merge sort over cursors.
//
// Records are buffered in memory up to a configurable run size, sorted, and
// spilled to zstd-compressed run files in a scratch directory; the sorted
// output cursor merges all runs with a binary heap. Inputs that fit into a
// single run never touch the disk.
package extsort

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/umr-dbs/selhist/cursor"
	"github.com/umr-dbs/selhist/internal/fs"
)

// Codec describes the fixed-width binary record format used for spill runs.
type Codec[T any] struct {
	// Size is the exact encoded record width in bytes.
	Size int

	// Append appends the encoding of v to dst.
	Append func(dst []byte, v T) []byte

	// Decode decodes one record from buf, which holds at least Size bytes.
	Decode func(buf []byte) (T, error)
}

// Options configures a Sorter.
type Options struct {
	// MaxInMemory is the maximum number of records held in memory per run.
	MaxInMemory int

	// TempPath is the scratch directory for spill files. Callers running
	// concurrent sorts must provide non-colliding directories.
	TempPath string

	// FS is the filesystem used for spill files.
	FS fs.FileSystem
}

// DefaultOptions contains the default configuration for a Sorter.
var DefaultOptions = Options{
	MaxInMemory: 1 << 17,
}

// Sorter sorts cursors of fixed-width records with bounded memory.
type Sorter[T any] struct {
	codec Codec[T]
	less  func(a, b T) bool
	opts  Options
}

// New creates a Sorter for the given record codec and ordering.
func New[T any](codec Codec[T], less func(a, b T) bool, optFns ...func(*Options)) (*Sorter[T], error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxInMemory < 2 {
		return nil, fmt.Errorf("extsort: MaxInMemory must be at least 2, got %d", opts.MaxInMemory)
	}
	if opts.TempPath == "" {
		opts.TempPath = os.TempDir()
	}
	if opts.FS == nil {
		opts.FS = fs.Default
	}
	if codec.Size <= 0 {
		return nil, fmt.Errorf("extsort: codec record size must be positive, got %d", codec.Size)
	}
	return &Sorter[T]{codec: codec, less: less, opts: opts}, nil
}

// Sort drains in and returns a cursor producing the same records in sorted
// order. The input cursor is closed before Sort returns. Any I/O error is
// fatal; runs already spilled are cleaned up on failure and when the
// returned cursor is closed.
func (s *Sorter[T]) Sort(in cursor.Cursor[T]) (cursor.Cursor[T], error) {
	defer in.Close()

	var (
		buf  = make([]T, 0, s.opts.MaxInMemory)
		runs []string
	)
	cleanup := func() {
		for _, name := range runs {
			_ = s.opts.FS.Remove(name)
		}
	}

	for {
		v, ok := in.Next()
		if !ok {
			break
		}
		buf = append(buf, v)
		if len(buf) == s.opts.MaxInMemory {
			name, err := s.spill(buf, len(runs))
			if err != nil {
				cleanup()
				return nil, err
			}
			runs = append(runs, name)
			buf = buf[:0]
		}
	}
	if err := in.Err(); err != nil {
		cleanup()
		return nil, fmt.Errorf("extsort: draining input: %w", err)
	}

	s.sortRun(buf)

	// Everything fit into one run: no disk involved.
	if len(runs) == 0 {
		return cursor.FromSlice(buf), nil
	}

	if len(buf) > 0 {
		name, err := s.spill(buf, len(runs))
		if err != nil {
			cleanup()
			return nil, err
		}
		runs = append(runs, name)
	}

	m, err := s.openMerge(runs)
	if err != nil {
		cleanup()
		return nil, err
	}
	return m, nil
}

func (s *Sorter[T]) sortRun(buf []T) {
	sort.SliceStable(buf, func(i, j int) bool { return s.less(buf[i], buf[j]) })
}

// spill writes one sorted run to a fresh zstd-compressed file and returns
// its name.
func (s *Sorter[T]) spill(buf []T, seq int) (string, error) {
	s.sortRun(buf)

	name := filepath.Join(s.opts.TempPath,
		fmt.Sprintf("selhist-%d-%d-run-%06d.spill", os.Getpid(), time.Now().UnixNano(), seq))

	f, err := s.opts.FS.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("extsort: creating spill run: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = f.Close()
		_ = s.opts.FS.Remove(name)
		return "", fmt.Errorf("extsort: creating compressor: %w", err)
	}

	w := bufio.NewWriter(enc)
	rec := make([]byte, 0, s.codec.Size)
	for i := range buf {
		rec = s.codec.Append(rec[:0], buf[i])
		if _, err := w.Write(rec); err != nil {
			_ = enc.Close()
			_ = f.Close()
			_ = s.opts.FS.Remove(name)
			return "", fmt.Errorf("extsort: writing spill run: %w", err)
		}
	}
	err = w.Flush()
	if err == nil {
		err = enc.Close()
		if err == nil {
			err = f.Sync()
		}
	} else {
		_ = enc.Close()
	}
	if err != nil {
		_ = f.Close()
		_ = s.opts.FS.Remove(name)
		return "", fmt.Errorf("extsort: finishing spill run: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.opts.FS.Remove(name)
		return "", fmt.Errorf("extsort: closing spill run: %w", err)
	}
	return name, nil
}

// runReader streams records back from one spill file.
type runReader[T any] struct {
	file  fs.File
	dec   *zstd.Decoder
	r     *bufio.Reader
	codec Codec[T]
	buf   []byte
}

func (s *Sorter[T]) openRun(name string) (*runReader[T], error) {
	f, err := s.opts.FS.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("extsort: opening spill run: %w", err)
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("extsort: creating decompressor: %w", err)
	}
	return &runReader[T]{
		file:  f,
		dec:   dec,
		r:     bufio.NewReader(dec),
		codec: s.codec,
		buf:   make([]byte, s.codec.Size),
	}, nil
}

// next returns the next record, or ok=false at clean end of run.
func (rr *runReader[T]) next() (T, bool, error) {
	var zero T
	if _, err := io.ReadFull(rr.r, rr.buf); err != nil {
		if errors.Is(err, io.EOF) {
			return zero, false, nil
		}
		return zero, false, fmt.Errorf("extsort: reading spill run: %w", err)
	}
	v, err := rr.codec.Decode(rr.buf)
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func (rr *runReader[T]) close() error {
	rr.dec.Close()
	return rr.file.Close()
}
