package extsort

import (
	"encoding/binary"
	"math/rand"
	"os"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/selhist/cursor"
	"github.com/umr-dbs/selhist/internal/fs"
)

var uint64Codec = Codec[uint64]{
	Size:   8,
	Append: binary.LittleEndian.AppendUint64,
	Decode: func(buf []byte) (uint64, error) { return binary.LittleEndian.Uint64(buf), nil },
}

func uint64Less(a, b uint64) bool { return a < b }

func randomInput(n int) []uint64 {
	rng := rand.New(rand.NewSource(42))
	values := make([]uint64, n)
	for i := range values {
		values[i] = rng.Uint64() % 1000
	}
	return values
}

func sortedCopy(values []uint64) []uint64 {
	out := append([]uint64(nil), values...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func TestSorter(t *testing.T) {
	t.Run("InMemory", func(t *testing.T) {
		values := randomInput(100)
		s, err := New(uint64Codec, uint64Less, func(o *Options) {
			o.MaxInMemory = 1000
			o.TempPath = t.TempDir()
		})
		require.NoError(t, err)

		out, err := s.Sort(cursor.FromSlice(values))
		require.NoError(t, err)

		got, err := cursor.Drain(out)
		require.NoError(t, err)
		assert.Equal(t, sortedCopy(values), got)
	})

	t.Run("Spilling", func(t *testing.T) {
		dir := t.TempDir()
		values := randomInput(1000)
		s, err := New(uint64Codec, uint64Less, func(o *Options) {
			o.MaxInMemory = 64 // force many runs
			o.TempPath = dir
		})
		require.NoError(t, err)

		out, err := s.Sort(cursor.FromSlice(values))
		require.NoError(t, err)

		got, err := cursor.Drain(out)
		require.NoError(t, err)
		assert.Equal(t, sortedCopy(values), got)

		// Spill files are removed once the merge cursor is closed.
		dirEntries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, dirEntries)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		s, err := New(uint64Codec, uint64Less, func(o *Options) {
			o.TempPath = t.TempDir()
		})
		require.NoError(t, err)

		out, err := s.Sort(cursor.Empty[uint64]())
		require.NoError(t, err)

		got, err := cursor.Drain(out)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("SpillFailure", func(t *testing.T) {
		dir := t.TempDir()
		ffs := fs.NewFaultyFS(nil)
		ffs.SetWriteLimit(16)

		s, err := New(uint64Codec, uint64Less, func(o *Options) {
			o.MaxInMemory = 8
			o.TempPath = dir
			o.FS = ffs
		})
		require.NoError(t, err)

		_, err = s.Sort(cursor.FromSlice(randomInput(100)))
		require.Error(t, err)
		assert.ErrorIs(t, err, fs.ErrInjected)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := New(uint64Codec, uint64Less, func(o *Options) { o.MaxInMemory = 1 })
		assert.Error(t, err)

		_, err = New(Codec[uint64]{}, uint64Less)
		assert.Error(t, err)
	})
}
