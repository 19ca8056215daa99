package rtree

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/pierrec/lz4/v4"

	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/internal/fs"
)

// Block file layout: a fixed header, then per level the node count followed
// by node records packed into lz4-compressed blocks. Each block carries
// [UncompressedSize uint32][CompressedSize uint32][data]; CompressedSize 0
// marks an incompressible block stored raw.

var blockFileMagic = [6]byte{'S', 'H', 'R', 'T', '0', '1'}

const blockHeaderSize = 8

// nodeRecordSize is the encoded width of one node record: rectangle,
// count, average extents, and the child range.
func nodeRecordSize(dim int) int {
	return geom.EncodedRectSize(dim) + 8 + 8*dim + 8 + 8
}

// Save persists the tree to a block file at path. An existing file is
// truncated.
func (t *Tree) Save(fsys fs.FileSystem, path string) error {
	if fsys == nil {
		fsys = fs.Default
	}
	f, err := fsys.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("rtree: creating block file: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := t.writeTo(w); err != nil {
		_ = f.Close()
		_ = fsys.Remove(path)
		return err
	}
	err = w.Flush()
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		_ = f.Close()
		_ = fsys.Remove(path)
		return fmt.Errorf("rtree: flushing block file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fsys.Remove(path)
		return fmt.Errorf("rtree: closing block file: %w", err)
	}
	return nil
}

func (t *Tree) writeTo(w io.Writer) error {
	header := make([]byte, 0, 16)
	header = append(header, blockFileMagic[:]...)
	header = binary.LittleEndian.AppendUint16(header, 1)
	header = binary.LittleEndian.AppendUint32(header, uint32(t.dim))
	header = binary.LittleEndian.AppendUint32(header, uint32(len(t.levels)))
	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("rtree: writing header: %w", err)
	}

	recSize := nodeRecordSize(t.dim)
	perBlock := t.opts.BlockSize / recSize
	if perBlock < 1 {
		perBlock = 1
	}

	for _, level := range t.levels {
		var count [4]byte
		binary.LittleEndian.PutUint32(count[:], uint32(len(level)))
		if _, err := w.Write(count[:]); err != nil {
			return fmt.Errorf("rtree: writing level header: %w", err)
		}

		block := make([]byte, 0, perBlock*recSize)
		for i := range level {
			block = appendNode(block, &level[i])
			if len(block) >= perBlock*recSize {
				if err := writeBlock(w, block); err != nil {
					return err
				}
				block = block[:0]
			}
		}
		if len(block) > 0 {
			if err := writeBlock(w, block); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendNode(dst []byte, n *node) []byte {
	dst = geom.AppendRect(dst, n.mbr)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(n.count))
	for _, e := range n.avgExtent {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(e))
	}
	dst = binary.LittleEndian.AppendUint64(dst, uint64(n.childStart))
	dst = binary.LittleEndian.AppendUint64(dst, uint64(n.childEnd))
	return dst
}

// writeBlock compresses one block with lz4, falling back to raw storage
// when compression does not help.
func writeBlock(w io.Writer, data []byte) error {
	compressed := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, compressed, nil)
	if err != nil {
		return fmt.Errorf("rtree: compressing block: %w", err)
	}

	var header [blockHeaderSize]byte
	binary.LittleEndian.PutUint32(header[0:], uint32(len(data)))
	if n == 0 || n >= len(data) {
		binary.LittleEndian.PutUint32(header[4:], 0)
		if _, err := w.Write(header[:]); err == nil {
			_, err = w.Write(data)
		}
		if err != nil {
			return fmt.Errorf("rtree: writing block: %w", err)
		}
		return nil
	}

	binary.LittleEndian.PutUint32(header[4:], uint32(n))
	if _, err := w.Write(header[:]); err == nil {
		_, err = w.Write(compressed[:n])
	}
	if err != nil {
		return fmt.Errorf("rtree: writing block: %w", err)
	}
	return nil
}

// Open loads a tree previously written with Save.
func Open(fsys fs.FileSystem, path string, optFns ...func(o *Options)) (*Tree, error) {
	if fsys == nil {
		fsys = fs.Default
	}
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	f, err := fsys.OpenFile(path, os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("rtree: opening block file: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, 16)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("rtree: reading header: %w", err)
	}
	if [6]byte(header[:6]) != blockFileMagic {
		return nil, fmt.Errorf("rtree: bad magic in block file %s", path)
	}
	if v := binary.LittleEndian.Uint16(header[6:]); v != 1 {
		return nil, fmt.Errorf("rtree: unsupported block file version %d", v)
	}
	dim := int(binary.LittleEndian.Uint32(header[8:]))
	numLevels := int(binary.LittleEndian.Uint32(header[12:]))
	if dim < 1 {
		return nil, fmt.Errorf("rtree: invalid dimensionality %d in block file", dim)
	}

	t := &Tree{dim: dim, opts: opts}
	recSize := nodeRecordSize(dim)
	for l := 0; l < numLevels; l++ {
		var count [4]byte
		if _, err := io.ReadFull(r, count[:]); err != nil {
			return nil, fmt.Errorf("rtree: reading level header: %w", err)
		}
		remaining := int(binary.LittleEndian.Uint32(count[:]))

		level := make([]node, 0, remaining)
		for remaining > 0 {
			data, err := readBlock(r)
			if err != nil {
				return nil, err
			}
			if len(data)%recSize != 0 {
				return nil, fmt.Errorf("rtree: block size %d not a multiple of record size %d", len(data), recSize)
			}
			for off := 0; off < len(data); off += recSize {
				n, err := decodeNode(data[off:off+recSize], dim)
				if err != nil {
					return nil, err
				}
				level = append(level, n)
				remaining--
			}
		}
		t.levels = append(t.levels, level)
	}
	return t, nil
}

func readBlock(r io.Reader) ([]byte, error) {
	var header [blockHeaderSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("rtree: reading block header: %w", err)
	}
	uncompressedSize := binary.LittleEndian.Uint32(header[0:])
	compressedSize := binary.LittleEndian.Uint32(header[4:])

	if compressedSize == 0 {
		data := make([]byte, uncompressedSize)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("rtree: reading raw block: %w", err)
		}
		return data, nil
	}

	compressed := make([]byte, compressedSize)
	if _, err := io.ReadFull(r, compressed); err != nil {
		return nil, fmt.Errorf("rtree: reading compressed block: %w", err)
	}
	data := make([]byte, uncompressedSize)
	n, err := lz4.UncompressBlock(compressed, data)
	if err != nil {
		return nil, fmt.Errorf("rtree: decompressing block: %w", err)
	}
	return data[:n], nil
}

func decodeNode(buf []byte, dim int) (node, error) {
	mbr, err := geom.DecodeRect(buf, dim)
	if err != nil {
		return node{}, err
	}
	off := geom.EncodedRectSize(dim)
	count := int64(binary.LittleEndian.Uint64(buf[off:]))
	off += 8
	avgExtent := make([]float64, dim)
	for d := 0; d < dim; d++ {
		avgExtent[d] = math.Float64frombits(binary.LittleEndian.Uint64(buf[off:]))
		off += 8
	}
	childStart := int(binary.LittleEndian.Uint64(buf[off:]))
	childEnd := int(binary.LittleEndian.Uint64(buf[off+8:]))
	return node{
		mbr:        mbr,
		count:      count,
		avgExtent:  avgExtent,
		samples:    1,
		childStart: childStart,
		childEnd:   childEnd,
	}, nil
}
