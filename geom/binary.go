package geom

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Rectangles cross process boundaries only through spill runs and R-tree
// block files, both of which carry the dimensionality in their header, so
// records are fixed-width: 2*dim little-endian float64 values (low corner
// first).

// EncodedRectSize returns the byte size of one encoded rectangle of the
// given dimensionality.
func EncodedRectSize(dim int) int { return 16 * dim }

// AppendRect appends the fixed-width encoding of r to dst.
func AppendRect(dst []byte, r Rect) []byte {
	for d := range r.Lo {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.Lo[d]))
	}
	for d := range r.Hi {
		dst = binary.LittleEndian.AppendUint64(dst, math.Float64bits(r.Hi[d]))
	}
	return dst
}

// DecodeRect decodes one rectangle of the given dimensionality from buf.
func DecodeRect(buf []byte, dim int) (Rect, error) {
	if len(buf) < EncodedRectSize(dim) {
		return Rect{}, fmt.Errorf("short rectangle record: have %d bytes, need %d", len(buf), EncodedRectSize(dim))
	}
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for d := 0; d < dim; d++ {
		lo[d] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*d:]))
	}
	for d := 0; d < dim; d++ {
		hi[d] = math.Float64frombits(binary.LittleEndian.Uint64(buf[8*(dim+d):]))
	}
	return Rect{Lo: lo, Hi: hi}, nil
}
