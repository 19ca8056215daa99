// Package sfc provides space-filling-curve orderings over rectangles.
//
// A curve maps points of a bounded universe onto a one-dimensional key so
// that nearby points tend to receive nearby keys. The external sort orders
// rectangles by the curve key of their center, which gives the R-tree
// bulk-loader the data locality it needs for tight leaf MBRs. The spatial
// skew cost processor reuses the same keys as grid cell identifiers.
package sfc

import (
	"fmt"

	"github.com/umr-dbs/selhist/geom"
)

// Curve maps points of its universe to keys on a space-filling curve.
// Implementations must be safe for concurrent use.
type Curve interface {
	// Key returns the curve position of p. Points outside the universe are
	// clamped to its boundary.
	Key(p []float64) uint64

	// Dim returns the dimensionality of the universe.
	Dim() int

	// Bits returns the per-dimension resolution in bits.
	Bits() int

	// CellRect returns the universe-space box of the grid cell at the given
	// curve position. It is the inverse of Key up to cell resolution.
	CellRect(key uint64) geom.Rect
}

// Less returns a rectangle comparator ordering by the curve key of the
// rectangle centers. Ties compare as not-less, giving a stable order under
// a stable sort.
func Less(c Curve) func(a, b geom.Rect) bool {
	return func(a, b geom.Rect) bool {
		return c.Key(a.Center()) < c.Key(b.Center())
	}
}

// grid discretizes the universe into 2^bits cells per dimension.
type grid struct {
	universe geom.Rect
	bits     int
	scale    []float64 // cells per coordinate unit, 0 for degenerate dims
}

func newGrid(universe geom.Rect, bits, wantDim int) (grid, error) {
	if wantDim > 0 && universe.Dim() != wantDim {
		return grid{}, &geom.ErrDimensionMismatch{Expected: wantDim, Actual: universe.Dim()}
	}
	if bits <= 0 || bits*universe.Dim() > 64 {
		return grid{}, fmt.Errorf("unsupported resolution: %d bits per dimension over %d dimensions", bits, universe.Dim())
	}
	cells := float64(uint64(1) << bits)
	scale := make([]float64, universe.Dim())
	for d := range scale {
		if ext := universe.Extent(d); ext > 0 {
			scale[d] = cells / ext
		}
	}
	return grid{universe: universe, bits: bits, scale: scale}, nil
}

// cellRect maps integer cell coordinates back to the universe-space box
// they cover.
func (g grid) cellRect(cells []uint64) geom.Rect {
	dim := g.universe.Dim()
	lo := make([]float64, dim)
	hi := make([]float64, dim)
	for d := 0; d < dim; d++ {
		if g.scale[d] == 0 {
			lo[d] = g.universe.Lo[d]
			hi[d] = g.universe.Hi[d]
			continue
		}
		width := 1 / g.scale[d]
		lo[d] = g.universe.Lo[d] + float64(cells[d])*width
		hi[d] = lo[d] + width
	}
	return geom.Rect{Lo: lo, Hi: hi}
}

// cell returns the integer cell coordinate of p in dimension d, clamped to
// the universe.
func (g grid) cell(p []float64, d int) uint64 {
	max := (uint64(1) << g.bits) - 1
	v := (p[d] - g.universe.Lo[d]) * g.scale[d]
	if v <= 0 {
		return 0
	}
	c := uint64(v)
	if c > max {
		return max
	}
	return c
}

// ZOrder is a Morton (bit-interleaving) curve over a universe of arbitrary
// dimensionality.
type ZOrder struct {
	grid
}

// NewZOrder creates a Z-order curve over the given universe. bits is the
// per-dimension resolution; bits*dim must not exceed 64.
func NewZOrder(universe geom.Rect, bits int) (*ZOrder, error) {
	g, err := newGrid(universe, bits, 0)
	if err != nil {
		return nil, err
	}
	return &ZOrder{grid: g}, nil
}

// Key interleaves the cell coordinate bits of p across all dimensions.
func (z *ZOrder) Key(p []float64) uint64 {
	dim := z.universe.Dim()
	cells := make([]uint64, dim)
	for d := 0; d < dim; d++ {
		cells[d] = z.cell(p, d)
	}
	var key uint64
	for b := z.bits - 1; b >= 0; b-- {
		for d := 0; d < dim; d++ {
			key = key<<1 | (cells[d]>>b)&1
		}
	}
	return key
}

// CellRect de-interleaves key back into cell coordinates and returns the
// box that cell covers.
func (z *ZOrder) CellRect(key uint64) geom.Rect {
	dim := z.universe.Dim()
	cells := make([]uint64, dim)
	for b := 0; b < z.bits; b++ {
		for d := dim - 1; d >= 0; d-- {
			cells[d] |= (key & 1) << b
			key >>= 1
		}
	}
	return z.cellRect(cells)
}

// Dim returns the dimensionality of the universe.
func (z *ZOrder) Dim() int { return z.universe.Dim() }

// Bits returns the per-dimension resolution in bits.
func (z *ZOrder) Bits() int { return z.bits }

// Hilbert is a two-dimensional Hilbert curve. It produces better locality
// than Z-order but is only defined here for dim == 2.
type Hilbert struct {
	grid
}

// NewHilbert creates a Hilbert curve over a two-dimensional universe. bits
// is the per-axis resolution and must satisfy 2*bits <= 64.
func NewHilbert(universe geom.Rect, bits int) (*Hilbert, error) {
	g, err := newGrid(universe, bits, 2)
	if err != nil {
		return nil, err
	}
	return &Hilbert{grid: g}, nil
}

// Key returns the distance of p's cell along the Hilbert curve.
func (h *Hilbert) Key(p []float64) uint64 {
	x := h.cell(p, 0)
	y := h.cell(p, 1)

	n := uint64(1) << h.bits
	var key uint64
	for s := n >> 1; s > 0; s >>= 1 {
		var rx, ry uint64
		if x&s > 0 {
			rx = 1
		}
		if y&s > 0 {
			ry = 1
		}
		key += s * s * ((3 * rx) ^ ry)

		// Rotate the quadrant so the sub-curve orientation stays consistent.
		if ry == 0 {
			if rx == 1 {
				x = n - 1 - x
				y = n - 1 - y
			}
			x, y = y, x
		}
	}
	return key
}

// CellRect walks the curve back from key to cell coordinates and returns
// the box that cell covers.
func (h *Hilbert) CellRect(key uint64) geom.Rect {
	n := uint64(1) << h.bits
	var x, y uint64
	t := key
	for s := uint64(1); s < n; s <<= 1 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		if ry == 0 {
			if rx == 1 {
				x = s - 1 - x
				y = s - 1 - y
			}
			x, y = y, x
		}
		x += s * rx
		y += s * ry
		t /= 4
	}
	return h.cellRect([]uint64{x, y})
}

// Dim returns 2.
func (h *Hilbert) Dim() int { return 2 }

// Bits returns the per-axis resolution in bits.
func (h *Hilbert) Bits() int { return h.bits }
