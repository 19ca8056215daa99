// Package geom provides the axis-aligned rectangle and weighted micro-cluster
// types used throughout selhist. Rectangles are D-dimensional boxes over
// float64 coordinates; area generalizes to volume for D > 2.
package geom

import (
	"fmt"
	"math"
)

// ErrDimensionMismatch is a named error type for mixing rectangles of
// different dimensionality.
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch.
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Rect is an axis-aligned hyper-rectangle defined by its low and high corner.
// Rect values are treated as immutable by all selhist packages; mutating
// operations return a new Rect or are explicitly named *InPlace.
type Rect struct {
	Lo []float64
	Hi []float64
}

// NewRect creates a rectangle from its two corner vectors. The corners must
// have equal dimensionality and satisfy lo[d] <= hi[d] for every dimension.
func NewRect(lo, hi []float64) (Rect, error) {
	if len(lo) == 0 {
		return Rect{}, fmt.Errorf("rectangle must have at least one dimension")
	}
	if len(lo) != len(hi) {
		return Rect{}, &ErrDimensionMismatch{Expected: len(lo), Actual: len(hi)}
	}
	for d := range lo {
		if lo[d] > hi[d] {
			return Rect{}, fmt.Errorf("corner order violated in dimension %d: %g > %g", d, lo[d], hi[d])
		}
	}
	return Rect{Lo: lo, Hi: hi}, nil
}

// MustRect is like NewRect but panics on invalid input. Intended for tests
// and literals with known-good coordinates.
func MustRect(lo, hi []float64) Rect {
	r, err := NewRect(lo, hi)
	if err != nil {
		panic(err)
	}
	return r
}

// Point creates a degenerate rectangle covering a single point. The
// coordinates are copied.
func Point(p []float64) Rect {
	lo := append([]float64(nil), p...)
	hi := append([]float64(nil), p...)
	return Rect{Lo: lo, Hi: hi}
}

// Dim returns the dimensionality of the rectangle.
func (r Rect) Dim() int { return len(r.Lo) }

// IsZero reports whether the rectangle is the zero value (no corners).
func (r Rect) IsZero() bool { return r.Lo == nil }

// Clone returns a deep copy with freshly allocated corner vectors.
func (r Rect) Clone() Rect {
	lo := make([]float64, len(r.Lo))
	hi := make([]float64, len(r.Hi))
	copy(lo, r.Lo)
	copy(hi, r.Hi)
	return Rect{Lo: lo, Hi: hi}
}

// Union returns the minimum bounding rectangle covering both operands.
func (r Rect) Union(o Rect) Rect {
	u := r.Clone()
	u.ExtendInPlace(o)
	return u
}

// ExtendInPlace grows r so that it covers o. The receiver must own its
// corner vectors (e.g. obtained via Clone).
func (r *Rect) ExtendInPlace(o Rect) {
	for d := range r.Lo {
		if o.Lo[d] < r.Lo[d] {
			r.Lo[d] = o.Lo[d]
		}
		if o.Hi[d] > r.Hi[d] {
			r.Hi[d] = o.Hi[d]
		}
	}
}

// Overlaps reports whether the two rectangles share at least one point.
// Touching edges count as overlap, matching the closed-interval semantics
// of the selectivity estimator.
func (r Rect) Overlaps(o Rect) bool {
	for d := range r.Lo {
		if r.Hi[d] < o.Lo[d] || o.Hi[d] < r.Lo[d] {
			return false
		}
	}
	return true
}

// Intersect returns the intersection rectangle and true, or the zero Rect
// and false if the operands are disjoint.
func (r Rect) Intersect(o Rect) (Rect, bool) {
	lo := make([]float64, len(r.Lo))
	hi := make([]float64, len(r.Hi))
	for d := range r.Lo {
		lo[d] = math.Max(r.Lo[d], o.Lo[d])
		hi[d] = math.Min(r.Hi[d], o.Hi[d])
		if lo[d] > hi[d] {
			return Rect{}, false
		}
	}
	return Rect{Lo: lo, Hi: hi}, true
}

// Contains reports whether o lies fully within r (boundaries inclusive).
func (r Rect) Contains(o Rect) bool {
	for d := range r.Lo {
		if o.Lo[d] < r.Lo[d] || o.Hi[d] > r.Hi[d] {
			return false
		}
	}
	return true
}

// Area returns the D-dimensional volume of the rectangle. A degenerate
// rectangle (zero extent in any dimension) has area 0.
func (r Rect) Area() float64 {
	area := 1.0
	for d := range r.Lo {
		area *= r.Hi[d] - r.Lo[d]
	}
	return area
}

// Margin returns the sum of the edge lengths. Some cost functions prefer
// margin over volume for thin rectangles.
func (r Rect) Margin() float64 {
	m := 0.0
	for d := range r.Lo {
		m += r.Hi[d] - r.Lo[d]
	}
	return m
}

// Center returns the center point of the rectangle.
func (r Rect) Center() []float64 {
	c := make([]float64, len(r.Lo))
	for d := range r.Lo {
		c[d] = (r.Lo[d] + r.Hi[d]) / 2
	}
	return c
}

// Extent returns the edge length in dimension d.
func (r Rect) Extent(d int) float64 { return r.Hi[d] - r.Lo[d] }

// Extents returns the per-dimension edge lengths.
func (r Rect) Extents() []float64 {
	e := make([]float64, len(r.Lo))
	for d := range r.Lo {
		e[d] = r.Hi[d] - r.Lo[d]
	}
	return e
}

// Equal reports exact coordinate equality.
func (r Rect) Equal(o Rect) bool {
	if len(r.Lo) != len(o.Lo) {
		return false
	}
	for d := range r.Lo {
		if r.Lo[d] != o.Lo[d] || r.Hi[d] != o.Hi[d] {
			return false
		}
	}
	return true
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(%v, %v)", r.Lo, r.Hi)
}

// UnionAll returns the minimum bounding rectangle of all given rectangles.
// Returns the zero Rect for an empty input.
func UnionAll(rects []Rect) Rect {
	if len(rects) == 0 {
		return Rect{}
	}
	u := rects[0].Clone()
	for _, r := range rects[1:] {
		u.ExtendInPlace(r)
	}
	return u
}
