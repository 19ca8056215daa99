package partition

import (
	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/sfc"
)

// SkewCost scores a bucket by the spatial skew of an occupancy grid
// restricted to the bucket's footprint: the sum of squared deviations of
// the occupied cell counts from their mean. The grid is built once from
// the complete input and keyed by space-filling-curve cell.
type SkewCost struct {
	curve    sfc.Curve
	occupied *roaring64.Bitmap
	counts   map[uint64]float64
}

// NewSkewCost builds the occupancy grid from all input entries. Each entry
// contributes its weight to the cell holding its center.
func NewSkewCost(curve sfc.Curve, entries []geom.Entry) *SkewCost {
	occupied := roaring64.New()
	counts := make(map[uint64]float64)
	for i := range entries {
		key := curve.Key(entries[i].MBR.Center())
		occupied.Add(key)
		counts[key] += float64(entries[i].Weight)
	}
	return &SkewCost{curve: curve, occupied: occupied, counts: counts}
}

// skew computes the sum-of-squared-deviation of occupied cell counts whose
// cells overlap the footprint rectangle.
func (c *SkewCost) skew(footprint geom.Rect) float64 {
	var (
		sum   float64
		sumSq float64
		n     float64
	)
	it := c.occupied.Iterator()
	for it.HasNext() {
		key := it.Next()
		if !c.curve.CellRect(key).Overlaps(footprint) {
			continue
		}
		v := c.counts[key]
		sum += v
		sumSq += v * v
		n++
	}
	if n == 0 {
		return 0
	}
	mean := sum / n
	return sumSq - n*mean*mean
}

// InitialCosts implements CostProcessor.
func (c *SkewCost) InitialCosts(entries []geom.Entry, b, B int64) []float64 {
	var (
		costs  []float64
		weight int64
		union  geom.Rect
	)
	for i := range entries {
		weight += entries[i].Weight
		if weight > B {
			break
		}
		if union.IsZero() {
			union = entries[i].MBR.Clone()
		} else {
			union.ExtendInPlace(entries[i].MBR)
		}
		if weight < b {
			costs = append(costs, 0)
		} else {
			costs = append(costs, c.skew(union))
		}
	}
	return costs
}

// Costs implements CostProcessor.
func (c *SkewCost) Costs(entries []geom.Entry, b, B int64, end int) []float64 {
	var (
		costs  []float64
		weight int64
		union  geom.Rect
	)
	for l := 1; l <= end+1; l++ {
		i := end - l + 1
		weight += entries[i].Weight
		if weight > B {
			break
		}
		if union.IsZero() {
			union = entries[i].MBR.Clone()
		} else {
			union.ExtendInPlace(entries[i].MBR)
		}
		if weight < b {
			costs = append(costs, 0)
		} else {
			costs = append(costs, c.skew(union))
		}
	}
	return costs
}

// PrecomputeAll implements CostProcessor. The per-cell skew scan makes the
// quadratic matrix too expensive beyond small inputs.
func (c *SkewCost) PrecomputeAll(entries []geom.Entry) ([][]float64, error) {
	n := len(entries)
	if n > precomputeCap/8 {
		return nil, ErrPrecomputeUnsupported
	}
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		union := entries[i].MBR.Clone()
		matrix[i][i] = c.skew(union)
		for j := i + 1; j < n; j++ {
			union.ExtendInPlace(entries[j].MBR)
			matrix[i][j] = c.skew(union)
		}
	}
	return matrix, nil
}

// Reset implements CostProcessor. The grid is derived from the complete
// input, not from a single partitioning run, so it survives Reset.
func (c *SkewCost) Reset() {}

// OccupiedCells returns the number of non-empty grid cells.
func (c *SkewCost) OccupiedCells() int { return int(c.occupied.GetCardinality()) }
