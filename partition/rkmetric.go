package partition

import (
	"sort"

	"github.com/umr-dbs/selhist/geom"
)

// RKMetricCost scores a bucket by the uniformity of its own interior: the
// run's entry centers are split recursively at the median along the widest
// dimension, k-d-tree style, and the cost is the sum of squared deviations
// of the resulting region weights from a uniform distribution. Unlike
// SkewCost it needs no global grid, only the run itself.
type RKMetricCost struct {
	// MaxDepth bounds the recursive median split. 2^MaxDepth regions are
	// produced for runs with enough points.
	MaxDepth int
}

// DefaultRKMaxDepth is the default recursion depth of the median split.
const DefaultRKMaxDepth = 4

// NewRKMetricCost creates an RKMetricCost with the default split depth.
func NewRKMetricCost() *RKMetricCost {
	return &RKMetricCost{MaxDepth: DefaultRKMaxDepth}
}

type rkPoint struct {
	center []float64
	weight float64
}

// cost computes the RK metric of one run.
func (c *RKMetricCost) cost(entries []geom.Entry) float64 {
	points := make([]rkPoint, len(entries))
	for i := range entries {
		points[i] = rkPoint{center: entries[i].MBR.Center(), weight: float64(entries[i].Weight)}
	}

	depth := c.MaxDepth
	if depth <= 0 {
		depth = DefaultRKMaxDepth
	}

	var leaves []float64
	c.split(points, depth, &leaves)
	if len(leaves) < 2 {
		return 0
	}

	var sum float64
	for _, w := range leaves {
		sum += w
	}
	mean := sum / float64(len(leaves))
	var ssd float64
	for _, w := range leaves {
		d := w - mean
		ssd += d * d
	}
	return ssd
}

// split recurses on the median of the widest dimension and collects the
// summed weight of every final region.
func (c *RKMetricCost) split(points []rkPoint, depth int, leaves *[]float64) {
	if depth == 0 || len(points) < 2 {
		var w float64
		for _, p := range points {
			w += p.weight
		}
		*leaves = append(*leaves, w)
		return
	}

	dim := widestDim(points)
	sort.Slice(points, func(i, j int) bool { return points[i].center[dim] < points[j].center[dim] })
	mid := len(points) / 2
	c.split(points[:mid], depth-1, leaves)
	c.split(points[mid:], depth-1, leaves)
}

func widestDim(points []rkPoint) int {
	d := len(points[0].center)
	best, bestExt := 0, -1.0
	for k := 0; k < d; k++ {
		lo, hi := points[0].center[k], points[0].center[k]
		for _, p := range points[1:] {
			if p.center[k] < lo {
				lo = p.center[k]
			}
			if p.center[k] > hi {
				hi = p.center[k]
			}
		}
		if ext := hi - lo; ext > bestExt {
			best, bestExt = k, ext
		}
	}
	return best
}

// InitialCosts implements CostProcessor.
func (c *RKMetricCost) InitialCosts(entries []geom.Entry, b, B int64) []float64 {
	var (
		costs  []float64
		weight int64
	)
	for i := range entries {
		weight += entries[i].Weight
		if weight > B {
			break
		}
		if weight < b {
			costs = append(costs, 0)
		} else {
			costs = append(costs, c.cost(entries[:i+1]))
		}
	}
	return costs
}

// Costs implements CostProcessor.
func (c *RKMetricCost) Costs(entries []geom.Entry, b, B int64, end int) []float64 {
	var (
		costs  []float64
		weight int64
	)
	for l := 1; l <= end+1; l++ {
		weight += entries[end-l+1].Weight
		if weight > B {
			break
		}
		if weight < b {
			costs = append(costs, 0)
		} else {
			costs = append(costs, c.cost(entries[end-l+1:end+1]))
		}
	}
	return costs
}

// PrecomputeAll implements CostProcessor. The median split is O(n log n)
// per cell, so the matrix is only materialized for small inputs.
func (c *RKMetricCost) PrecomputeAll(entries []geom.Entry) ([][]float64, error) {
	n := len(entries)
	if n > precomputeCap/8 {
		return nil, ErrPrecomputeUnsupported
	}
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		for j := i; j < n; j++ {
			matrix[i][j] = c.cost(entries[i : j+1])
		}
	}
	return matrix, nil
}

// Reset implements CostProcessor. RKMetricCost keeps no state.
func (c *RKMetricCost) Reset() {}
