package partition

import (
	"errors"

	"github.com/umr-dbs/selhist/geom"
)

// ErrPrecomputeUnsupported is returned by PrecomputeAll when the full cost
// matrix would be too large to materialize.
var ErrPrecomputeUnsupported = errors.New("partition: full cost matrix not supported for this input size")

// CostProcessor computes incremental bucket costs over contiguous runs of
// entries. Processors may memoize internal state across calls belonging to
// the same partitioning problem; Reset must be called before reusing a
// processor for an independent input array.
type CostProcessor interface {
	// InitialCosts returns costs of candidate buckets anchored at the start
	// of entries: costs[i] is the cost of the run entries[0..i]. The array
	// covers every prefix whose summed weight stays within B; prefixes whose
	// weight has not reached b yet carry cost 0 and are skipped by the
	// partitioners.
	InitialCosts(entries []geom.Entry, b, B int64) []float64

	// Costs is the backward variant: costs[l-1] is the cost of the run of
	// length l ending at index end, for every l whose summed weight stays
	// within B. Runs below minimum weight carry cost 0 as in InitialCosts.
	Costs(entries []geom.Entry, b, B int64, end int) []float64

	// PrecomputeAll returns the full matrix cost[i][j] for runs spanning
	// i..j inclusive, or ErrPrecomputeUnsupported when the quadratic memory
	// is not acceptable for this input size.
	PrecomputeAll(entries []geom.Entry) ([][]float64, error)

	// Reset clears memoized state between independent partitioning runs.
	Reset()
}

// precomputeCap bounds the input size for which cost processors materialize
// the quadratic cost matrix.
const precomputeCap = 1 << 13

// VolumeCost scores a bucket by a scalar function of its union MBR, by
// default the D-dimensional volume. It is the default processor for both
// bulk loading and histogram partitioning.
type VolumeCost struct {
	// Scalar maps the union MBR of a run to its cost. Defaults to Rect.Area.
	Scalar func(geom.Rect) float64
}

// NewVolumeCost creates a VolumeCost scoring buckets by union volume.
func NewVolumeCost() *VolumeCost {
	return &VolumeCost{Scalar: geom.Rect.Area}
}

func (c *VolumeCost) scalar(r geom.Rect) float64 {
	if c.Scalar != nil {
		return c.Scalar(r)
	}
	return r.Area()
}

// InitialCosts implements CostProcessor.
func (c *VolumeCost) InitialCosts(entries []geom.Entry, b, B int64) []float64 {
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
			costs = append(costs, c.scalar(union))
		}
	}
	return costs
}

// Costs implements CostProcessor.
func (c *VolumeCost) Costs(entries []geom.Entry, b, B int64, end int) []float64 {
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
			costs = append(costs, c.scalar(union))
		}
	}
	return costs
}

// PrecomputeAll implements CostProcessor.
func (c *VolumeCost) PrecomputeAll(entries []geom.Entry) ([][]float64, error) {
	n := len(entries)
	if n > precomputeCap {
		return nil, ErrPrecomputeUnsupported
	}
	matrix := make([][]float64, n)
	for i := 0; i < n; i++ {
		matrix[i] = make([]float64, n)
		union := entries[i].MBR.Clone()
		matrix[i][i] = c.scalar(union)
		for j := i + 1; j < n; j++ {
			union.ExtendInPlace(entries[j].MBR)
			matrix[i][j] = c.scalar(union)
		}
	}
	return matrix, nil
}

// Reset implements CostProcessor. VolumeCost keeps no state.
func (c *VolumeCost) Reset() {}
