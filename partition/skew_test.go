package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/sfc"
)

// pointAt returns a small rectangle centered on (x,y) with the given weight.
func pointAt(x, y float64, weight int64) geom.Entry {
	r := geom.MustRect([]float64{x - 0.1, y - 0.1}, []float64{x + 0.1, y + 0.1})
	return geom.NewWeightedEntry(r, weight, nil)
}

func TestSkewCost(t *testing.T) {
	universe := geom.MustRect([]float64{0, 0}, []float64{8, 8})
	curve, err := sfc.NewZOrder(universe, 3) // 8x8 grid of unit cells
	require.NoError(t, err)

	entries := []geom.Entry{
		pointAt(0.5, 0.5, 1),
		pointAt(1.5, 0.5, 1),
		pointAt(4.5, 4.5, 5),
	}
	proc := NewSkewCost(curve, entries)

	t.Run("OccupiedCells", func(t *testing.T) {
		assert.Equal(t, 3, proc.OccupiedCells())
	})

	t.Run("UniformFootprintHasZeroSkew", func(t *testing.T) {
		// The first two cells hold equal counts; a footprint covering only
		// them deviates nowhere from the mean.
		costs := proc.Costs(entries, 1, 100, 1)
		require.Len(t, costs, 2)
		assert.Equal(t, 0.0, costs[0])
		assert.Equal(t, 0.0, costs[1])
	})

	t.Run("SkewedFootprint", func(t *testing.T) {
		// A footprint spanning all three cells sees counts 1, 1 and 5:
		// SSD = 1 + 1 + 25 - 3*(7/3)^2 = 32/3.
		costs := proc.InitialCosts(entries, 1, 100)
		require.Len(t, costs, 3)
		assert.InDelta(t, 32.0/3.0, costs[2], 1e-12)
	})

	t.Run("PrecomputeAll", func(t *testing.T) {
		matrix, err := proc.PrecomputeAll(entries)
		require.NoError(t, err)
		assert.Equal(t, 0.0, matrix[0][1])
		assert.InDelta(t, 32.0/3.0, matrix[0][2], 1e-12)
	})

	t.Run("GridSurvivesReset", func(t *testing.T) {
		proc.Reset()
		assert.Equal(t, 3, proc.OccupiedCells())
	})
}

func TestSkewCostInSOPT(t *testing.T) {
	// Two dense cells far apart plus a sparse area in between: the skew
	// processor plugs into the DP like any other processor.
	universe := geom.MustRect([]float64{0, 0}, []float64{16, 16})
	curve, err := sfc.NewZOrder(universe, 4)
	require.NoError(t, err)

	var entries []geom.Entry
	for i := 0; i < 3; i++ {
		entries = append(entries, pointAt(0.5, 0.5+float64(i)*0.01, 1))
	}
	for i := 0; i < 3; i++ {
		entries = append(entries, pointAt(15.5, 15.5-float64(i)*0.01, 2))
	}

	proc := NewSkewCost(curve, entries)
	runs, err := SOPT(entries, 2, 6, 2, proc)
	require.NoError(t, err)
	contiguous(t, runs, 6)
	assert.Equal(t, 3, runs[0].Length, "split must separate the two dense cells")
}
