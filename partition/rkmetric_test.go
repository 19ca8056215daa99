package partition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/selhist/geom"
)

func TestRKMetricCost(t *testing.T) {
	t.Run("UniformRunHasZeroCost", func(t *testing.T) {
		var entries []geom.Entry
		for i := 0; i < 8; i++ {
			entries = append(entries, pointAt(float64(i), 0, 1))
		}
		proc := NewRKMetricCost()
		costs := proc.InitialCosts(entries, 1, 100)
		require.Len(t, costs, 8)
		assert.Equal(t, 0.0, costs[7])
	})

	t.Run("SkewedRunCostsMore", func(t *testing.T) {
		uniform := make([]geom.Entry, 8)
		skewed := make([]geom.Entry, 8)
		for i := 0; i < 8; i++ {
			uniform[i] = pointAt(float64(i), 0, 1)
			skewed[i] = pointAt(float64(i), 0, 1)
		}
		skewed[0].Weight = 10

		proc := NewRKMetricCost()
		flat := proc.cost(uniform)
		bumpy := proc.cost(skewed)
		assert.Equal(t, 0.0, flat)
		assert.Greater(t, bumpy, 0.0)
	})

	t.Run("DepthOneSplitsAtMedian", func(t *testing.T) {
		// Four points split once: region weights 3+1 = 4 and 1+1 = 2,
		// mean 3, SSD = 1 + 1 = 2.
		entries := []geom.Entry{
			pointAt(0, 0, 3),
			pointAt(1, 0, 1),
			pointAt(2, 0, 1),
			pointAt(3, 0, 1),
		}
		proc := &RKMetricCost{MaxDepth: 1}
		assert.InDelta(t, 2.0, proc.cost(entries), 1e-12)
	})

	t.Run("SingleEntryIsFree", func(t *testing.T) {
		proc := NewRKMetricCost()
		costs := proc.Costs([]geom.Entry{pointAt(5, 5, 9)}, 1, 100, 0)
		require.Len(t, costs, 1)
		assert.Equal(t, 0.0, costs[0])
	})

	t.Run("PrecomputeRefusesLargeInputs", func(t *testing.T) {
		entries := make([]geom.Entry, precomputeCap/8+1)
		for i := range entries {
			entries[i] = pointAt(float64(i), 0, 1)
		}
		_, err := NewRKMetricCost().PrecomputeAll(entries)
		assert.ErrorIs(t, err, ErrPrecomputeUnsupported)
	})
}

func TestRKMetricCostInSOPT(t *testing.T) {
	// The processor satisfies the interface and drives the bounded DP.
	var entries []geom.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, pointAt(float64(i), float64(i%3), 1))
	}
	proc := NewRKMetricCost()
	runs, err := SOPT(entries, 2, 6, 3, proc)
	require.NoError(t, err)
	contiguous(t, runs, 10)
	require.Len(t, runs, 3)
}
