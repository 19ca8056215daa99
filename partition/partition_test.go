package partition

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umr-dbs/selhist/geom"
)

// row returns n unit-weight entries laid out left to right on the x axis.
func row(n int) []geom.Entry {
	entries := make([]geom.Entry, n)
	for i := range entries {
		x := float64(i)
		entries[i] = geom.NewEntry(geom.MustRect([]float64{x, 0}, []float64{x + 1, 1}))
	}
	return entries
}

func totalLength(runs []Run) int {
	total := 0
	for _, r := range runs {
		total += r.Length
	}
	return total
}

func runWeight(entries []geom.Entry, r Run) int64 {
	var w int64
	for _, e := range entries[r.Start : r.Start+r.Length] {
		w += e.Weight
	}
	return w
}

// contiguous asserts completeness: runs cover 0..n-1 exactly, in order.
func contiguous(t *testing.T, runs []Run, n int) {
	t.Helper()
	next := 0
	for _, r := range runs {
		require.Equal(t, next, r.Start)
		require.Positive(t, r.Length)
		next += r.Length
	}
	require.Equal(t, n, next)
}

// volumeCostOf recomputes the total union-volume cost of a partition.
func volumeCostOf(entries []geom.Entry, runs []Run) float64 {
	var total float64
	for _, r := range runs {
		union := entries[r.Start].MBR.Clone()
		for _, e := range entries[r.Start+1 : r.Start+r.Length] {
			union.ExtendInPlace(e.MBR)
		}
		total += union.Area()
	}
	return total
}

// bruteForce enumerates every partition of n entries into exactly k runs
// with weights in [b,B] and returns the cheapest total cost.
func bruteForce(entries []geom.Entry, b, B int64, k int) float64 {
	best := math.Inf(1)
	var recurse func(start, left int, runs []Run)
	recurse = func(start, left int, runs []Run) {
		if start == len(entries) {
			if left == 0 {
				if c := volumeCostOf(entries, runs); c < best {
					best = c
				}
			}
			return
		}
		if left == 0 {
			return
		}
		for l := 1; start+l <= len(entries); l++ {
			r := Run{Start: start, Length: l}
			w := runWeight(entries, r)
			if w > B {
				break
			}
			if w < b {
				continue
			}
			recurse(start+l, left-1, append(runs, r))
		}
	}
	recurse(0, k, nil)
	return best
}

func TestVolumeCost(t *testing.T) {
	entries := row(4)
	proc := NewVolumeCost()

	t.Run("InitialCosts", func(t *testing.T) {
		costs := proc.InitialCosts(entries, 2, 3)
		// Prefix of 1 is below minimum weight, prefixes of 2 and 3 score
		// their union volume; prefix of 4 exceeds B.
		require.Len(t, costs, 3)
		assert.Equal(t, 0.0, costs[0])
		assert.Equal(t, 2.0, costs[1])
		assert.Equal(t, 3.0, costs[2])
	})

	t.Run("Costs", func(t *testing.T) {
		costs := proc.Costs(entries, 1, 4, 3)
		require.Len(t, costs, 4)
		assert.Equal(t, 1.0, costs[0]) // entries[3]
		assert.Equal(t, 2.0, costs[1]) // entries[2..3]
		assert.Equal(t, 4.0, costs[3]) // entries[0..3]
	})

	t.Run("PrecomputeAll", func(t *testing.T) {
		matrix, err := proc.PrecomputeAll(entries)
		require.NoError(t, err)
		assert.Equal(t, 1.0, matrix[2][2])
		assert.Equal(t, 3.0, matrix[1][3])
		assert.Equal(t, 4.0, matrix[0][3])
	})
}

func TestGOPT(t *testing.T) {
	t.Run("Completeness", func(t *testing.T) {
		entries := row(17)
		runs, err := GOPT(entries, 3, 5, NewVolumeCost())
		require.NoError(t, err)

		contiguous(t, runs, 17)
		for i, r := range runs {
			w := runWeight(entries, r)
			assert.LessOrEqual(t, w, int64(5))
			if i < len(runs)-1 {
				assert.GreaterOrEqual(t, w, int64(3))
			}
		}
	})

	t.Run("UnderweightTail", func(t *testing.T) {
		// 7 entries with b=3, B=5: some bucket must fall below b; GOPT
		// closes it at the end instead of failing.
		runs, err := GOPT(row(7), 3, 5, NewVolumeCost())
		require.NoError(t, err)
		contiguous(t, runs, 7)
	})

	t.Run("EntryHeavierThanMax", func(t *testing.T) {
		entries := row(3)
		entries[1].Weight = 10
		_, err := GOPT(entries, 1, 5, NewVolumeCost())
		require.Error(t, err)
		assert.IsType(t, &ErrInfeasiblePartition{}, err)
	})

	t.Run("InvalidBounds", func(t *testing.T) {
		_, err := GOPT(row(5), 4, 2, NewVolumeCost())
		require.Error(t, err)
		assert.IsType(t, &ErrInfeasiblePartition{}, err)
	})

	t.Run("EmptyInput", func(t *testing.T) {
		runs, err := GOPT(nil, 1, 2, NewVolumeCost())
		require.NoError(t, err)
		assert.Empty(t, runs)
	})
}

func TestSOPT(t *testing.T) {
	t.Run("MatchesBruteForce", func(t *testing.T) {
		// Two spatial clusters: the optimum must split between them.
		var entries []geom.Entry
		for i := 0; i < 4; i++ {
			x := float64(i) * 0.1
			entries = append(entries, geom.NewEntry(geom.MustRect([]float64{x, 0}, []float64{x + 0.1, 1})))
		}
		for i := 0; i < 4; i++ {
			x := 10 + float64(i)*0.1
			entries = append(entries, geom.NewEntry(geom.MustRect([]float64{x, 0}, []float64{x + 0.1, 1})))
		}

		proc := NewVolumeCost()
		runs, err := SOPT(entries, 2, 6, 2, proc)
		require.NoError(t, err)
		contiguous(t, runs, 8)
		require.Len(t, runs, 2)
		assert.Equal(t, 4, runs[0].Length, "optimum must split between the clusters")
		assert.InDelta(t, bruteForce(entries, 2, 6, 2), volumeCostOf(entries, runs), 1e-12)
	})

	t.Run("RandomizedAgainstBruteForce", func(t *testing.T) {
		entries := row(9)
		// Perturb weights so feasibility is non-trivial.
		weights := []int64{1, 2, 1, 3, 1, 1, 2, 1, 2}
		for i := range entries {
			entries[i].Weight = weights[i]
		}

		for k := 2; k <= 4; k++ {
			proc := NewVolumeCost()
			proc.Reset()
			runs, err := SOPT(entries, 2, 7, k, proc)
			if err != nil {
				assert.IsType(t, &ErrInfeasiblePartition{}, err)
				continue
			}
			contiguous(t, runs, 9)
			require.Len(t, runs, k)
			for _, r := range runs {
				w := runWeight(entries, r)
				assert.GreaterOrEqual(t, w, int64(2))
				assert.LessOrEqual(t, w, int64(7))
			}
			assert.InDelta(t, bruteForce(entries, 2, 7, k), volumeCostOf(entries, runs), 1e-12)
		}
	})

	t.Run("Infeasible", func(t *testing.T) {
		// 5 entries into exactly 3 buckets of weight >= 2 cannot work.
		_, err := SOPT(row(5), 2, 10, 3, NewVolumeCost())
		require.Error(t, err)
		assert.IsType(t, &ErrInfeasiblePartition{}, err)
	})
}

func TestNOPT(t *testing.T) {
	t.Run("FindsFeasibleCount", func(t *testing.T) {
		// Exactly 3 buckets is infeasible, but 2 buckets of weight in
		// [2,10] work; NOPT must find them.
		runs, err := NOPT(row(5), 2, 10, 3, NewVolumeCost())
		require.NoError(t, err)
		contiguous(t, runs, 5)
		assert.LessOrEqual(t, len(runs), 3)
	})

	t.Run("PrefersCheaper", func(t *testing.T) {
		// Thin rectangles with gaps between them: every extra bucket
		// removes dead space from some union, so the cheapest candidate
		// uses the full bucket budget.
		entries := make([]geom.Entry, 8)
		for i := range entries {
			x := float64(i)
			entries[i] = geom.NewEntry(geom.MustRect([]float64{x, 0}, []float64{x + 0.1, 1}))
		}
		runs, err := NOPT(entries, 2, 8, 4, NewVolumeCost())
		require.NoError(t, err)
		contiguous(t, runs, 8)
		assert.Equal(t, 4, len(runs))
	})

	t.Run("Infeasible", func(t *testing.T) {
		_, err := NOPT(row(1), 2, 3, 1, NewVolumeCost())
		require.Error(t, err)
		assert.IsType(t, &ErrInfeasiblePartition{}, err)
	})
}

func TestChunked(t *testing.T) {
	t.Run("RespectsChunkBoundaries", func(t *testing.T) {
		entries := row(40)
		runs, err := Chunked(entries, 2, 8, 10, 10, NewVolumeCost())
		require.NoError(t, err)

		contiguous(t, runs, 40)
		assert.LessOrEqual(t, len(runs), 10)
		// No run straddles a chunk boundary.
		for _, r := range runs {
			assert.Equal(t, r.Start/10, (r.Start+r.Length-1)/10)
		}
	})

	t.Run("SmallInputDelegates", func(t *testing.T) {
		exact, err := SOPT(row(8), 2, 8, 2, NewVolumeCost())
		require.NoError(t, err)
		chunked, err := Chunked(row(8), 2, 8, 2, 100, NewVolumeCost())
		require.NoError(t, err)
		assert.Equal(t, exact, chunked)
	})

	t.Run("MoreChunksThanBuckets", func(t *testing.T) {
		// 100 entries, chunk size 10 would cut 10 chunks, but only 4
		// buckets are allowed: chunks are widened instead.
		runs, err := Chunked(row(100), 2, 40, 4, 10, NewVolumeCost())
		require.NoError(t, err)
		contiguous(t, runs, 100)
		assert.LessOrEqual(t, len(runs), 4)
	})
}

func TestLengths(t *testing.T) {
	runs := []Run{{Start: 0, Length: 3}, {Start: 3, Length: 2}}
	assert.Equal(t, []int{3, 2}, Lengths(runs))
	assert.Equal(t, 4, runs[1].End())
}
