package partition

import (
	"errors"
	"math"

	"github.com/umr-dbs/selhist/geom"
)

// SOPT computes an optimal partition of entries into exactly buckets
// contiguous runs, each with summed weight in [b,B], minimizing the total
// cost under the given processor. Returns ErrInfeasiblePartition when no
// such partition exists.
//
// The table is dp[j][i] = minimum cost of covering the first i entries with
// exactly j runs; ties are broken strictly, keeping the first (smallest)
// split index found.
func SOPT(entries []geom.Entry, b, B int64, buckets int, proc CostProcessor) ([]Run, error) {
	dp, choice, err := fillTable(entries, b, B, buckets, proc)
	if err != nil {
		return nil, err
	}
	n := len(entries)
	if math.IsInf(dp[buckets][n], 1) {
		return nil, &ErrInfeasiblePartition{N: n, Buckets: buckets, MinWeight: b, MaxWeight: B}
	}
	return backtrack(choice, buckets, n), nil
}

// NOPT is the bucket-count-searching variant: it fills the same table as
// SOPT for every bucket count up to maxBuckets and returns the cheapest
// complete partition over all of them. Used when the weight bounds are
// loose and an exact bucket-count match is not guaranteed feasible.
func NOPT(entries []geom.Entry, b, B int64, maxBuckets int, proc CostProcessor) ([]Run, error) {
	dp, choice, err := fillTable(entries, b, B, maxBuckets, proc)
	if err != nil {
		return nil, err
	}
	n := len(entries)

	bestJ, bestCost := -1, math.Inf(1)
	for j := 1; j <= maxBuckets; j++ {
		if dp[j][n] < bestCost {
			bestJ, bestCost = j, dp[j][n]
		}
	}
	if bestJ < 0 {
		return nil, &ErrInfeasiblePartition{N: n, Buckets: maxBuckets, MinWeight: b, MaxWeight: B}
	}
	return backtrack(choice, bestJ, n), nil
}

// fillTable runs the bounded DP for all bucket counts 1..maxBuckets.
// dp[j][i] uses run costs taken from the processor's precomputed matrix
// when available, falling back to per-column backward scans otherwise.
func fillTable(entries []geom.Entry, b, B int64, maxBuckets int, proc CostProcessor) (dp [][]float64, choice [][]int, err error) {
	n := len(entries)
	if err := checkBounds(n, maxBuckets, b, B); err != nil {
		return nil, nil, err
	}
	if maxBuckets < 1 || n == 0 {
		return nil, nil, &ErrInfeasiblePartition{N: n, Buckets: maxBuckets, MinWeight: b, MaxWeight: B}
	}

	matrix, err := proc.PrecomputeAll(entries)
	if err != nil && !errors.Is(err, ErrPrecomputeUnsupported) {
		return nil, nil, err
	}

	inf := math.Inf(1)
	dp = make([][]float64, maxBuckets+1)
	choice = make([][]int, maxBuckets+1)
	for j := range dp {
		dp[j] = make([]float64, n+1)
		choice[j] = make([]int, n+1)
		for i := range dp[j] {
			dp[j][i] = inf
		}
	}
	dp[0][0] = 0

	for i := 1; i <= n; i++ {
		end := i - 1

		var costs []float64
		if matrix == nil {
			costs = proc.Costs(entries, b, B, end)
		}
		minLen, maxLen := windows(entries, b, B, end)
		if matrix == nil && maxLen > len(costs) {
			maxLen = len(costs)
		}

		runCost := func(l int) float64 {
			if matrix != nil {
				return matrix[i-l][end]
			}
			return costs[l-1]
		}

		for j := 1; j <= maxBuckets; j++ {
			// l descending scans split points in ascending order, so the
			// strict less-than keeps the smallest split index on ties.
			for l := maxLen; l >= minLen && minLen > 0; l-- {
				prev := dp[j-1][i-l]
				if math.IsInf(prev, 1) {
					continue
				}
				if total := prev + runCost(l); total < dp[j][i] {
					dp[j][i] = total
					choice[j][i] = l
				}
			}
		}
	}
	return dp, choice, nil
}

// backtrack recovers the run distribution for a complete partition into j
// buckets from the choice table.
func backtrack(choice [][]int, j, n int) []Run {
	runs := make([]Run, 0, j)
	for i := n; i > 0; j-- {
		l := choice[j][i]
		runs = append(runs, Run{Start: i - l, Length: l})
		i -= l
	}
	reverse(runs)
	return runs
}
