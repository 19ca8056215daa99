package partition

import (
	"math"

	"github.com/umr-dbs/selhist/geom"
)

// GOPT computes the globally cheapest chain of buckets without a target
// bucket count: a one-dimensional dynamic program where best[i] is the
// minimum total cost of covering entries[0..i] with buckets of weight in
// [b,B]. The number of buckets falls out of the optimum.
//
// A tail whose weight can no longer reach b is closed as a final
// under-weight bucket rather than failing: GOPT feeds the R-tree
// bulk-loader, which must place every input rectangle in some leaf.
func GOPT(entries []geom.Entry, b, B int64, proc CostProcessor) ([]Run, error) {
	n := len(entries)
	if err := checkBounds(n, 1, b, B); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	for i := range entries {
		if entries[i].Weight > B {
			return nil, &ErrInfeasiblePartition{N: n, Buckets: 1, MinWeight: b, MaxWeight: B}
		}
	}

	inf := math.Inf(1)
	best := make([]float64, n)
	runStart := make([]int, n)
	for i := range best {
		best[i] = inf
		runStart[i] = -1
	}

	for i := 0; i < n; i++ {
		costs := proc.Costs(entries, b, B, i)
		minLen, maxLen := windows(entries, b, B, i)
		if maxLen > len(costs) {
			maxLen = len(costs)
		}

		// Scan split points in ascending order so ties keep the first
		// (smallest) split index under strict less-than.
		feasible := false
		for l := maxLen; l >= minLen && minLen > 0; l-- {
			start := i - l + 1
			prev := 0.0
			if start > 0 {
				prev = best[start-1]
			}
			if math.IsInf(prev, 1) {
				continue
			}
			feasible = true
			if total := prev + costs[l-1]; total < best[i] {
				best[i] = total
				runStart[i] = start
			}
		}

		// Tail rescue: the whole prefix up to i may end in a run that can
		// never reach b. Allowed only at the very end of the chain.
		if !feasible && i == n-1 {
			for l := maxLen; l >= 1; l-- {
				start := i - l + 1
				prev := 0.0
				if start > 0 {
					prev = best[start-1]
				}
				if math.IsInf(prev, 1) {
					continue
				}
				if total := prev + costs[l-1]; total < best[i] {
					best[i] = total
					runStart[i] = start
				}
			}
		}
	}

	if runStart[n-1] < 0 {
		return nil, &ErrInfeasiblePartition{N: n, Buckets: 1, MinWeight: b, MaxWeight: B}
	}

	var runs []Run
	for i := n - 1; i >= 0; {
		start := runStart[i]
		runs = append(runs, Run{Start: start, Length: i - start + 1})
		i = start - 1
	}
	reverse(runs)
	return runs, nil
}

func reverse(runs []Run) {
	for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
		runs[i], runs[j] = runs[j], runs[i]
	}
}
