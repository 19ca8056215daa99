// Package partition groups an ordered array of weighted micro-clusters into
// contiguous runs ("buckets") minimizing a pluggable cost function.
//
// Three strategies are provided. GOPT is an unbounded one-dimensional
// dynamic program that picks the globally cheapest chain of buckets without
// a target bucket count; it is used during R-tree bulk loading. SOPT is the
// exact bounded variant producing a fixed number of buckets, and NOPT
// searches over bucket counts up to a maximum. Chunked trades optimality
// for memory by running SOPT independently per fixed-size chunk.
package partition

import (
	"fmt"

	"github.com/umr-dbs/selhist/geom"
)

// Run is a contiguous range of input indices assigned to one bucket.
type Run struct {
	Start  int
	Length int
}

// End returns the inclusive index of the last entry in the run.
func (r Run) End() int { return r.Start + r.Length - 1 }

// Lengths returns the run-length distribution of a partition.
func Lengths(runs []Run) []int {
	lengths := make([]int, len(runs))
	for i, r := range runs {
		lengths[i] = r.Length
	}
	return lengths
}

// ErrInfeasiblePartition reports that no partition satisfies the weight
// bounds for the requested bucket count.
type ErrInfeasiblePartition struct {
	N         int
	Buckets   int
	MinWeight int64
	MaxWeight int64
}

func (e *ErrInfeasiblePartition) Error() string {
	return fmt.Sprintf("no feasible partition of %d entries into %d buckets with weight bounds [%d,%d]",
		e.N, e.Buckets, e.MinWeight, e.MaxWeight)
}

// checkBounds validates the weight bounds shared by all strategies.
func checkBounds(n int, buckets int, b, B int64) error {
	if b > B || b < 1 {
		return &ErrInfeasiblePartition{N: n, Buckets: buckets, MinWeight: b, MaxWeight: B}
	}
	return nil
}

// windows returns, for a candidate bucket ending at index end, the largest
// run length maxLen whose summed weight stays within B, and the smallest
// run length minLen whose summed weight reaches b (0 if b is never
// reached). Weights are summed backward from end.
func windows(entries []geom.Entry, b, B int64, end int) (minLen, maxLen int) {
	var weight int64
	for l := 1; l <= end+1; l++ {
		weight += entries[end-l+1].Weight
		if weight > B {
			break
		}
		maxLen = l
		if minLen == 0 && weight >= b {
			minLen = l
		}
	}
	return minLen, maxLen
}
