// Package selhist builds spatial selectivity histograms over rectangle
// data sets.
//
// The pipeline sorts the input rectangles in space-filling-curve order,
// bulk-loads a packed R-tree with cost-based leaf grouping, extracts one
// weighted micro-cluster per leaf, and partitions the micro-cluster
// sequence into a bounded number of buckets with a dynamic program
// minimizing a pluggable cost function (union volume, spatial skew, or the
// RK metric). The resulting bucket list answers selectivity queries under
// a uniform-density-per-bucket assumption.
//
// Basic usage:
//
//	h, err := selhist.New(2,
//	    selhist.WithUniverse(universe),
//	    selhist.WithTempPath(scratchDir),
//	)
//	if err != nil { ... }
//	if err := h.Build(ctx, input, 64); err != nil { ... }
//	est, err := h.Selectivity(query)
//
// Build must be called exactly once per instance; afterwards all read
// methods are safe for concurrent use. Inputs whose leaf count exceeds the
// configured threshold are partitioned with a chunked heuristic that is
// optimal per chunk but not globally.
package selhist
