package selhist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/umr-dbs/selhist/cursor"
	"github.com/umr-dbs/selhist/extsort"
	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/partition"
	"github.com/umr-dbs/selhist/rtree"
	"github.com/umr-dbs/selhist/sfc"
)

// State is the build lifecycle state of a histogram.
type State int

const (
	StateUnbuilt State = iota
	StateSorting
	StateBulkLoading
	StateExtracting
	StatePartitioning
	StateBuilt
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnbuilt:
		return "Unbuilt"
	case StateSorting:
		return "Sorting"
	case StateBulkLoading:
		return "BulkLoading"
	case StateExtracting:
		return "Extracting"
	case StatePartitioning:
		return "Partitioning"
	case StateBuilt:
		return "Built"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Bucket is one histogram bucket: the union MBR of its member
// micro-clusters, their summed object count, and the unweighted average of
// their average extents. Buckets are immutable after Build.
type Bucket struct {
	MBR       geom.Rect
	Weight    int64
	AvgExtent []float64
}

// BuildStats reports what a successful Build did.
type BuildStats struct {
	InputCount  int64
	LeafCount   int
	BucketCount int
	TreeHeight  int
	Chunked     bool
	Duration    time.Duration
}

// Histogram estimates the selectivity of rectangle queries from a list of
// buckets built over the leaf-level micro-clusters of a bulk-loaded R-tree.
//
// A Histogram must be built exactly once. Build is not safe for concurrent
// use; after it returns nil, all read methods are safe for concurrent use.
type Histogram struct {
	dim   int
	opts  Options
	state State

	buckets     []Bucket
	totalWeight int64
	stats       BuildStats
	treePath    string
}

// New creates an unbuilt histogram over rectangles of the given
// dimensionality. Configuration errors surface here, before any I/O.
func New(dim int, optFns ...func(o *Options)) (*Histogram, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if err := opts.validate(dim); err != nil {
		return nil, err
	}
	return &Histogram{
		dim:   dim,
		opts:  opts,
		state: StateUnbuilt,
	}, nil
}

// Build constructs the histogram from the input rectangle cursor: the input
// is sorted in space-filling-curve order, bulk-loaded into an R-tree, the
// leaf-level micro-clusters are extracted and partitioned into at most
// numberOfBuckets buckets.
//
// Build runs synchronously on the calling thread; ctx is checked between
// stages only. Any failure is fatal for this instance: no partial histogram
// is ever exposed and the build cannot be retried. The input cursor is
// closed before Build returns.
func (h *Histogram) Build(ctx context.Context, input cursor.Cursor[geom.Rect], numberOfBuckets int) error {
	switch h.state {
	case StateUnbuilt:
	case StateBuilt:
		input.Close()
		return ErrAlreadyBuilt
	default:
		input.Close()
		return ErrBuildFailed
	}
	if numberOfBuckets < 1 {
		input.Close()
		return fmt.Errorf("%w: got %d", ErrInvalidBucketCount, numberOfBuckets)
	}

	start := time.Now()
	log := h.opts.Logger.WithDimension(h.dim).WithBuckets(numberOfBuckets)

	if err := h.build(ctx, input, numberOfBuckets, log); err != nil {
		h.state = StateFailed
		if h.treePath != "" {
			_ = h.opts.FS.Remove(h.treePath)
			h.treePath = ""
		}
		log.Error("histogram build failed", "state", h.state.String(), "error", err)
		return err
	}

	h.state = StateBuilt
	h.stats.Duration = time.Since(start)
	log.Debug("histogram built",
		"leaves", h.stats.LeafCount,
		"buckets", h.stats.BucketCount,
		"weight", h.totalWeight,
		"duration", h.stats.Duration,
	)
	return nil
}

func (h *Histogram) build(ctx context.Context, input cursor.Cursor[geom.Rect], numberOfBuckets int, log *Logger) error {
	curve, err := h.sortCurve()
	if err != nil {
		return err
	}

	// Sorting.
	h.state = StateSorting
	log.logStage(h.state)
	if err := ctx.Err(); err != nil {
		input.Close()
		return err
	}
	sorted, err := h.sort(curve, input)
	if err != nil {
		return err
	}

	// Bulk loading.
	h.state = StateBulkLoading
	log.logStage(h.state)
	if err := ctx.Err(); err != nil {
		sorted.Close()
		return err
	}
	tree, err := rtree.BulkLoad(h.dim, sorted, func(o *rtree.Options) {
		o.BlockSize = h.opts.BlockSize
		o.MinFillRatio = h.opts.MinFillRatio
		o.Strategy = h.groupStrategy()
		o.ChunkSize = h.opts.ChunkSize
	})
	if err != nil {
		return err
	}
	if h.opts.PersistTree {
		h.treePath = filepath.Join(h.opts.TempPath,
			fmt.Sprintf("selhist-%d-%d-tree.blk", os.Getpid(), time.Now().UnixNano()))
		if err := tree.Save(h.opts.FS, h.treePath); err != nil {
			return err
		}
	}

	// Extracting leaf-level micro-clusters.
	h.state = StateExtracting
	log.logStage(h.state)
	if err := ctx.Err(); err != nil {
		return err
	}
	entries, err := extractLeaves(tree)
	if err != nil {
		return err
	}
	h.stats.InputCount = tree.Count()
	h.stats.LeafCount = len(entries)
	h.stats.TreeHeight = tree.Height()

	// Partitioning.
	h.state = StatePartitioning
	log.logStage(h.state)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := h.partitionBuckets(entries, numberOfBuckets, curve, log); err != nil {
		return err
	}

	h.totalWeight = geom.SumWeights(entries)
	h.stats.BucketCount = len(h.buckets)
	return nil
}

// sortCurve creates the space-filling curve ordering the input. Hilbert for
// the planar case, Z-order otherwise.
func (h *Histogram) sortCurve() (sfc.Curve, error) {
	if h.dim == 2 {
		return sfc.NewHilbert(h.opts.Universe, h.opts.SFCBits)
	}
	return sfc.NewZOrder(h.opts.Universe, h.opts.SFCBits)
}

func (h *Histogram) sort(curve sfc.Curve, input cursor.Cursor[geom.Rect]) (cursor.Cursor[geom.Rect], error) {
	dim := h.dim
	codec := extsort.Codec[geom.Rect]{
		Size:   geom.EncodedRectSize(dim),
		Append: geom.AppendRect,
		Decode: func(buf []byte) (geom.Rect, error) { return geom.DecodeRect(buf, dim) },
	}
	sorter, err := extsort.New(codec, sfc.Less(curve), func(o *extsort.Options) {
		o.MaxInMemory = h.opts.MaxSortMemory
		o.TempPath = h.opts.TempPath
		o.FS = h.opts.FS
	})
	if err != nil {
		return nil, err
	}
	return sorter.Sort(input)
}

func (h *Histogram) groupStrategy() rtree.GroupStrategy {
	switch h.opts.BulkLoadType {
	case BulkLoadNaive:
		return rtree.GroupNaive
	case BulkLoadSOPT:
		return rtree.GroupSOPT
	default:
		return rtree.GroupGOPT
	}
}

// extractLeaves walks the leaf level of the tree and materializes one
// weighted micro-cluster per leaf.
func extractLeaves(tree *rtree.Tree) ([]geom.Entry, error) {
	nodes, err := cursor.Drain(tree.LevelCursor(0))
	if err != nil {
		return nil, fmt.Errorf("extracting leaf level: %w", err)
	}
	entries := make([]geom.Entry, len(nodes))
	for i, n := range nodes {
		entries[i] = geom.NewWeightedEntry(n.MBR, n.Count, n.AvgExtent)
	}
	return entries, nil
}

// partitionBuckets groups the leaf micro-clusters into at most
// numberOfBuckets buckets and materializes them.
func (h *Histogram) partitionBuckets(entries []geom.Entry, numberOfBuckets int, curve sfc.Curve, log *Logger) error {
	count := len(entries)
	if count == 0 {
		h.buckets = nil
		return nil
	}

	// Histogram already small enough: one bucket per micro-cluster.
	if count <= numberOfBuckets {
		runs := make([]partition.Run, count)
		for i := range runs {
			runs[i] = partition.Run{Start: i, Length: 1}
		}
		h.buckets = materializeBuckets(entries, runs)
		return nil
	}

	// DP bucket-size bounds from the average load. Bounds are expressed in
	// micro-clusters, so the partitioner sees unit weights; true object
	// counts only enter the cost functions and the bucket materialization.
	f := float64(count) / float64(numberOfBuckets)
	b := int64(math.Floor(f * h.opts.MinCapacityRatio))
	if b < 2 {
		b = 2
	}
	B := b + int64(math.Ceil(f))

	shadow := make([]geom.Entry, count)
	for i := range entries {
		shadow[i] = geom.Entry{MBR: entries[i].MBR, Weight: 1}
	}

	proc := h.costProcessor(curve, entries)
	proc.Reset()

	var (
		runs []partition.Run
		err  error
	)
	if count > h.opts.LargeInputThreshold {
		// Chunked delegates to the exact DP when the input fits one chunk;
		// only report an approximate result when it actually chunked.
		h.stats.Chunked = count > h.opts.ChunkSize
		log.Debug("input above threshold, using chunked DP",
			"leaves", count,
			"threshold", h.opts.LargeInputThreshold,
			"chunkSize", h.opts.ChunkSize,
		)
		runs, err = partition.Chunked(shadow, b, B, numberOfBuckets, h.opts.ChunkSize, proc)
	} else {
		runs, err = partition.SOPT(shadow, b, B, numberOfBuckets, proc)

		// An exact bucket-count match is not always feasible under the
		// derived bounds (e.g. count barely above numberOfBuckets). NOPT
		// searches bucket counts up to the requested one instead.
		var infeasible *partition.ErrInfeasiblePartition
		if errors.As(err, &infeasible) {
			log.Debug("exact bucket count infeasible, searching bucket counts",
				"leaves", count, "minWeight", b, "maxWeight", B)
			proc.Reset()
			runs, err = partition.NOPT(shadow, b, B, numberOfBuckets, proc)
		}
	}
	if err != nil {
		return err
	}

	h.buckets = materializeBuckets(entries, runs)
	return nil
}

// costProcessor builds the configured cost processor. The skew grid is
// derived from the real weighted entries, once, before partitioning.
func (h *Histogram) costProcessor(curve sfc.Curve, entries []geom.Entry) partition.CostProcessor {
	switch h.opts.CostModel {
	case CostSkew:
		gridCurve, err := func() (sfc.Curve, error) {
			if h.dim == 2 {
				return sfc.NewHilbert(h.opts.Universe, h.opts.SkewGridBits)
			}
			return sfc.NewZOrder(h.opts.Universe, h.opts.SkewGridBits)
		}()
		if err != nil {
			// Grid bits are validated in New; reuse the sort curve if the
			// grid curve still cannot be built.
			gridCurve = curve
		}
		return partition.NewSkewCost(gridCurve, entries)
	case CostRKMetric:
		return partition.NewRKMetricCost()
	default:
		return partition.NewVolumeCost()
	}
}

// materializeBuckets turns runs of micro-clusters into histogram buckets.
func materializeBuckets(entries []geom.Entry, runs []partition.Run) []Bucket {
	buckets := make([]Bucket, len(runs))
	for i, run := range runs {
		first := entries[run.Start]
		agg := geom.NewWeightedEntry(first.MBR, first.Weight, first.AvgExtent)
		for _, e := range entries[run.Start+1 : run.Start+run.Length] {
			agg.Absorb(e)
		}
		buckets[i] = Bucket{
			MBR:       agg.MBR,
			Weight:    agg.Weight,
			AvgExtent: agg.AvgExtent,
		}
	}
	return buckets
}

// Selectivity estimates the number of stored rectangles overlapping the
// query, assuming uniform density within each bucket: every bucket
// contributes its weight scaled by the fraction of its MBR covered by the
// query. Safe for concurrent use once the histogram is built.
func (h *Histogram) Selectivity(query geom.Rect) (float64, error) {
	if err := h.readable(); err != nil {
		return 0, err
	}
	if query.Dim() != h.dim {
		return 0, &geom.ErrDimensionMismatch{Expected: h.dim, Actual: query.Dim()}
	}

	var estimate float64
	for i := range h.buckets {
		inter, ok := h.buckets[i].MBR.Intersect(query)
		if !ok {
			continue
		}
		area := h.buckets[i].MBR.Area()
		if area == 0 {
			// Degenerate bucket MBR: no density to apportion.
			continue
		}
		estimate += inter.Area() / area * float64(h.buckets[i].Weight)
	}
	return estimate, nil
}

// NumBuckets returns the number of buckets; 0 before Build.
func (h *Histogram) NumBuckets() int { return len(h.buckets) }

// Buckets returns a copy of the bucket list in partition order.
func (h *Histogram) Buckets() ([]Bucket, error) {
	if err := h.readable(); err != nil {
		return nil, err
	}
	out := make([]Bucket, len(h.buckets))
	copy(out, h.buckets)
	return out, nil
}

// TotalWeight returns the summed weight of all buckets, equal to the number
// of input rectangles.
func (h *Histogram) TotalWeight() int64 { return h.totalWeight }

// State returns the build lifecycle state.
func (h *Histogram) State() State { return h.state }

// Stats returns build statistics. Only meaningful once built.
func (h *Histogram) Stats() BuildStats { return h.stats }

// TreePath returns the block file path of the persisted R-tree, or the
// empty string when the tree was not persisted.
func (h *Histogram) TreePath() string { return h.treePath }

func (h *Histogram) readable() error {
	switch h.state {
	case StateBuilt:
		return nil
	case StateFailed:
		return ErrBuildFailed
	default:
		return ErrNotBuilt
	}
}
