// Package rtree provides a packed R-tree bulk-loaded bottom-up from a
// sorted rectangle cursor.
//
// The loader consumes rectangles in space-filling-curve order and groups
// consecutive runs into leaves, either naively at full capacity or via
// cost-based partitioning (GOPT or chunked SOPT), which yields near-uniform
// leaf occupancy and tight leaf MBRs. Upper levels are packed naively; the
// histogram pipeline only ever reads leaf-level aggregates.
package rtree

import (
	"fmt"

	"github.com/umr-dbs/selhist/cursor"
	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/partition"
)

// GroupStrategy selects how consecutive rectangles are grouped into leaves
// during bulk loading.
type GroupStrategy int

const (
	// GroupNaive packs leaves at full capacity in input order.
	GroupNaive GroupStrategy = iota

	// GroupGOPT groups leaves with the unbounded cost-based chain DP.
	GroupGOPT

	// GroupSOPT groups leaves with the bounded DP, chunked for large inputs.
	GroupSOPT
)

func (s GroupStrategy) String() string {
	switch s {
	case GroupNaive:
		return "Naive"
	case GroupGOPT:
		return "GOPT"
	case GroupSOPT:
		return "SOPT"
	default:
		return "Unknown"
	}
}

// Options contains the bulk-load configuration.
type Options struct {
	// BlockSize is the storage block size in bytes. Leaf capacity is derived
	// from it and the rectangle record width.
	BlockSize int

	// MinFillRatio is the minimum leaf occupancy relative to capacity.
	MinFillRatio float64

	// Strategy selects the leaf grouping algorithm.
	Strategy GroupStrategy

	// Cost is the processor scoring candidate leaves for the cost-based
	// strategies. Defaults to union volume.
	Cost partition.CostProcessor

	// ChunkSize bounds the DP problem size for GroupSOPT.
	ChunkSize int
}

// DefaultOptions contains the default bulk-load configuration.
var DefaultOptions = Options{
	BlockSize:    4096,
	MinFillRatio: 0.5,
	Strategy:     GroupGOPT,
	ChunkSize:    partition.DefaultChunkSize,
}

// NodeEntry is the aggregate view of one tree node exposed by level
// cursors: its MBR, the number of raw rectangles underneath it, and the
// running average of their extents.
type NodeEntry struct {
	MBR       geom.Rect
	Count     int64
	AvgExtent []float64
}

// node is the packed in-memory node representation. Children of an
// internal node occupy the index range [childStart, childEnd) of the level
// below.
type node struct {
	mbr        geom.Rect
	count      int64
	avgExtent  []float64
	samples    int
	childStart int
	childEnd   int
}

// Tree is a packed, read-only R-tree. levels[0] holds the leaves, the last
// level holds the single root (absent for an empty tree).
type Tree struct {
	dim    int
	levels [][]node
	opts   Options
}

// BulkLoad builds a tree of the given dimensionality from a cursor of
// rectangles sorted in space-filling-curve order. The cursor is closed
// before BulkLoad returns. An exhausted cursor yields an empty tree.
func BulkLoad(dim int, cur cursor.Cursor[geom.Rect], optFns ...func(o *Options)) (*Tree, error) {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if dim < 1 {
		return nil, fmt.Errorf("rtree: dimensionality must be positive, got %d", dim)
	}
	capacity := leafCapacity(opts.BlockSize, dim)
	if capacity < 2 {
		return nil, fmt.Errorf("rtree: block size %d too small for dimension %d", opts.BlockSize, dim)
	}
	if opts.MinFillRatio <= 0 || opts.MinFillRatio > 1 {
		return nil, fmt.Errorf("rtree: min fill ratio must be in (0,1], got %g", opts.MinFillRatio)
	}
	if opts.Cost == nil {
		opts.Cost = partition.NewVolumeCost()
	}

	rects, err := cursor.Drain(cur)
	if err != nil {
		return nil, fmt.Errorf("rtree: draining sorted input: %w", err)
	}

	t := &Tree{dim: dim, opts: opts}
	if len(rects) == 0 {
		return t, nil
	}

	leaves, err := t.buildLeaves(rects, capacity)
	if err != nil {
		return nil, err
	}
	t.levels = append(t.levels, leaves)

	// Pack upper levels naively until a single root remains.
	for len(t.levels[len(t.levels)-1]) > 1 {
		t.levels = append(t.levels, packLevel(t.levels[len(t.levels)-1], capacity))
	}
	return t, nil
}

// leafCapacity derives the number of rectangle records fitting one block.
func leafCapacity(blockSize, dim int) int {
	return blockSize / geom.EncodedRectSize(dim)
}

// buildLeaves groups the sorted rectangles into leaf nodes.
func (t *Tree) buildLeaves(rects []geom.Rect, capacity int) ([]node, error) {
	entries := make([]geom.Entry, len(rects))
	for i, r := range rects {
		if r.Dim() != t.dim {
			return nil, &geom.ErrDimensionMismatch{Expected: t.dim, Actual: r.Dim()}
		}
		entries[i] = geom.NewEntry(r)
	}

	minCap := int64(float64(capacity) * t.opts.MinFillRatio)
	if minCap < 1 {
		minCap = 1
	}

	// Inputs fitting one block become a single leaf regardless of strategy.
	if len(entries) <= capacity {
		return t.materializeLeaves(entries, []partition.Run{{Start: 0, Length: len(entries)}}), nil
	}

	var (
		runs []partition.Run
		err  error
	)
	switch t.opts.Strategy {
	case GroupNaive:
		runs = naiveRuns(len(entries), capacity)
	case GroupGOPT:
		runs, err = partition.GOPT(entries, minCap, int64(capacity), t.opts.Cost)
	case GroupSOPT:
		target := (int(minCap) + capacity) / 2
		buckets := (len(entries) + target - 1) / target
		runs, err = partition.Chunked(entries, minCap, int64(capacity), buckets, t.opts.ChunkSize, t.opts.Cost)
	default:
		return nil, fmt.Errorf("rtree: unknown group strategy %d", t.opts.Strategy)
	}
	if err != nil {
		return nil, fmt.Errorf("rtree: leaf grouping: %w", err)
	}

	return t.materializeLeaves(entries, runs), nil
}

func (t *Tree) materializeLeaves(entries []geom.Entry, runs []partition.Run) []node {
	leaves := make([]node, len(runs))
	for i, run := range runs {
		first := entries[run.Start]
		agg := geom.NewWeightedEntry(first.MBR, first.Weight, first.AvgExtent)
		for _, e := range entries[run.Start+1 : run.Start+run.Length] {
			agg.Absorb(e)
		}
		leaves[i] = node{
			mbr:        agg.MBR,
			count:      agg.Weight,
			avgExtent:  agg.AvgExtent,
			samples:    agg.Samples(),
			childStart: run.Start,
			childEnd:   run.Start + run.Length,
		}
	}
	return leaves
}

func naiveRuns(n, capacity int) []partition.Run {
	var runs []partition.Run
	for start := 0; start < n; start += capacity {
		length := capacity
		if n-start < capacity {
			length = n - start
		}
		runs = append(runs, partition.Run{Start: start, Length: length})
	}
	return runs
}

// packLevel groups a level's nodes into parents at full fan-out.
func packLevel(children []node, fanout int) []node {
	var parents []node
	for start := 0; start < len(children); start += fanout {
		end := start + fanout
		if end > len(children) {
			end = len(children)
		}

		p := node{
			mbr:        children[start].mbr.Clone(),
			count:      children[start].count,
			avgExtent:  append([]float64(nil), children[start].avgExtent...),
			samples:    1,
			childStart: start,
			childEnd:   end,
		}
		for _, c := range children[start+1 : end] {
			p.mbr.ExtendInPlace(c.mbr)
			p.count += c.count
			for d := range p.avgExtent {
				p.avgExtent[d] = (p.avgExtent[d]*float64(p.samples) + c.avgExtent[d]) / float64(p.samples+1)
			}
			p.samples++
		}
		parents = append(parents, p)
	}
	return parents
}

// Dim returns the dimensionality of the indexed rectangles.
func (t *Tree) Dim() int { return t.dim }

// Height returns the number of levels; 0 for an empty tree.
func (t *Tree) Height() int { return len(t.levels) }

// NumLeaves returns the number of leaf nodes.
func (t *Tree) NumLeaves() int {
	if len(t.levels) == 0 {
		return 0
	}
	return len(t.levels[0])
}

// Count returns the total number of indexed rectangles.
func (t *Tree) Count() int64 {
	if len(t.levels) == 0 {
		return 0
	}
	root := t.levels[len(t.levels)-1]
	var total int64
	for i := range root {
		total += root[i].count
	}
	return total
}

// Root returns the aggregate entry of the root node and false for an empty
// tree.
func (t *Tree) Root() (NodeEntry, bool) {
	if len(t.levels) == 0 {
		return NodeEntry{}, false
	}
	return t.entryAt(len(t.levels)-1, 0), true
}

// LevelCursor returns a single-pass cursor over the aggregate entries of
// all nodes at the given level. Level 0 holds the leaves. Levels outside
// the tree produce an empty cursor; every call opens a fresh cursor.
func (t *Tree) LevelCursor(level int) cursor.Cursor[NodeEntry] {
	if level < 0 || level >= len(t.levels) {
		return cursor.Empty[NodeEntry]()
	}
	return &levelCursor{tree: t, level: level}
}

func (t *Tree) entryAt(level, i int) NodeEntry {
	n := t.levels[level][i]
	return NodeEntry{
		MBR:       n.mbr.Clone(),
		Count:     n.count,
		AvgExtent: append([]float64(nil), n.avgExtent...),
	}
}

type levelCursor struct {
	tree  *Tree
	level int
	pos   int
}

func (c *levelCursor) Next() (NodeEntry, bool) {
	if c.pos >= len(c.tree.levels[c.level]) {
		return NodeEntry{}, false
	}
	e := c.tree.entryAt(c.level, c.pos)
	c.pos++
	return e, true
}

func (c *levelCursor) Err() error   { return nil }
func (c *levelCursor) Close() error { return nil }
