package selhist

import (
	"os"

	"github.com/umr-dbs/selhist/geom"
	"github.com/umr-dbs/selhist/internal/fs"
)

// BulkLoadType selects the leaf grouping strategy of the R-tree bulk load.
type BulkLoadType int

const (
	// BulkLoadGOPT groups leaves with the unbounded cost-based chain DP.
	BulkLoadGOPT BulkLoadType = iota

	// BulkLoadNaive packs leaves at full capacity in input order.
	BulkLoadNaive

	// BulkLoadSOPT groups leaves with the bounded DP, chunked per block of
	// input.
	BulkLoadSOPT
)

func (t BulkLoadType) String() string {
	switch t {
	case BulkLoadGOPT:
		return "GOPT"
	case BulkLoadNaive:
		return "Naive"
	case BulkLoadSOPT:
		return "SOPT"
	default:
		return "Unknown"
	}
}

// CostModel selects the cost function driving the histogram partitioning.
type CostModel int

const (
	// CostVolume scores a bucket by the volume of its union MBR.
	CostVolume CostModel = iota

	// CostSkew scores a bucket by the spatial skew of an occupancy grid
	// restricted to the bucket footprint.
	CostSkew

	// CostRKMetric scores a bucket by the uniformity of its own interior,
	// estimated via recursive median splits.
	CostRKMetric
)

func (m CostModel) String() string {
	switch m {
	case CostVolume:
		return "Volume"
	case CostSkew:
		return "Skew"
	case CostRKMetric:
		return "RKMetric"
	default:
		return "Unknown"
	}
}

// Options contains the histogram configuration. All values are validated by
// New before any I/O begins.
type Options struct {
	// Universe is the bounding box of the input data, required to anchor
	// the space-filling curve. Defaults to the unit cube.
	Universe geom.Rect

	// BlockSize is the storage block size in bytes for sort spill and
	// R-tree blocks.
	BlockSize int

	// TempPath is the scratch directory for sort spill and tree files.
	// Concurrent builds must use non-colliding directories; this is not
	// enforced.
	TempPath string

	// MinCapacityRatio is the minimum DP bucket size as a fraction of the
	// average bucket load.
	MinCapacityRatio float64

	// ChunkSize is the chunk length of the chunked DP heuristic.
	ChunkSize int

	// LargeInputThreshold is the leaf count above which the chunked DP
	// heuristic replaces the exact bounded DP. Histograms built above this
	// threshold are per-chunk optimal only.
	LargeInputThreshold int

	// BulkLoadType selects the R-tree leaf grouping strategy.
	BulkLoadType BulkLoadType

	// CostModel selects the partitioning cost function.
	CostModel CostModel

	// SFCBits is the per-dimension resolution of the sort order curve.
	// Zero picks the finest resolution fitting 64 bits.
	SFCBits int

	// SkewGridBits is the per-dimension resolution of the skew occupancy
	// grid. Only used with CostSkew.
	SkewGridBits int

	// MinFillRatio is the minimum R-tree leaf occupancy relative to leaf
	// capacity.
	MinFillRatio float64

	// MaxSortMemory is the maximum number of rectangles the external sort
	// holds in memory per run.
	MaxSortMemory int

	// PersistTree writes the bulk-loaded tree to a block file in TempPath
	// and keeps it after Build. By default the tree is discarded once the
	// leaf aggregates are extracted.
	PersistTree bool

	// Logger receives build diagnostics. Defaults to a no-op logger.
	Logger *Logger

	// FS is the filesystem used for spill and block files. Intended for
	// tests; defaults to the local filesystem.
	FS fs.FileSystem
}

// DefaultOptions contains the default histogram configuration.
var DefaultOptions = Options{
	BlockSize:           4096,
	MinCapacityRatio:    0.5,
	ChunkSize:           100000,
	LargeInputThreshold: 20000,
	BulkLoadType:        BulkLoadGOPT,
	CostModel:           CostVolume,
	SkewGridBits:        6,
	MinFillRatio:        0.5,
	MaxSortMemory:       1 << 17,
}

// WithUniverse sets the data universe anchoring the space-filling curve.
func WithUniverse(u geom.Rect) func(*Options) {
	return func(o *Options) { o.Universe = u }
}

// WithTempPath sets the scratch directory for spill and tree files.
func WithTempPath(path string) func(*Options) {
	return func(o *Options) { o.TempPath = path }
}

// WithCostModel selects the partitioning cost function.
func WithCostModel(m CostModel) func(*Options) {
	return func(o *Options) { o.CostModel = m }
}

// WithBulkLoadType selects the R-tree leaf grouping strategy.
func WithBulkLoadType(t BulkLoadType) func(*Options) {
	return func(o *Options) { o.BulkLoadType = t }
}

// WithLogger injects a logger for build diagnostics.
func WithLogger(l *Logger) func(*Options) {
	return func(o *Options) { o.Logger = l }
}

// validate checks the configuration, filling derived defaults. It must not
// touch the filesystem: configuration failures surface before any I/O.
func (o *Options) validate(dim int) error {
	if dim < 1 {
		return &ConfigError{Option: "dimension", Value: dim, Reason: "must be positive"}
	}
	if o.BlockSize < geom.EncodedRectSize(dim)*2 {
		return &ConfigError{Option: "BlockSize", Value: o.BlockSize, Reason: "too small for two rectangle records"}
	}
	if o.MinCapacityRatio <= 0 || o.MinCapacityRatio > 1 {
		return &ConfigError{Option: "MinCapacityRatio", Value: o.MinCapacityRatio, Reason: "must be in (0,1]"}
	}
	if o.ChunkSize < 2 {
		return &ConfigError{Option: "ChunkSize", Value: o.ChunkSize, Reason: "must be at least 2"}
	}
	if o.LargeInputThreshold < 1 {
		return &ConfigError{Option: "LargeInputThreshold", Value: o.LargeInputThreshold, Reason: "must be positive"}
	}
	if o.MinFillRatio <= 0 || o.MinFillRatio > 1 {
		return &ConfigError{Option: "MinFillRatio", Value: o.MinFillRatio, Reason: "must be in (0,1]"}
	}
	if o.MaxSortMemory < 2 {
		return &ConfigError{Option: "MaxSortMemory", Value: o.MaxSortMemory, Reason: "must be at least 2"}
	}
	switch o.BulkLoadType {
	case BulkLoadNaive, BulkLoadGOPT, BulkLoadSOPT:
	default:
		return &ConfigError{Option: "BulkLoadType", Value: int(o.BulkLoadType), Reason: "unknown bulk load type"}
	}
	switch o.CostModel {
	case CostVolume, CostSkew, CostRKMetric:
	default:
		return &ConfigError{Option: "CostModel", Value: int(o.CostModel), Reason: "unknown cost model"}
	}

	if o.Universe.IsZero() {
		lo := make([]float64, dim)
		hi := make([]float64, dim)
		for d := range hi {
			hi[d] = 1
		}
		o.Universe = geom.Rect{Lo: lo, Hi: hi}
	}
	if o.Universe.Dim() != dim {
		return &ConfigError{Option: "Universe", Value: o.Universe, Reason: "dimensionality mismatch"}
	}

	if o.SFCBits == 0 {
		o.SFCBits = 64 / dim
		if o.SFCBits > 20 {
			o.SFCBits = 20
		}
	}
	if o.SFCBits < 1 || o.SFCBits*dim > 64 {
		return &ConfigError{Option: "SFCBits", Value: o.SFCBits, Reason: "bits times dimension must fit 64"}
	}
	if o.SkewGridBits < 1 || o.SkewGridBits*dim > 64 {
		return &ConfigError{Option: "SkewGridBits", Value: o.SkewGridBits, Reason: "bits times dimension must fit 64"}
	}

	if o.TempPath == "" {
		o.TempPath = os.TempDir()
	}
	if o.Logger == nil {
		o.Logger = NoopLogger()
	}
	if o.FS == nil {
		o.FS = fs.Default
	}
	return nil
}
