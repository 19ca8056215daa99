package geom

// Entry is a weighted micro-cluster: a rectangle summarizing a group of raw
// objects, carrying the count of objects it stands for and the running
// average of their per-dimension extents.
//
// AvgExtent is a plain running mean over contributors: folding in an entry
// that itself summarizes many objects counts as a single contribution,
// regardless of its Weight. This matches the historic behavior of the
// reference estimator and is kept as-is for comparability; a weight-weighted
// mean would arguably be more accurate.
type Entry struct {
	MBR       Rect
	Weight    int64
	AvgExtent []float64

	// samples counts contributors folded into AvgExtent so far.
	samples int
}

// NewEntry creates a micro-cluster for a single raw rectangle.
func NewEntry(r Rect) Entry {
	return Entry{
		MBR:       r.Clone(),
		Weight:    1,
		AvgExtent: r.Extents(),
		samples:   1,
	}
}

// NewWeightedEntry creates a micro-cluster that already summarizes weight
// raw objects, e.g. one R-tree leaf. avgExtent is adopted as the mean over
// one contribution.
func NewWeightedEntry(r Rect, weight int64, avgExtent []float64) Entry {
	return Entry{
		MBR:       r.Clone(),
		Weight:    weight,
		AvgExtent: append([]float64(nil), avgExtent...),
		samples:   1,
	}
}

// Absorb folds another micro-cluster into e: the MBR grows to cover both,
// weights add up, and AvgExtent is updated as an unweighted running mean.
func (e *Entry) Absorb(o Entry) {
	if e.samples == 0 {
		e.MBR = o.MBR.Clone()
		e.Weight = o.Weight
		e.AvgExtent = append([]float64(nil), o.AvgExtent...)
		e.samples = 1
		return
	}
	e.MBR.ExtendInPlace(o.MBR)
	e.Weight += o.Weight
	e.UpdateAverage(o.AvgExtent)
}

// UpdateAverage folds one more contributor's extents into the running mean.
// The mean is unweighted: each call counts as exactly one contribution.
func (e *Entry) UpdateAverage(extents []float64) {
	n := float64(e.samples)
	for d := range e.AvgExtent {
		e.AvgExtent[d] = (e.AvgExtent[d]*n + extents[d]) / (n + 1)
	}
	e.samples++
}

// Samples returns the number of contributors folded into AvgExtent.
func (e *Entry) Samples() int { return e.samples }

// SumWeights returns the total weight of a slice of entries.
func SumWeights(entries []Entry) int64 {
	var sum int64
	for i := range entries {
		sum += entries[i].Weight
	}
	return sum
}
