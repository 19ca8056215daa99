package partition

import (
	"github.com/umr-dbs/selhist/geom"
)

// DefaultChunkSize is the default chunk length of the chunked heuristic.
const DefaultChunkSize = 100000

// Chunked partitions large inputs with bounded memory: the entry array is
// cut into fixed-size chunks, the bounded DP runs independently on each
// chunk with a proportional share of the bucket budget, and the per-chunk
// results are concatenated.
//
// The result is optimal per chunk but not globally optimal; buckets never
// straddle a chunk boundary. The total bucket count never exceeds buckets.
func Chunked(entries []geom.Entry, b, B int64, buckets, chunkSize int, proc CostProcessor) ([]Run, error) {
	n := len(entries)
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if n <= chunkSize {
		return SOPT(entries, b, B, buckets, proc)
	}
	if err := checkBounds(n, buckets, b, B); err != nil {
		return nil, err
	}

	// Never cut more chunks than there are buckets to hand out.
	numChunks := (n + chunkSize - 1) / chunkSize
	if numChunks > buckets {
		numChunks = buckets
		chunkSize = (n + numChunks - 1) / numChunks
		numChunks = (n + chunkSize - 1) / chunkSize
	}

	// Proportional bucket budget per chunk, floored, at least 1.
	budgets := make([]int, numChunks)
	assigned := 0
	for c := 0; c < numChunks; c++ {
		length := chunkLen(n, chunkSize, c)
		budgets[c] = buckets * length / n
		if budgets[c] < 1 {
			budgets[c] = 1
		}
		assigned += budgets[c]
	}
	for c := 0; assigned < buckets && c < numChunks; c++ {
		budgets[c]++
		assigned++
	}
	for c := numChunks - 1; assigned > buckets && c >= 0; c-- {
		if budgets[c] > 1 {
			budgets[c]--
			assigned--
		}
	}

	var runs []Run
	for c := 0; c < numChunks; c++ {
		start := c * chunkSize
		chunk := entries[start : start+chunkLen(n, chunkSize, c)]

		proc.Reset()
		chunkRuns, err := SOPT(chunk, b, B, budgets[c], proc)
		if err != nil {
			return nil, err
		}
		for _, r := range chunkRuns {
			runs = append(runs, Run{Start: r.Start + start, Length: r.Length})
		}
	}
	return runs, nil
}

func chunkLen(n, chunkSize, c int) int {
	start := c * chunkSize
	if n-start < chunkSize {
		return n - start
	}
	return chunkSize
}
