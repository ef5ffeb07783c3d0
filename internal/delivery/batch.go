// Package delivery splits artifacts into transport-sized batches and sends
// them one batch at a time.
package delivery

import "pagepress/internal/models"

// Partition groups artifacts greedily in input order. A batch never holds
// more than maxCount artifacts, and its total size never exceeds maxBytes
// unless it holds a single artifact that is oversize on its own.
// Non-positive limits are treated as unlimited.
func Partition(artifacts []models.Artifact, maxCount int, maxBytes int64) [][]models.Artifact {
	idx := partitionIndices(artifacts, maxCount, maxBytes)
	out := make([][]models.Artifact, len(idx))
	for i, batch := range idx {
		out[i] = make([]models.Artifact, len(batch))
		for j, k := range batch {
			out[i][j] = artifacts[k]
		}
	}
	return out
}

func partitionIndices(artifacts []models.Artifact, maxCount int, maxBytes int64) [][]int {
	var (
		batches [][]int
		cur     []int
		curSize int64
	)
	for i, a := range artifacts {
		size := sizeOf(a)
		full := maxCount > 0 && len(cur) >= maxCount
		over := maxBytes > 0 && curSize+size > maxBytes
		if len(cur) > 0 && (full || over) {
			batches = append(batches, cur)
			cur, curSize = nil, 0
		}
		cur = append(cur, i)
		curSize += size
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}
	return batches
}

func sizeOf(a models.Artifact) int64 {
	if a.Data != nil {
		return int64(len(a.Data))
	}
	return int64(a.Size)
}
