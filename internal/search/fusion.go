package search

import (
	"math"
	"sort"
)

// RRFK is the reciprocal rank fusion constant.
const RRFK = 60

// Ranked is one entry of a ranked result list, best first.
type Ranked struct {
	Key   string
	Score float64
}

// FuseRRF merges ranked lists with reciprocal rank fusion. Each appearance
// at rank i contributes 1/(k+i+1), plus a small score-proportional term so
// near-ties preserve the underlying ordering. Output is sorted by fused
// score descending, ties broken by key ascending for determinism.
func FuseRRF(lists [][]Ranked, k int) []Ranked {
	fused := make(map[string]float64)
	for _, list := range lists {
		for i, r := range list {
			fused[r.Key] += 1.0/float64(k+i+1) + r.Score*1e-3
		}
	}

	out := make([]Ranked, 0, len(fused))
	for key, score := range fused {
		out = append(out, Ranked{Key: key, Score: score})
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		return out[a].Key < out[b].Key
	})
	return out
}

// Cosine returns the cosine similarity of two vectors, 0 when either is a
// zero vector or the dimensions differ.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
