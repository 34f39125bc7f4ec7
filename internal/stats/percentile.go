package stats

import "sort"

// Percentile returns the linear-interpolated order statistic of samples at
// percentile p in [0, 100]. The input slice is never mutated. Returns 0 for
// an empty sample set.
func Percentile(samples []float64, p float64) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := float64(len(sorted)-1) * p / 100
	lower := int(index)
	upper := lower + 1
	if upper >= len(sorted) {
		return sorted[len(sorted)-1]
	}
	weight := index - float64(lower)
	return sorted[lower]*(1-weight) + sorted[upper]*weight
}
