package core

import (
	"math"
	"sort"

	"resultscore/pkg/domain"
)

// computeStatistics derives descriptive statistics over a score cohort.
// Standard deviation is the population form; median is the sorted-array
// midpoint; quartiles sit at the 25th and 75th percentile indexes.
func computeStatistics(scores []float64) (domain.ScoreStatistics, error) {
	if len(scores) == 0 {
		return domain.ScoreStatistics{}, domain.ComputationError{Operation: "statistics", Message: "empty score set"}
	}
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	var sum float64
	for _, s := range sorted {
		sum += s
	}
	mean := sum / float64(len(sorted))

	var variance float64
	for _, s := range sorted {
		d := s - mean
		variance += d * d
	}
	variance /= float64(len(sorted))

	return domain.ScoreStatistics{
		Count:  len(sorted),
		Mean:   mean,
		StdDev: math.Sqrt(variance),
		Median: medianOf(sorted),
		Mode:   modeOf(sorted),
		Q1:     percentileOf(sorted, 25),
		Q3:     percentileOf(sorted, 75),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}, nil
}

func medianOf(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// modeOf returns the most frequent value; ties resolve to the smallest.
func modeOf(sorted []float64) float64 {
	freq := make(map[float64]int, len(sorted))
	for _, s := range sorted {
		freq[s]++
	}
	best := sorted[0]
	bestCount := 0
	for _, s := range sorted {
		if c := freq[s]; c > bestCount {
			best = s
			bestCount = c
		}
	}
	return best
}

func percentileOf(sorted []float64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(math.Floor(pct / 100 * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// pearson computes the Pearson correlation coefficient between two vectors.
// Degenerate vectors (zero variance or mismatched length) yield 0.
func pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) == 0 {
		return 0
	}
	n := float64(len(x))
	var sumX, sumY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
	}
	meanX := sumX / n
	meanY := sumY / n
	var cov, varX, varY float64
	for i := range x {
		dx := x[i] - meanX
		dy := y[i] - meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}

// clampScore bounds a transformed score to the [0,100] reporting range.
func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

// meanOf averages a non-empty slice; empty slices yield 0.
func meanOf(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores))
}
