package stats

import (
	"math"
	"sort"
)

// Median returns the median of values, averaging the two middle elements for
// even lengths. It returns NaN for an empty slice and propagates NaN inputs.
// values is not modified.
func Median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	for _, v := range values {
		if math.IsNaN(v) {
			return math.NaN()
		}
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2
	}
	return sorted[n/2]
}

// NaNMedian is Median with NaN entries ignored. It returns NaN when no finite
// value is left.
func NaNMedian(values []float64) float64 {
	finite := make([]float64, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) {
			finite = append(finite, v)
		}
	}
	return Median(finite)
}

// MAD returns the median absolute deviation around the median.
func MAD(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}
	med := Median(values)
	dev := make([]float64, len(values))
	for i, v := range values {
		dev[i] = math.Abs(v - med)
	}
	return Median(dev)
}
