// Package stats holds accuracy scores and the trailing-window statistics used by feature
// engineering.
package stats

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DetectOutliers returns the indices of y lying outside the percentile range widened by the tukey
// factor.
func DetectOutliers(y []float64, lowerPerc, upperPerc, tukeyFactor float64) []int {
	if len(y) == 0 {
		return nil
	}
	lowerPerc = math.Max(lowerPerc, 0.0)
	upperPerc = math.Min(upperPerc, 1.0)
	tukeyFactor = math.Max(tukeyFactor, 0.0)

	yCopy := make([]float64, len(y))
	copy(yCopy, y)
	sort.Float64s(yCopy)
	lowerIdx := int(math.Floor(float64(len(yCopy)-1) * lowerPerc))
	upperIdx := int(math.Ceil(float64(len(yCopy)-1) * upperPerc))

	lower := yCopy[lowerIdx]
	upper := yCopy[upperIdx]
	innerRange := upper - lower
	lower -= innerRange * tukeyFactor
	upper += innerRange * tukeyFactor

	var outlierIdx []int
	for i := 0; i < len(y); i++ {
		if y[i] > upper || y[i] < lower {
			outlierIdx = append(outlierIdx, i)
		}
	}
	return outlierIdx
}

// Trailing returns up to w values of y strictly before index end.
func Trailing(y []float64, end, w int) []float64 {
	end = min(end, len(y))
	start := max(end-w, 0)
	if start >= end {
		return nil
	}
	return y[start:end]
}

// Mean returns the mean of x or NaN when x is empty.
func Mean(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return stat.Mean(x, nil)
}

// StdDev returns the sample standard deviation of x. Fewer than two values yields 0.
func StdDev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// Min returns the minimum of x or NaN when x is empty.
func Min(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Min(x)
}

// Max returns the maximum of x or NaN when x is empty.
func Max(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	return floats.Max(x)
}

// RatioChange returns (curr-prev)/prev guarding a zero or non-finite denominator with 0.
func RatioChange(curr, prev float64) float64 {
	if prev == 0 || math.IsNaN(prev) || math.IsInf(prev, 0) || math.IsNaN(curr) {
		return 0
	}
	res := (curr - prev) / prev
	if math.IsInf(res, 0) || math.IsNaN(res) {
		return 0
	}
	return res
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}

// Finite replaces NaN and infinities with fallback.
func Finite(v, fallback float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fallback
	}
	return v
}

// MonthlyMeans returns the mean of y grouped by calendar month (index 1-12) and the overall mean.
// Months with no observations are NaN.
func MonthlyMeans(months []int, y []float64) ([13]float64, float64) {
	var sums, counts [13]float64
	for i, m := range months {
		if m < 1 || m > 12 {
			continue
		}
		sums[m] += y[i]
		counts[m]++
	}
	var means [13]float64
	for m := 1; m <= 12; m++ {
		if counts[m] == 0 {
			means[m] = math.NaN()
			continue
		}
		means[m] = sums[m] / counts[m]
	}
	return means, Mean(y)
}
