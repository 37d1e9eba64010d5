package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// Percentile calculates the p-th percentile (p between 0 and 1)
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 || p < 0 || p > 1 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Median returns the middle value, averaging the two central values for even
// lengths.
func Median(data []float64) float64 {
	n := len(data)
	if n == 0 {
		return 0.0
	}
	sorted := make([]float64, n)
	copy(sorted, data)
	sort.Float64s(sorted)
	if n%2 == 0 {
		return (sorted[n/2-1] + sorted[n/2]) / 2.0
	}
	return sorted[n/2]
}

// RMS calculates root mean square
func RMS(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return math.Sqrt(floats.Dot(data, data) / float64(len(data)))
}

// Normalize normalizes data to zero mean and unit variance. Constant input is
// only mean-centred.
func Normalize(data []float64) []float64 {
	if len(data) == 0 {
		return data
	}

	mean, std := stat.MeanStdDev(data, nil)
	normalized := make([]float64, len(data))
	if len(data) < 2 || std < 1e-10 || math.IsNaN(std) {
		for i, val := range data {
			normalized[i] = val - mean
		}
		return normalized
	}

	for i, val := range data {
		normalized[i] = (val - mean) / std
	}
	return normalized
}

// ParabolicPeak refines the location of an extremum at idx by fitting a
// parabola through its neighbours. It returns the fractional index and the
// interpolated value.
func ParabolicPeak(data []float64, idx int) (float64, float64) {
	if idx <= 0 || idx >= len(data)-1 {
		if idx >= 0 && idx < len(data) {
			return float64(idx), data[idx]
		}
		return float64(idx), 0
	}

	y1, y2, y3 := data[idx-1], data[idx], data[idx+1]
	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2
	if a == 0 {
		return float64(idx), y2
	}

	shift := -b / (2 * a)
	if shift > 1 || shift < -1 {
		return float64(idx), y2
	}
	return float64(idx) + shift, y2 - b*b/(4*a)
}

// NextPowerOf2 returns the smallest power of two >= n.
func NextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Sanitize replaces NaN and infinite samples with zero in place.
func Sanitize(data []float64) {
	for i, v := range data {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			data[i] = 0
		}
	}
}
