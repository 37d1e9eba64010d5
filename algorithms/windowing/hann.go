// Package windowing builds analysis window coefficients.
package windowing

import "math"

// Hann returns the coefficients of a Hann window. A periodic window
// (symmetric false) sums to a constant at 50% overlap and is the one to
// use for spectral frames.
func Hann(size int, symmetric bool) []float64 {
	if size <= 0 {
		return nil
	}
	w := make([]float64, size)
	if size == 1 {
		w[0] = 1
		return w
	}

	n := float64(size)
	if symmetric {
		n--
	}
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/n)
	}
	return w
}

// Apply multiplies frame by w in place. Samples past the shorter of the
// two are left untouched.
func Apply(frame, w []float64) {
	for i := range min(len(frame), len(w)) {
		frame[i] *= w[i]
	}
}
