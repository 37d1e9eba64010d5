package spectral

import (
	"math"
)

// SpectralFlux computes spectral flux (measure of spectral change)
type SpectralFlux struct {
	// compression is the gamma in log(1 + gamma*|X|); 0 disables compression
	compression float64
}

// NewSpectralFlux creates a new spectral flux calculator
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{}
}

// NewLogSpectralFlux creates a spectral flux calculator that log-compresses
// magnitudes first, which keeps quiet onsets visible next to loud ones.
func NewLogSpectralFlux(compression float64) *SpectralFlux {
	return &SpectralFlux{compression: compression}
}

// Compute calculates the half-wave rectified spectral flux of a spectrogram.
// The result has one value per frame; the first frame has no predecessor
// and is 0.
func (sf *SpectralFlux) Compute(spectrogram [][]float64) []float64 {
	flux := make([]float64, len(spectrogram))
	if len(spectrogram) < 2 {
		return flux
	}

	prev := sf.compress(spectrogram[0])
	for t := 1; t < len(spectrogram); t++ {
		cur := sf.compress(spectrogram[t])
		sum := 0.0
		for f := range min(len(cur), len(prev)) {
			// Only positive changes (energy increases)
			if diff := cur[f] - prev[f]; diff > 0 {
				sum += diff
			}
		}
		flux[t] = sum
		prev = cur
	}

	return flux
}

func (sf *SpectralFlux) compress(frame []float64) []float64 {
	if sf.compression <= 0 {
		return frame
	}
	out := make([]float64, len(frame))
	for i, v := range frame {
		out[i] = math.Log1p(sf.compression * v)
	}
	return out
}
