package stats

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-vocal/algorithms/spectral"
)

// CorrelationResult contains cross-correlation analysis results
type CorrelationResult struct {
	// Primary correlation values, Correlations[i] belongs to Lags[i]
	Correlations []float64 `json:"correlations"`
	Lags         []int     `json:"lags"`

	// Peak correlation information
	PeakCorrelation float64 `json:"peak_correlation"`
	PeakLag         float64 `json:"peak_lag"` // parabolically refined, in samples
	PeakIndex       int     `json:"peak_index"`

	// Correlation quality metrics
	Sharpness      float64 `json:"sharpness"`        // Peak sharpness
	SecondPeak     float64 `json:"second_peak"`      // Highest value outside the main lobe
	PeakToSidelobe float64 `json:"peak_to_sidelobe"` // Peak-to-sidelobe ratio in dB

	MaxLag        int `json:"max_lag"`
	OverlapLength int `json:"overlap_length"` // overlap at the peak lag
}

// CrossCorrelation computes the normalized cross-correlation of two signals
// over a bounded lag range.
//
// A positive lag L means signal2[n+L] lines up with signal1[n], i.e. the
// second signal is late.
//
// References:
// - Oppenheim, A.V., Schafer, R.W. (2010). "Discrete-Time Signal Processing"
// - Lewis, J.P. (1995). "Fast Template Matching"
type CrossCorrelation struct {
	maxLag     int
	minOverlap int

	// Numerical stability parameters
	minEnergy       float64
	normalizeInputs bool
	sidelobeGuard   int

	fft *spectral.FFT
}

// NewCrossCorrelation creates a new cross-correlation calculator with default settings
func NewCrossCorrelation(maxLag int) *CrossCorrelation {
	return &CrossCorrelation{
		maxLag:          maxLag,
		minOverlap:      1,
		minEnergy:       1e-12,
		normalizeInputs: true,
		sidelobeGuard:   3,
		fft:             spectral.NewFFT(),
	}
}

// SetMinOverlap sets the minimum number of overlapping samples a lag needs to
// be scored. Lags with less overlap get a correlation of 0.
func (cc *CrossCorrelation) SetMinOverlap(n int) {
	cc.minOverlap = max(n, 1)
}

// SetSidelobeGuard sets how many lags on each side of the peak belong to the
// main lobe when measuring sidelobes.
func (cc *CrossCorrelation) SetSidelobeGuard(n int) {
	cc.sidelobeGuard = max(n, 0)
}

// Compute calculates the correlation for every lag in [-maxLag, maxLag].
// Each lag is normalized by the energy of both signals inside its overlap,
// so values lie in [-1, 1].
func (cc *CrossCorrelation) Compute(signal1, signal2 []float64) (*CorrelationResult, error) {
	if len(signal1) == 0 || len(signal2) == 0 {
		return nil, fmt.Errorf("signals must not be empty (got %d and %d samples)", len(signal1), len(signal2))
	}
	if cc.maxLag < 0 {
		return nil, fmt.Errorf("max lag must be non-negative, got %d", cc.maxLag)
	}

	s1, s2 := signal1, signal2
	if cc.normalizeInputs {
		s1 = subtractMean(signal1)
		s2 = subtractMean(signal2)
	}

	maxLag := cc.calculateActualMaxLag(len(s1), len(s2))
	raw := cc.fft.CrossCorrelation(s1, s2, maxLag)

	energy1 := prefixEnergy(s1)
	energy2 := prefixEnergy(s2)

	result := &CorrelationResult{
		Correlations: make([]float64, len(raw)),
		Lags:         make([]int, len(raw)),
		MaxLag:       maxLag,
		PeakIndex:    -1,
	}

	for i := range raw {
		lag := i - maxLag
		result.Lags[i] = lag

		start1, end1, start2, end2 := calculateOverlapRegion(len(s1), len(s2), lag)
		if end1-start1 < cc.minOverlap {
			continue
		}

		e1 := energy1[end1] - energy1[start1]
		e2 := energy2[end2] - energy2[start2]
		if e1 < cc.minEnergy || e2 < cc.minEnergy {
			continue
		}

		result.Correlations[i] = clampCorrelation(raw[i] / math.Sqrt(e1*e2))
	}

	cc.findPeak(result)
	return result, nil
}

// findPeak fills the peak, refinement and quality fields.
func (cc *CrossCorrelation) findPeak(result *CorrelationResult) {
	best := -1
	for i, c := range result.Correlations {
		if best < 0 || c > result.Correlations[best] {
			best = i
		}
	}
	if best < 0 {
		return
	}

	result.PeakIndex = best
	result.PeakCorrelation = result.Correlations[best]
	result.PeakLag = float64(result.Lags[best])

	if best > 0 && best < len(result.Correlations)-1 {
		y1, y2, y3 := result.Correlations[best-1], result.Correlations[best], result.Correlations[best+1]
		a := (y1 - 2*y2 + y3) / 2
		b := (y3 - y1) / 2
		if a < 0 {
			if shift := -b / (2 * a); shift > -1 && shift < 1 {
				result.PeakLag += shift
			}
		}
		result.Sharpness = -(y1 - 2*y2 + y3)
	}

	result.SecondPeak = cc.findSecondPeak(result.Correlations, best)
	result.PeakToSidelobe = calculatePeakToSidelobe(result.PeakCorrelation, result.SecondPeak)
}

// findSecondPeak finds the highest correlation outside the main lobe
func (cc *CrossCorrelation) findSecondPeak(correlations []float64, peakIdx int) float64 {
	secondPeak := 0.0
	for i, corr := range correlations {
		if abs(i-peakIdx) > cc.sidelobeGuard && corr > secondPeak {
			secondPeak = corr
		}
	}
	return secondPeak
}

// calculatePeakToSidelobe calculates peak-to-sidelobe ratio in dB
func calculatePeakToSidelobe(peak, sidelobe float64) float64 {
	if peak <= 0 {
		return 0.0
	}
	if sidelobe < 1e-10 {
		return math.Inf(1)
	}
	return 20.0 * math.Log10(peak/sidelobe)
}

// calculateOverlapRegion returns the index ranges of both signals that
// overlap at lag, with signal2 shifted left by lag.
func calculateOverlapRegion(len1, len2, lag int) (start1, end1, start2, end2 int) {
	start1 = max(0, -lag)
	end1 = min(len1, len2-lag)
	if end1 < start1 {
		end1 = start1
	}
	start2 = start1 + lag
	end2 = end1 + lag
	return start1, end1, start2, end2
}

// calculateActualMaxLag limits the lag so that at least one sample overlaps.
func (cc *CrossCorrelation) calculateActualMaxLag(len1, len2 int) int {
	return min(cc.maxLag, max(len1, len2)-1)
}

// prefixEnergy returns p with p[i] = sum of squares of signal[:i].
func prefixEnergy(signal []float64) []float64 {
	p := make([]float64, len(signal)+1)
	for i, v := range signal {
		p[i+1] = p[i] + v*v
	}
	return p
}

func subtractMean(signal []float64) []float64 {
	mean := 0.0
	for _, v := range signal {
		mean += v
	}
	mean /= float64(len(signal))

	result := make([]float64, len(signal))
	for i, v := range signal {
		result[i] = v - mean
	}
	return result
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// clampCorrelation absorbs floating point error from the FFT path.
func clampCorrelation(correlation float64) float64 {
	if math.IsNaN(correlation) {
		return 0.0
	}
	return math.Max(-1.0, math.Min(1.0, correlation))
}
