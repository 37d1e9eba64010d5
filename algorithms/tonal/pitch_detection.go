package tonal

import (
	"fmt"
	"math"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/algorithms/spectral"
)

// PitchDetectionParams contains parameters for pitch detection
type PitchDetectionParams struct {
	SampleRate int `json:"sample_rate"`
	WindowSize int `json:"window_size"`

	// Frequency range constraints
	MinFreq float64 `json:"min_freq"` // Minimum frequency (Hz)
	MaxFreq float64 `json:"max_freq"` // Maximum frequency (Hz)

	// KeyMaximumThreshold is the fraction of the highest key maximum a peak
	// must reach to be picked (McLeod's k constant).
	KeyMaximumThreshold float64 `json:"key_maximum_threshold"`

	// Post-processing options
	MedianFilter     int  `json:"median_filter"` // Median filter length, 0 or 1 disables
	OctaveCorrection bool `json:"octave_correction"`
}

// PitchDetectionResult is the raw estimate for one analysis window.
type PitchDetectionResult struct {
	Pitch   float64 `json:"pitch"`   // Best pitch estimate (Hz), 0 when no period was found
	Period  float64 `json:"period"`  // Interpolated period in samples
	Clarity float64 `json:"clarity"` // NSDF height at the chosen peak, [0,1]
}

// PitchDetector implements the McLeod Pitch Method over an FFT
// autocorrelation.
//
// References:
// - McLeod, P., Wyvill, G. (2005). "A smarter way to find pitch"
// - de Cheveigné, A., Kawahara, H. (2002). "YIN, a fundamental frequency estimator for speech and music"
type PitchDetector struct {
	params PitchDetectionParams

	fft *spectral.FFT

	minLag int
	maxLag int

	// Temporal tracking, voiced pitches only. pitchHistory holds raw
	// estimates, smoothHistory the octave corrected ones.
	pitchHistory  []float64
	smoothHistory []float64
}

// DefaultPitchDetectionParams returns parameters tuned for the singing voice.
func DefaultPitchDetectionParams(sampleRate int) PitchDetectionParams {
	return PitchDetectionParams{
		SampleRate:          sampleRate,
		WindowSize:          2048,
		MinFreq:             60.0,
		MaxFreq:             1200.0,
		KeyMaximumThreshold: 0.9,
		MedianFilter:        3,
		OctaveCorrection:    true,
	}
}

// NewPitchDetectorWithParams creates a pitch detector with custom parameters
func NewPitchDetectorWithParams(params PitchDetectionParams) (*PitchDetector, error) {
	if params.SampleRate <= 0 || params.WindowSize <= 0 {
		return nil, fmt.Errorf("sample rate (%d) and window size (%d) must be positive", params.SampleRate, params.WindowSize)
	}
	if params.MinFreq <= 0 || params.MinFreq >= params.MaxFreq {
		return nil, fmt.Errorf("frequency range [%.1f, %.1f] is empty", params.MinFreq, params.MaxFreq)
	}
	if params.KeyMaximumThreshold <= 0 || params.KeyMaximumThreshold > 1 {
		params.KeyMaximumThreshold = 0.9
	}

	pd := &PitchDetector{
		params: params,
		fft:    spectral.NewFFT(),
	}

	pd.minLag = max(int(math.Floor(float64(params.SampleRate)/params.MaxFreq)), 2)
	pd.maxLag = int(math.Ceil(float64(params.SampleRate) / params.MinFreq))
	// NSDF needs enough overlapping terms to be meaningful
	if limit := params.WindowSize - params.WindowSize/4; pd.maxLag > limit {
		pd.maxLag = limit
	}
	if pd.maxLag <= pd.minLag {
		return nil, fmt.Errorf("window size %d too short for %.1f Hz at %d Hz", params.WindowSize, params.MinFreq, params.SampleRate)
	}

	return pd, nil
}

// NSDF computes the normalized square difference function
// n(tau) = 2 r(tau) / m(tau) for tau in [0, maxLag+1].
func (pd *PitchDetector) NSDF(frame []float64) []float64 {
	n := len(frame)
	maxLag := min(pd.maxLag+1, n-1)
	if maxLag < 1 {
		return []float64{}
	}

	acf := pd.fft.Autocorrelation(frame, maxLag)
	nsdf := make([]float64, len(acf))

	// m(tau) = sum x[j]^2 + x[j+tau]^2 over the overlap, updated incrementally
	m := 2 * acf[0]
	for tau := range nsdf {
		if tau > 0 {
			m -= frame[tau-1]*frame[tau-1] + frame[n-tau]*frame[n-tau]
		}
		if m > 1e-12 {
			nsdf[tau] = 2 * acf[tau] / m
		}
	}
	return nsdf
}

// DetectPitch estimates the fundamental of a single window. A zero Pitch
// means no periodicity was found inside the frequency range.
func (pd *PitchDetector) DetectPitch(frame []float64) (PitchDetectionResult, error) {
	if len(frame) != pd.params.WindowSize {
		return PitchDetectionResult{}, fmt.Errorf("audio frame size (%d) doesn't match window size (%d)", len(frame), pd.params.WindowSize)
	}

	nsdf := pd.NSDF(frame)
	peaks := pd.keyMaxima(nsdf)
	if len(peaks) == 0 {
		return PitchDetectionResult{}, nil
	}

	highest := 0.0
	for _, p := range peaks {
		highest = max(highest, nsdf[p])
	}

	threshold := pd.params.KeyMaximumThreshold * highest
	for _, p := range peaks {
		if nsdf[p] < threshold {
			continue
		}

		period, clarity := common.ParabolicPeak(nsdf, p)
		if period <= 0 {
			continue
		}
		pitch := float64(pd.params.SampleRate) / period
		if pitch < pd.params.MinFreq || pitch > pd.params.MaxFreq {
			continue
		}

		return PitchDetectionResult{
			Pitch:   pitch,
			Period:  period,
			Clarity: common.Clamp(clarity, 0, 1),
		}, nil
	}

	return PitchDetectionResult{}, nil
}

// keyMaxima returns the index of the highest NSDF value in each positive
// region after the first negative-going zero crossing, limited to the
// configured lag range.
func (pd *PitchDetector) keyMaxima(nsdf []float64) []int {
	var peaks []int

	pos := 0
	// skip the lobe around lag 0
	for pos < len(nsdf)-1 && nsdf[pos] > 0 {
		pos++
	}
	for pos < len(nsdf)-1 && nsdf[pos] <= 0 {
		pos++
	}

	for pos < len(nsdf)-1 {
		best := -1
		for pos < len(nsdf)-1 && nsdf[pos] > 0 {
			if pos >= pd.minLag && pos <= pd.maxLag && (best < 0 || nsdf[pos] > nsdf[best]) {
				best = pos
			}
			pos++
		}
		if best > 0 {
			peaks = append(peaks, best)
		}
		for pos < len(nsdf)-1 && nsdf[pos] <= 0 {
			pos++
		}
	}

	return peaks
}

// PostProcess applies octave correction and median smoothing to a voiced
// pitch and records it in the history. Unvoiced frames clear the history.
func (pd *PitchDetector) PostProcess(pitch float64, voiced bool) float64 {
	if !voiced || pitch <= 0 {
		pd.Reset()
		return 0
	}

	corrected := pitch
	if pd.params.OctaveCorrection {
		corrected = pd.applyOctaveCorrection(pitch)
	}

	pd.pitchHistory = appendBounded(pd.pitchHistory, pitch, 5)
	pd.smoothHistory = appendBounded(pd.smoothHistory, corrected, max(pd.params.MedianFilter, 1))

	if pd.params.MedianFilter > 1 && len(pd.smoothHistory) >= pd.params.MedianFilter {
		return common.Median(pd.smoothHistory)
	}
	return corrected
}

func appendBounded(history []float64, v float64, keep int) []float64 {
	history = append(history, v)
	if len(history) > keep {
		copy(history, history[len(history)-keep:])
		history = history[:keep]
	}
	return history
}

// applyOctaveCorrection folds a pitch that sits an octave away from the
// recent median back next to it.
func (pd *PitchDetector) applyOctaveCorrection(pitch float64) float64 {
	if len(pd.pitchHistory) < 3 {
		return pitch
	}

	medianPitch := common.Median(pd.pitchHistory)
	tolerance := 0.1

	for _, ratio := range []float64{2.0, 0.5} {
		expected := medianPitch * ratio
		if math.Abs(pitch-expected)/expected < tolerance {
			return pitch / ratio
		}
	}

	return pitch
}

// Reset resets the detector state
func (pd *PitchDetector) Reset() {
	pd.pitchHistory = pd.pitchHistory[:0]
	pd.smoothHistory = pd.smoothHistory[:0]
}

// GetParameters returns current parameters
func (pd *PitchDetector) GetParameters() PitchDetectionParams {
	return pd.params
}

// LagRange returns the searched lag range in samples.
func (pd *PitchDetector) LagRange() (int, int) {
	return pd.minLag, pd.maxLag
}
