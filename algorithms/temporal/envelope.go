package temporal

import "math"

// RMSEnvelope returns the RMS of consecutive frameSize windows advanced by
// hop. A signal shorter than one frame yields a single value, its energy
// spread over a full frame.
func RMSEnvelope(signal []float64, frameSize, hop int) []float64 {
	if len(signal) == 0 || frameSize <= 0 || hop <= 0 {
		return nil
	}
	if len(signal) < frameSize {
		return []float64{math.Sqrt(sumSquares(signal) / float64(frameSize))}
	}

	env := make([]float64, (len(signal)-frameSize)/hop+1)
	for i := range env {
		start := i * hop
		env[i] = math.Sqrt(sumSquares(signal[start:start+frameSize]) / float64(frameSize))
	}
	return env
}

// Smooth is a centred moving average over width values, shrinking at the
// edges. A width of 1 or less returns values as is.
func Smooth(values []float64, width int) []float64 {
	if len(values) == 0 || width <= 1 {
		return values
	}

	prefix := make([]float64, len(values)+1)
	for i, v := range values {
		prefix[i+1] = prefix[i] + v
	}

	half := width / 2
	out := make([]float64, len(values))
	for i := range values {
		lo, hi := max(i-half, 0), min(i+half+1, len(values))
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}

func sumSquares(x []float64) float64 {
	s := 0.0
	for _, v := range x {
		s += v * v
	}
	return s
}
