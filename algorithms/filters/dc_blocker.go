// Package filters holds streaming sample filters.
package filters

import "math"

// DCBlocker is the one pole, one zero high-pass
//
//	y[n] = x[n] - x[n-1] + r*y[n-1]
//
// that removes microphone offset and rumble below the cutoff. State
// carries over between calls, so a stream can be filtered buffer by buffer.
type DCBlocker struct {
	r      float64
	x1, y1 float64
}

// NewDCBlocker returns a blocker with its -3 dB point near cutoffHz. The
// pole stays inside (0, 1) whatever the arguments.
func NewDCBlocker(sampleRate int, cutoffHz float64) *DCBlocker {
	r := 0.995
	if sampleRate > 0 && cutoffHz > 0 {
		r = min(max(1-2*math.Pi*cutoffHz/float64(sampleRate), 0.001), 0.999)
	}
	return &DCBlocker{r: r}
}

// Filter processes buf in place.
func (b *DCBlocker) Filter(buf []float64) {
	for i, x := range buf {
		y := x - b.x1 + b.r*b.y1
		b.x1, b.y1 = x, y
		buf[i] = y
	}
}

// Reset forgets the previous samples. Call it at a stream discontinuity.
func (b *DCBlocker) Reset() {
	b.x1, b.y1 = 0, 0
}

// CutoffHz returns the approximate -3 dB frequency at sampleRate.
func (b *DCBlocker) CutoffHz(sampleRate int) float64 {
	return (1 - b.r) * float64(sampleRate) / (2 * math.Pi)
}
