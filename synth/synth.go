// Package synth renders reference melodies to PCM for playback.
package synth

import (
	"math"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/melody"
)

// Synth renders a melody, preceded by leadInSec of silence, at sampleRate.
type Synth interface {
	Render(segments []melody.Segment, leadInSec float64, sampleRate int) []float64
}

// Sine is an additive synth with a few decaying harmonics per note.
type Sine struct {
	Amplitude float64
	// Harmonics holds the relative level of partial i+1.
	Harmonics []float64
	// DecaySec is the exponential decay constant; 0 holds notes flat.
	DecaySec float64
	FadeSec  float64
}

// NewSine returns a soft piano-like tone.
func NewSine() *Sine {
	return &Sine{
		Amplitude: 0.35,
		Harmonics: []float64{1, 0.5, 0.25, 0.12},
		DecaySec:  0.6,
		FadeSec:   0.01,
	}
}

// Render implements Synth. Glides sweep their pitch with continuous phase.
func (s *Sine) Render(segments []melody.Segment, leadInSec float64, sampleRate int) []float64 {
	if sampleRate <= 0 {
		return nil
	}
	sr := float64(sampleRate)
	total := int(math.Ceil((max(leadInSec, 0) + melody.DurationSec(segments)) * sr))
	out := make([]float64, total)

	norm := 0.0
	for _, h := range s.Harmonics {
		norm += math.Abs(h)
	}
	if norm == 0 {
		return out
	}

	for _, seg := range segments {
		start := int(math.Round((leadInSec + seg.StartMs/1000) * sr))
		end := min(int(math.Round((leadInSec+seg.EndMs/1000)*sr)), total)
		if start < 0 || end <= start {
			continue
		}
		n := end - start
		fade := min(int(s.FadeSec*sr), n/2)

		phase := 0.0
		for i := range n {
			ms := seg.StartMs + float64(i)*1000/sr
			phase += 2 * math.Pi * common.MidiToHz(seg.TargetMidiAt(ms)) / sr

			v := 0.0
			for k, h := range s.Harmonics {
				v += h * math.Sin(float64(k+1)*phase)
			}

			gain := s.Amplitude / norm
			if s.DecaySec > 0 {
				gain *= math.Exp(-float64(i) / sr / s.DecaySec)
			}
			if fade > 0 {
				switch {
				case i < fade:
					gain *= float64(i) / float64(fade)
				case i >= n-fade:
					gain *= float64(n-1-i) / float64(fade)
				}
			}
			out[start+i] += gain * v
		}
	}
	return out
}
