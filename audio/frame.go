// Package audio defines the boundary to the capture and playback engine.
// The engine itself is a black box producing timestamped PCM frames; this
// package only names the capabilities the rest of the module depends on.
package audio

import "time"

// Frame is one block of captured PCM.
type Frame struct {
	// Samples are interleaved floats in [-1, 1].
	Samples    []float64
	SampleRate int
	Channels   int
	// Position counts frames since the stream started and only grows.
	Position int64
	// Timestamp is the capture clock reading of the first sample.
	Timestamp time.Duration
	// PlaybackPosition is the frame position of the current playback
	// observed at capture time, on the same clock as Position, or -1 when
	// nothing plays or the engine does not report it.
	PlaybackPosition int64
}

// Len returns the number of sample frames (samples per channel).
func (f Frame) Len() int {
	if f.Channels <= 1 {
		return len(f.Samples)
	}
	return len(f.Samples) / f.Channels
}

// Mono mixes the frame down to a single channel.
func (f Frame) Mono() []float64 {
	if f.Channels <= 1 {
		out := make([]float64, len(f.Samples))
		copy(out, f.Samples)
		return out
	}

	n := f.Len()
	out := make([]float64, n)
	scale := 1.0 / float64(f.Channels)
	for i := range n {
		sum := 0.0
		for c := range f.Channels {
			sum += f.Samples[i*f.Channels+c]
		}
		out[i] = sum * scale
	}
	return out
}

// Seconds returns the stream time of the frame's first sample.
func (f Frame) Seconds() float64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return float64(f.Position) / float64(f.SampleRate)
}
