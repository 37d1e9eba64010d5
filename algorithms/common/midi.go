package common

import (
	"fmt"
	"math"
)

// ReferenceA4 is the tuning reference in Hz for MIDI note 69.
const ReferenceA4 = 440.0

var noteNames = [12]string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}

// HzToMidi converts a frequency to a continuous MIDI note number:
// midi = 69 + 12*log2(f/440). Non-positive frequencies return 0.
func HzToMidi(freq float64) float64 {
	if freq <= 0 || math.IsNaN(freq) || math.IsInf(freq, 0) {
		return 0
	}
	return 69.0 + 12.0*math.Log2(freq/ReferenceA4)
}

// MidiToHz converts a (possibly fractional) MIDI note number to Hz.
func MidiToHz(midi float64) float64 {
	return ReferenceA4 * math.Pow(2, (midi-69.0)/12.0)
}

// Cents returns the pitch difference 1200*log2(f1/f2). Zero is returned when
// either frequency is non-positive.
func Cents(f1, f2 float64) float64 {
	if f1 <= 0 || f2 <= 0 {
		return 0
	}
	return 1200.0 * math.Log2(f1/f2)
}

// NoteName formats the nearest note to midi, e.g. "C4" for 60.
func NoteName(midi float64) string {
	n := int(math.Round(midi))
	idx := ((n % 12) + 12) % 12
	octave := n/12 - 1
	if n < 0 && n%12 != 0 {
		octave--
	}
	return fmt.Sprintf("%s%d", noteNames[idx], octave)
}
