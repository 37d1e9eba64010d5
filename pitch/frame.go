// Package pitch turns captured audio into a stream of pitch frames.
package pitch

import "github.com/RyanBlaney/sonido-vocal/algorithms/common"

// Frame is the pitch estimate for one analysis window.
type Frame struct {
	// TimeSec is the window centre on the capture stream clock.
	TimeSec     float64 `json:"time_sec"`
	FrequencyHz float64 `json:"frequency_hz"`
	// Midi is continuous, 0 when unvoiced.
	Midi              float64 `json:"midi"`
	Voiced            bool    `json:"voiced"`
	VoicedProbability float64 `json:"voiced_probability"`
	RMS               float64 `json:"rms"`
}

// Unvoiced returns an unvoiced frame at t.
func Unvoiced(t float64) Frame {
	return Frame{TimeSec: t}
}

// Voiced returns a voiced frame at t with full voicing probability.
func Voiced(t, freq float64) Frame {
	return Frame{
		TimeSec:           t,
		FrequencyHz:       freq,
		Midi:              common.HzToMidi(freq),
		Voiced:            true,
		VoicedProbability: 1,
	}
}
