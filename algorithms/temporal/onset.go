// Package temporal holds time-domain envelope, silence and onset measures.
package temporal

import (
	"fmt"

	"github.com/RyanBlaney/sonido-vocal/algorithms/spectral"
	"github.com/RyanBlaney/sonido-vocal/algorithms/windowing"
)

// OnsetDetection computes onset novelty curves. Both curves have one value
// per hop, value i describing the frame that starts at sample i*hop.
type OnsetDetection struct {
	flux   *spectral.SpectralFlux
	stft   *spectral.STFT
	window []float64

	windowSize int
	hopSize    int
}

// NewOnsetDetection returns a detector framing signals at windowSize
// samples advanced by hopSize.
func NewOnsetDetection(windowSize, hopSize int) *OnsetDetection {
	return &OnsetDetection{
		flux:       spectral.NewLogSpectralFlux(100),
		stft:       spectral.NewSTFT(),
		window:     windowing.Hann(windowSize, false),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// HopSize returns the novelty curve hop in samples.
func (od *OnsetDetection) HopSize() int {
	return od.hopSize
}

// Novelty returns the log spectral flux of the signal.
func (od *OnsetDetection) Novelty(signal []float64, sampleRate int) ([]float64, error) {
	if len(signal) == 0 {
		return []float64{}, nil
	}
	if od.windowSize <= 0 || od.hopSize <= 0 {
		return nil, fmt.Errorf("invalid onset window %d / hop %d", od.windowSize, od.hopSize)
	}

	spec, err := od.stft.Compute(signal, od.windowSize, od.hopSize, sampleRate, od.window)
	if err != nil {
		return nil, fmt.Errorf("onset spectrogram: %w", err)
	}
	return od.flux.Compute(spec.Magnitude), nil
}

// NoveltyEnergy returns the rising part of the RMS envelope, smoothed over
// three hops. It is cheaper than Novelty and enough for clean signals.
func (od *OnsetDetection) NoveltyEnergy(signal []float64) []float64 {
	env := RMSEnvelope(signal, od.windowSize, od.hopSize)

	novelty := make([]float64, len(env))
	for i := 1; i < len(env); i++ {
		if d := env[i] - env[i-1]; d > 0 {
			novelty[i] = d
		}
	}
	return Smooth(novelty, 3)
}
