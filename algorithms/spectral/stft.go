package spectral

import (
	"errors"
	"fmt"
	"math/cmplx"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// STFT computes magnitude spectrograms.
type STFT struct {
	fft *FFT
}

// Spectrogram is a magnitude STFT, one row per frame.
type Spectrogram struct {
	Magnitude  [][]float64
	WindowSize int
	HopSize    int
	SampleRate int
}

// Bins returns the number of non-negative frequency bins per frame.
func (s *Spectrogram) Bins() int { return s.WindowSize/2 + 1 }

// BinHz returns the width of one frequency bin.
func (s *Spectrogram) BinHz() float64 {
	return float64(s.SampleRate) / float64(s.WindowSize)
}

// FrameSec returns the time between frames.
func (s *Spectrogram) FrameSec() float64 {
	return float64(s.HopSize) / float64(s.SampleRate)
}

// NewSTFT returns an STFT calculator.
func NewSTFT() *STFT {
	return &STFT{fft: NewFFT()}
}

// Compute returns the spectrogram of signal. Frame i starts at sample
// i*hopSize. window multiplies every frame when non-nil and must then be
// windowSize long. Signals shorter than one window are zero padded to a
// single frame.
func (s *STFT) Compute(signal []float64, windowSize, hopSize, sampleRate int, window []float64) (*Spectrogram, error) {
	switch {
	case len(signal) == 0:
		return nil, errors.New("empty signal")
	case windowSize <= 0 || hopSize <= 0:
		return nil, fmt.Errorf("window %d and hop %d must be positive", windowSize, hopSize)
	case window != nil && len(window) != windowSize:
		return nil, fmt.Errorf("window has %d coefficients, want %d", len(window), windowSize)
	}

	if len(signal) < windowSize {
		padded := make([]float64, windowSize)
		copy(padded, signal)
		signal = padded
	}

	frames := (len(signal)-windowSize)/hopSize + 1
	bins := windowSize/2 + 1
	mag := make([][]float64, frames)

	// frames are independent; split them into contiguous chunks
	workers := workerCount(frames)
	chunk := (frames + workers - 1) / workers
	var g errgroup.Group
	g.SetLimit(workers)
	for lo := 0; lo < frames; lo += chunk {
		hi := min(lo+chunk, frames)
		g.Go(func() error {
			buf := make([]float64, windowSize)
			for f := lo; f < hi; f++ {
				start := f * hopSize
				copy(buf, signal[start:start+windowSize])
				if window != nil {
					for i, w := range window {
						buf[i] *= w
					}
				}
				spec := s.fft.Compute(buf)
				row := make([]float64, bins)
				for i := range row {
					row[i] = cmplx.Abs(spec[i])
				}
				mag[f] = row
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Spectrogram{
		Magnitude:  mag,
		WindowSize: windowSize,
		HopSize:    hopSize,
		SampleRate: sampleRate,
	}, nil
}

func workerCount(frames int) int {
	n := runtime.NumCPU()
	if frames < 100 {
		n = max(n/2, 1)
	}
	return max(min(n, frames), 1)
}
