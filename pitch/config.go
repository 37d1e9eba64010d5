package pitch

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidConfig is returned by [NewDetector] for unusable parameters.
var ErrInvalidConfig = errors.New("invalid pitch detector config")

// Config holds the detector parameters.
type Config struct {
	SampleRate int `yaml:"sample_rate"`
	WindowSize int `yaml:"window_size"`
	HopSize    int `yaml:"hop_size"`

	MinFreq float64 `yaml:"min_freq"`
	MaxFreq float64 `yaml:"max_freq"`

	// VoicingThreshold is the minimum voicing probability for a voiced frame.
	VoicingThreshold float64 `yaml:"voicing_threshold"`
	// SilenceRMS is the window RMS below which a frame is never voiced. The
	// voicing probability ramps up between SilenceRMS and twice that.
	SilenceRMS float64 `yaml:"silence_rms"`
	// MinPartialSamples is the number of new samples after the last full
	// window needed to analyze a zero padded trailing window at end of
	// stream. Shorter tails are dropped.
	MinPartialSamples int `yaml:"min_partial_samples"`

	MedianFilter     int  `yaml:"median_filter"`
	OctaveCorrection bool `yaml:"octave_correction"`

	// QueueSize bounds the streaming input queue, in audio frames.
	QueueSize int `yaml:"queue_size"`
}

// DefaultConfig returns the defaults for singing at the given sample rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:        sampleRate,
		WindowSize:        2048,
		HopSize:           512,
		MinFreq:           60,
		MaxFreq:           1200,
		VoicingThreshold:  0.5,
		SilenceRMS:        0.005,
		MinPartialSamples: 256,
		MedianFilter:      3,
		OctaveCorrection:  true,
		QueueSize:         64,
	}
}

// Validate checks the configuration, joining every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidConfig, c.SampleRate))
	}
	if c.WindowSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: window_size must be positive, got %d", ErrInvalidConfig, c.WindowSize))
	}
	if c.HopSize <= 0 {
		errs = append(errs, fmt.Errorf("%w: hop_size must be positive, got %d", ErrInvalidConfig, c.HopSize))
	}
	if c.HopSize > c.WindowSize {
		errs = append(errs, fmt.Errorf("%w: hop_size %d exceeds window_size %d", ErrInvalidConfig, c.HopSize, c.WindowSize))
	}
	if c.MinFreq <= 0 || c.MinFreq >= c.MaxFreq {
		errs = append(errs, fmt.Errorf("%w: min_freq %.1f must be positive and below max_freq %.1f", ErrInvalidConfig, c.MinFreq, c.MaxFreq))
	}
	if c.SampleRate > 0 && c.WindowSize > 0 && c.MinFreq > 0 {
		if need := MinWindowSize(c.SampleRate, c.MinFreq); c.WindowSize < need {
			errs = append(errs, fmt.Errorf("%w: min_freq %.1f at %d Hz needs window_size >= %d, got %d",
				ErrInvalidConfig, c.MinFreq, c.SampleRate, need, c.WindowSize))
		}
	}
	if c.VoicingThreshold < 0 || c.VoicingThreshold > 1 {
		errs = append(errs, fmt.Errorf("%w: voicing_threshold must be in [0,1], got %v", ErrInvalidConfig, c.VoicingThreshold))
	}
	return errors.Join(errs...)
}

// MinWindowSize returns the smallest window whose NSDF still covers a
// period of minFreq. The detector only searches lags up to three quarters
// of the window.
func MinWindowSize(sampleRate int, minFreq float64) int {
	maxLag := int(math.Ceil(float64(sampleRate) / minFreq))
	w := maxLag
	for w-w/4 < maxLag {
		w++
	}
	return w
}
