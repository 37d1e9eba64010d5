package session

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by [New] for unusable parameters.
var ErrInvalidConfig = errors.New("invalid session config")

// Config holds the controller parameters.
type Config struct {
	// SampleRate is the rate of synthesized references and of the pitch
	// detector. Capture frames at other rates are not analyzed.
	SampleRate int `yaml:"sample_rate"`

	// TailMarginSec keeps recording after the melody ends.
	TailMarginSec float64 `yaml:"tail_margin_sec"`
	// MaxTakeSec caps the take length; 0 disables the cap.
	MaxTakeSec float64 `yaml:"max_take_sec"`

	// FrameQueue bounds the capture callback queue, in audio frames.
	FrameQueue int `yaml:"frame_queue"`

	ReferenceGain  float64 `yaml:"reference_gain"`
	TakeGain       float64 `yaml:"take_gain"`
	ApplyAlignment bool    `yaml:"apply_alignment"`

	// PlayheadInterval is how often playheads are refreshed.
	PlayheadInterval time.Duration `yaml:"playhead_interval"`
}

// DefaultConfig returns the defaults at the given sample rate.
func DefaultConfig(sampleRate int) Config {
	return Config{
		SampleRate:       sampleRate,
		TailMarginSec:    1,
		MaxTakeSec:       600,
		FrameQueue:       256,
		ReferenceGain:    1,
		TakeGain:         1,
		ApplyAlignment:   true,
		PlayheadInterval: 50 * time.Millisecond,
	}
}

// Validate checks the configuration, joining every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("%w: sample_rate must be positive, got %d", ErrInvalidConfig, c.SampleRate))
	}
	if c.TailMarginSec < 0 || c.MaxTakeSec < 0 {
		errs = append(errs, fmt.Errorf("%w: tail_margin_sec %v and max_take_sec %v must not be negative", ErrInvalidConfig, c.TailMarginSec, c.MaxTakeSec))
	}
	if c.FrameQueue <= 0 {
		errs = append(errs, fmt.Errorf("%w: frame_queue must be positive, got %d", ErrInvalidConfig, c.FrameQueue))
	}
	if c.ReferenceGain < 0 || c.TakeGain < 0 {
		errs = append(errs, fmt.Errorf("%w: gains must not be negative", ErrInvalidConfig))
	}
	if c.PlayheadInterval <= 0 {
		errs = append(errs, fmt.Errorf("%w: playhead_interval must be positive, got %v", ErrInvalidConfig, c.PlayheadInterval))
	}
	return errors.Join(errs...)
}
