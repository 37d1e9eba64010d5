package alignment

import (
	"errors"
	"fmt"
)

// ErrInvalidConfig is returned by [New] for unusable parameters.
var ErrInvalidConfig = errors.New("invalid alignment config")

// Method selects the signal the correlation runs on.
type Method string

const (
	// MethodEnvelope correlates onset novelty curves, which tolerates the
	// timbre difference between a backing instrument and a voice.
	MethodEnvelope Method = "envelope"
	// MethodWaveform correlates raw samples. Both signals must share a
	// sample rate.
	MethodWaveform Method = "waveform"
)

// Strategy reports how an offset was obtained.
type Strategy string

const (
	StrategyCorrelation   Strategy = "cross_correlation"
	StrategyDeviceLatency Strategy = "device_latency"
	StrategyDefault       Strategy = "default"
)

// Config holds the alignment parameters.
type Config struct {
	Method Method `yaml:"method"`

	// MaxLagSec bounds the lag search in both directions.
	MaxLagSec float64 `yaml:"max_lag_sec"`
	// MinConfidence is the correlation peak below which the device latency
	// fallback is used.
	MinConfidence float64 `yaml:"min_confidence"`
	// MinOverlapSec is the shortest overlap a lag needs to be scored.
	MinOverlapSec float64 `yaml:"min_overlap_sec"`

	// DeviceLatencySec overrides the measured device latency in the
	// fallback. 0 uses the measurement.
	DeviceLatencySec float64 `yaml:"device_latency_sec"`

	EnvelopeWindowSec float64 `yaml:"envelope_window_sec"`
	EnvelopeHopSec    float64 `yaml:"envelope_hop_sec"`

	// SilenceRMS is the level below which a signal counts as silent.
	SilenceRMS float64 `yaml:"silence_rms"`

	// UseLastKnownGood returns the last correlated offset for silent takes
	// instead of 0.
	UseLastKnownGood bool `yaml:"use_last_known_good"`

	// DriftMinSec is the shortest take for which drift is estimated.
	DriftMinSec float64 `yaml:"drift_min_sec"`
}

// DefaultConfig returns the default alignment configuration.
func DefaultConfig() Config {
	return Config{
		Method:            MethodEnvelope,
		MaxLagSec:         1.5,
		MinConfidence:     0.5,
		MinOverlapSec:     1.0,
		EnvelopeWindowSec: 0.064,
		EnvelopeHopSec:    0.008,
		SilenceRMS:        0.003,
		UseLastKnownGood:  true,
		DriftMinSec:       8,
	}
}

// Validate checks the configuration, joining every problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Method != MethodEnvelope && c.Method != MethodWaveform {
		errs = append(errs, fmt.Errorf("%w: unknown method %q", ErrInvalidConfig, c.Method))
	}
	if c.MaxLagSec <= 0 {
		errs = append(errs, fmt.Errorf("%w: max_lag_sec must be positive, got %v", ErrInvalidConfig, c.MaxLagSec))
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("%w: min_confidence must be in [0,1], got %v", ErrInvalidConfig, c.MinConfidence))
	}
	if c.MinOverlapSec < 0 {
		errs = append(errs, fmt.Errorf("%w: min_overlap_sec must not be negative, got %v", ErrInvalidConfig, c.MinOverlapSec))
	}
	if c.DeviceLatencySec < 0 {
		errs = append(errs, fmt.Errorf("%w: device_latency_sec must not be negative, got %v", ErrInvalidConfig, c.DeviceLatencySec))
	}
	if c.Method == MethodEnvelope && (c.EnvelopeWindowSec <= 0 || c.EnvelopeHopSec <= 0 || c.EnvelopeHopSec > c.EnvelopeWindowSec) {
		errs = append(errs, fmt.Errorf("%w: envelope window %v / hop %v", ErrInvalidConfig, c.EnvelopeWindowSec, c.EnvelopeHopSec))
	}
	return errors.Join(errs...)
}
