package alignment

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/algorithms/stats"
	"github.com/RyanBlaney/sonido-vocal/algorithms/temporal"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/observe"
)

// ErrSampleRateMismatch is returned by waveform alignment of signals
// recorded at different rates.
var ErrSampleRateMismatch = errors.New("reference and capture sample rates differ")

// Signal is a mono PCM buffer.
type Signal struct {
	Samples    []float64
	SampleRate int
}

// DurationSec returns the signal length in seconds.
func (s Signal) DurationSec() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(len(s.Samples)) / float64(s.SampleRate)
}

// Input is one take to align. Both signals start at the same instant of
// the exercise clock, before the lead-in.
type Input struct {
	Reference Signal
	Capture   Signal
	LeadInSec float64

	// DeviceLatencySec is the latency the audio backend measured, 0 if
	// unknown.
	DeviceLatencySec float64
	// Buffer sizes of the duplex stream, used when no latency is known.
	InputBufferFrames  int
	OutputBufferFrames int
}

// Result is the outcome of one alignment.
type Result struct {
	Model      Model    `json:"model"`
	Confidence float64  `json:"confidence"`
	Strategy   Strategy `json:"strategy"`

	// LagSamples is the correlated lag at the capture sample rate, 0 when
	// the correlation was not used.
	LagSamples      float64 `json:"lag_samples"`
	PeakCorrelation float64 `json:"peak_correlation"`
	PeakToSidelobe  float64 `json:"peak_to_sidelobe_db"`

	// DriftPPM is the offset change between the two halves of the take per
	// million samples. Diagnostic only, never applied to the model.
	DriftPPM float64 `json:"drift_ppm"`
}

// Option configures an [Engine].
type Option func(*Engine)

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// Engine aligns captured takes against their reference. Align is safe for
// concurrent use; the only state kept between takes is the last offset
// obtained by correlation.
type Engine struct {
	cfg Config

	logger  logging.Logger
	metrics *observe.Metrics

	mu            sync.Mutex
	lastKnownGood float64
	haveLastGood  bool
}

// New validates cfg and builds an engine.
func New(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrGlobal(e.logger).WithFields(logging.Fields{"component": "alignment"})
	e.metrics = observe.OrDefault(e.metrics)
	return e, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config {
	return e.cfg
}

// LastKnownGood returns the last offset obtained by correlation.
func (e *Engine) LastKnownGood() (float64, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastKnownGood, e.haveLastGood
}

// SetLastKnownGood seeds the fallback offset, e.g. from a previous session.
func (e *Engine) SetLastKnownGood(offsetSec float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastKnownGood = offsetSec
	e.haveLastGood = true
}

// Align estimates the microphone offset of a take. Silence and poor
// correlation never fail: they fall back to a default or device latency
// offset with a lowered confidence. Errors are returned only for a
// cancelled ctx or signals that cannot be compared.
func (e *Engine) Align(ctx context.Context, in Input) (Result, error) {
	res, err := e.align(ctx, in)
	if err != nil {
		return Result{}, err
	}

	e.metrics.RecordAlignment(ctx, string(res.Strategy), res.Confidence, res.Model.MicOffsetSec)
	e.logger.Debug("take aligned", logging.Fields{
		"strategy":         res.Strategy,
		"offset_sec":       res.Model.MicOffsetSec,
		"confidence":       res.Confidence,
		"peak_correlation": res.PeakCorrelation,
		"drift_ppm":        res.DriftPPM,
	})
	return res, nil
}

func (e *Engine) align(ctx context.Context, in Input) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if e.isSilent(in.Capture) {
		offset := 0.0
		if e.cfg.UseLastKnownGood {
			if lkg, ok := e.LastKnownGood(); ok {
				offset = lkg
			}
		}
		e.logger.Info("capture is silent, using default offset", logging.Fields{"offset_sec": offset})
		return Result{
			Model:    Model{MicOffsetSec: offset, LeadInSec: in.LeadInSec},
			Strategy: StrategyDefault,
		}, nil
	}

	if e.isSilent(in.Reference) {
		e.logger.Info("reference is silent, using device latency")
		return e.deviceLatencyResult(in, 0), nil
	}

	if e.cfg.Method == MethodWaveform && in.Reference.SampleRate != in.Capture.SampleRate {
		return Result{}, fmt.Errorf("%w: %d and %d Hz", ErrSampleRateMismatch, in.Reference.SampleRate, in.Capture.SampleRate)
	}

	ref, refRate, err := e.features(in.Reference)
	if err != nil {
		return Result{}, fmt.Errorf("reference features: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	capture, _, err := e.features(in.Capture)
	if err != nil {
		return Result{}, fmt.Errorf("capture features: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	corr, err := e.correlate(ref, capture, refRate)
	if err != nil {
		return Result{}, err
	}

	confidence := common.Clamp(corr.PeakCorrelation, 0, 1)
	offset := corr.PeakLag / refRate

	if confidence < e.cfg.MinConfidence {
		e.logger.Info("correlation below confidence threshold, using device latency", logging.Fields{
			"confidence": confidence,
			"threshold":  e.cfg.MinConfidence,
		})
		res := e.deviceLatencyResult(in, confidence)
		res.PeakCorrelation = corr.PeakCorrelation
		res.PeakToSidelobe = corr.PeakToSidelobe
		return res, nil
	}

	res := Result{
		Model:           Model{MicOffsetSec: offset, LeadInSec: in.LeadInSec},
		Confidence:      confidence,
		Strategy:        StrategyCorrelation,
		LagSamples:      offset * float64(in.Capture.SampleRate),
		PeakCorrelation: corr.PeakCorrelation,
		PeakToSidelobe:  corr.PeakToSidelobe,
	}

	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res.DriftPPM = e.drift(ref, capture, refRate)

	e.mu.Lock()
	e.lastKnownGood = offset
	e.haveLastGood = true
	e.mu.Unlock()

	return res, nil
}

func (e *Engine) isSilent(s Signal) bool {
	return s.SampleRate <= 0 || temporal.IsSilent(s.Samples, s.SampleRate, e.cfg.SilenceRMS)
}

// features returns the sequence the correlation runs on and its rate in
// values per second.
func (e *Engine) features(s Signal) ([]float64, float64, error) {
	if e.cfg.Method == MethodWaveform {
		return s.Samples, float64(s.SampleRate), nil
	}

	sr := float64(s.SampleRate)
	hop := max(int(math.Round(e.cfg.EnvelopeHopSec*sr)), 1)
	window := common.NextPowerOf2(max(int(math.Round(e.cfg.EnvelopeWindowSec*sr)), hop))

	novelty, err := temporal.NewOnsetDetection(window, hop).Novelty(s.Samples, s.SampleRate)
	if err != nil {
		return nil, 0, err
	}
	return novelty, sr / float64(hop), nil
}

func (e *Engine) correlate(ref, capture []float64, rate float64) (*stats.CorrelationResult, error) {
	cc := stats.NewCrossCorrelation(int(math.Ceil(e.cfg.MaxLagSec * rate)))
	shorter := min(len(ref), len(capture))
	cc.SetMinOverlap(min(int(e.cfg.MinOverlapSec*rate), shorter/2))

	corr, err := cc.Compute(ref, capture)
	if err != nil {
		return nil, fmt.Errorf("cross-correlation failed: %w", err)
	}
	return corr, nil
}

// drift aligns each half of the take separately and returns the offset
// change in parts per million of elapsed time.
func (e *Engine) drift(ref, capture []float64, rate float64) float64 {
	n := min(len(ref), len(capture))
	if float64(n)/rate < e.cfg.DriftMinSec {
		return 0
	}
	half := n / 2

	first, err := e.correlate(ref[:half], capture[:half], rate)
	if err != nil || first.PeakCorrelation < e.cfg.MinConfidence {
		return 0
	}
	second, err := e.correlate(ref[half:n], capture[half:n], rate)
	if err != nil || second.PeakCorrelation < e.cfg.MinConfidence {
		return 0
	}
	return (second.PeakLag - first.PeakLag) / float64(half) * 1e6
}

func (e *Engine) deviceLatencyResult(in Input, confidence float64) Result {
	return Result{
		Model:      Model{MicOffsetSec: e.deviceLatency(in), LeadInSec: in.LeadInSec},
		Confidence: confidence,
		Strategy:   StrategyDeviceLatency,
	}
}

// deviceLatency prefers the configured latency, then the backend's
// measurement, then the duplex buffer sizes.
func (e *Engine) deviceLatency(in Input) float64 {
	if e.cfg.DeviceLatencySec > 0 {
		return e.cfg.DeviceLatencySec
	}
	if in.DeviceLatencySec > 0 {
		return in.DeviceLatencySec
	}
	frames := in.InputBufferFrames + in.OutputBufferFrames
	if frames > 0 && in.Capture.SampleRate > 0 {
		return float64(frames) / float64(in.Capture.SampleRate)
	}
	return 0
}
