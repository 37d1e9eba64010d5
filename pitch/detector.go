package pitch

import (
	"context"
	"fmt"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/algorithms/filters"
	"github.com/RyanBlaney/sonido-vocal/algorithms/tonal"
	"github.com/RyanBlaney/sonido-vocal/audio"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/observe"
)

// Option configures a [Detector] or [Stream].
type Option func(*options)

type options struct {
	logger  logging.Logger
	metrics *observe.Metrics
}

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithMetrics sets the metric instruments. [observe.DefaultMetrics] is used
// otherwise.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = logging.OrGlobal(o.logger)
	o.metrics = observe.OrDefault(o.metrics)
	return o
}

// Detector converts a stream of audio frames into pitch frames. It is not
// safe for concurrent use; [Stream] runs one on its own goroutine.
type Detector struct {
	cfg       Config
	estimator *tonal.PitchDetector
	dc        *filters.DCBlocker
	window    *common.SlidingWindow

	logger  logging.Logger
	metrics *observe.Metrics

	// next expected stream position, -1 before the first frame
	nextPos int64
}

// NewDetector validates cfg and builds a detector.
func NewDetector(cfg Config, opts ...Option) (*Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	params := tonal.DefaultPitchDetectionParams(cfg.SampleRate)
	params.WindowSize = cfg.WindowSize
	params.MinFreq = cfg.MinFreq
	params.MaxFreq = cfg.MaxFreq
	params.MedianFilter = cfg.MedianFilter
	params.OctaveCorrection = cfg.OctaveCorrection

	estimator, err := tonal.NewPitchDetectorWithParams(params)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	o := buildOptions(opts)
	d := &Detector{
		cfg:       cfg,
		estimator: estimator,
		dc:        filters.NewDCBlocker(cfg.SampleRate, 20),
		window:    common.NewSlidingWindow(cfg.WindowSize, cfg.HopSize),
		logger:    o.logger.WithFields(logging.Fields{"component": "pitch_detector"}),
		metrics:   o.metrics,
		nextPos:   -1,
	}

	return d, nil
}

// Config returns the detector configuration.
func (d *Detector) Config() Config {
	return d.cfg
}

// ProcessFrame consumes one audio frame and returns the pitch frames of
// every window it completed. Frames at another sample rate are rejected
// with an empty result; a gap in stream positions restarts windowing.
func (d *Detector) ProcessFrame(frame audio.Frame) []Frame {
	if frame.SampleRate != d.cfg.SampleRate {
		d.logger.Warn("dropping frame with unexpected sample rate", logging.Fields{
			"sample_rate": frame.SampleRate,
			"expected":    d.cfg.SampleRate,
		})
		return nil
	}

	samples := frame.Mono()
	if len(samples) == 0 {
		return nil
	}

	var out []Frame
	if d.nextPos >= 0 && frame.Position != d.nextPos {
		d.logger.Debug("stream position jumped, restarting window", logging.Fields{
			"expected": d.nextPos,
			"position": frame.Position,
		})
		out = append(out, d.Flush()...)
	}
	if d.nextPos < 0 {
		d.window.Seek(frame.Position)
	}
	d.nextPos = frame.Position + int64(len(samples))

	common.Sanitize(samples)
	d.dc.Filter(samples)

	for _, w := range d.window.AddSamples(samples) {
		out = append(out, d.analyzeWindow(w))
	}
	return out
}

// Flush analyzes the trailing partial window, when long enough, and resets
// the detector for a new stream.
func (d *Detector) Flush() []Frame {
	var out []Frame
	if w, ok := d.window.Flush(d.cfg.MinPartialSamples); ok {
		out = append(out, d.analyzeWindow(w))
	}

	d.dc.Reset()
	d.estimator.Reset()
	d.nextPos = -1
	return out
}

func (d *Detector) analyzeWindow(w common.Window) Frame {
	centre := float64(w.Start) + float64(w.Valid)/2
	if w.Valid == len(w.Samples) {
		centre = float64(w.Start) + float64(len(w.Samples))/2
	}
	return d.Analyze(w.Samples[:w.Valid], centre/float64(d.cfg.SampleRate))
}

// Analyze estimates the pitch of one window stamped at timeSec. Windows
// shorter than the configured size are zero padded, longer ones truncated.
func (d *Detector) Analyze(window []float64, timeSec float64) Frame {
	buf := make([]float64, d.cfg.WindowSize)
	copy(buf, window)
	common.Sanitize(buf)

	valid := min(len(window), len(buf))
	rms := 0.0
	if valid > 0 {
		rms = common.RMS(buf[:valid])
	}

	result, err := d.estimator.DetectPitch(buf)
	if err != nil {
		// buf always has the window size
		d.logger.Error(err, "pitch estimation failed")
	}

	probability := 0.0
	if result.Pitch > 0 {
		gate := 1.0
		if d.cfg.SilenceRMS > 0 {
			gate = common.Clamp((rms-d.cfg.SilenceRMS)/d.cfg.SilenceRMS, 0, 1)
		}
		probability = common.Clamp(result.Clarity*gate, 0, 1)
	}

	voiced := result.Pitch > 0 && probability >= d.cfg.VoicingThreshold && probability > 0
	freq := d.estimator.PostProcess(result.Pitch, voiced)

	frame := Frame{
		TimeSec:           timeSec,
		VoicedProbability: probability,
		RMS:               rms,
	}
	if voiced && freq > 0 {
		frame.FrequencyHz = freq
		frame.Midi = common.HzToMidi(freq)
		frame.Voiced = true
	}

	d.metrics.RecordPitchFrame(context.Background(), frame.Voiced)
	return frame
}

// AnalyzeSignal runs a whole mono buffer through a fresh pass of the
// detector, the offline counterpart of streaming. startPos is the stream
// position of signal[0].
func (d *Detector) AnalyzeSignal(signal []float64, startPos int64) []Frame {
	d.Flush()
	frames := d.ProcessFrame(audio.Frame{
		Samples:    signal,
		SampleRate: d.cfg.SampleRate,
		Channels:   1,
		Position:   startPos,
	})
	return append(frames, d.Flush()...)
}
