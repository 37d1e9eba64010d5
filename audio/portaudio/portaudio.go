// Package portaudio drives the default sound card through a single duplex
// PortAudio stream. Capture and playback share the stream clock, so the
// playback position observed by every captured frame is exact.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/RyanBlaney/sonido-vocal/audio"
	"github.com/RyanBlaney/sonido-vocal/logging"
)

// Config holds the stream parameters.
type Config struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// Engine is a mono duplex stream. It is the [audio.Player]; [Engine.Capture]
// returns the matching [audio.Capture]. Both report latency and buffer
// sizes.
type Engine struct {
	cfg    Config
	stream *portaudio.Stream
	logger logging.Logger

	mu        sync.Mutex
	onFrame   func(audio.Frame)
	inGain    float64
	inPos     int64
	tracks    []audio.Track
	playing   bool
	playPos   int64
	mixBuffer []float64
}

// Open initializes PortAudio and starts the default duplex stream. The
// stream runs until Close; capture and playback only toggle what the
// callback does with it.
func Open(cfg Config, logger logging.Logger) (*Engine, error) {
	if cfg.SampleRate <= 0 || cfg.FramesPerBuffer <= 0 {
		return nil, fmt.Errorf("portaudio: invalid config %+v", cfg)
	}
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	e := newEngine(cfg, logger)
	stream, err := portaudio.OpenDefaultStream(1, 1, float64(cfg.SampleRate), cfg.FramesPerBuffer, e.callback)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open audio stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start audio stream: %w", err)
	}
	e.stream = stream

	info := stream.Info()
	e.logger.Info("audio stream open", logging.Fields{
		"sample_rate":    info.SampleRate,
		"input_latency":  info.InputLatency.String(),
		"output_latency": info.OutputLatency.String(),
	})
	return e, nil
}

func newEngine(cfg Config, logger logging.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		logger:    logging.OrGlobal(logger).WithFields(logging.Fields{"component": "portaudio"}),
		inGain:    1,
		mixBuffer: make([]float64, cfg.FramesPerBuffer),
	}
}

// SampleRate returns the stream rate.
func (e *Engine) SampleRate() int { return e.cfg.SampleRate }

// Close stops the stream and releases PortAudio.
func (e *Engine) Close() error {
	if e.stream == nil {
		return nil
	}
	err := errors.Join(e.stream.Stop(), e.stream.Close())
	e.stream = nil
	return errors.Join(err, portaudio.Terminate())
}

// startCapture registers onFrame, which runs on the PortAudio thread.
func (e *Engine) startCapture(onFrame func(audio.Frame)) error {
	if onFrame == nil {
		return errors.New("portaudio: nil frame callback")
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.onFrame != nil {
		return errors.New("portaudio: capture already started")
	}
	e.onFrame = onFrame
	return nil
}

// Stop implements [audio.Player]. Capture keeps running.
func (e *Engine) Stop() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.tracks = nil
	return nil
}

// SetInputGain scales captured samples.
func (e *Engine) SetInputGain(gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.inGain = gain
}

// Play implements [audio.Player]. Tracks at another sample rate are
// rejected.
func (e *Engine) Play(_ context.Context, tracks ...audio.Track) error {
	for i, tr := range tracks {
		if len(tr.Samples) > 0 && tr.SampleRate != e.cfg.SampleRate {
			return fmt.Errorf("portaudio: track %d is %d Hz, stream is %d Hz", i, tr.SampleRate, e.cfg.SampleRate)
		}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks = append([]audio.Track(nil), tracks...)
	e.playPos = 0
	e.playing = true
	return nil
}

// SetGain implements [audio.Player].
func (e *Engine) SetGain(track int, gain float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if track >= 0 && track < len(e.tracks) {
		e.tracks[track].Gain = gain
	}
}

// Position implements [audio.Player].
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(float64(e.playPos) / float64(e.cfg.SampleRate) * float64(time.Second))
}

// Latency implements [audio.LatencyReporter].
func (e *Engine) Latency() time.Duration {
	if e.stream == nil {
		return 0
	}
	info := e.stream.Info()
	return info.InputLatency + info.OutputLatency
}

// BufferFrames implements [audio.BufferInfo].
func (e *Engine) BufferFrames() (input, output int) {
	return e.cfg.FramesPerBuffer, e.cfg.FramesPerBuffer
}

func (e *Engine) callback(in, out []float32, ti portaudio.StreamCallbackTimeInfo, _ portaudio.StreamCallbackFlags) {
	e.process(in, out, ti.InputBufferAdcTime)
}

// process handles one duplex buffer. The frame callback runs outside the
// lock.
func (e *Engine) process(in, out []float32, adc time.Duration) {
	e.mu.Lock()
	onFrame := e.onFrame
	gain := e.inGain

	frame := audio.Frame{
		SampleRate:       e.cfg.SampleRate,
		Channels:         1,
		Position:         e.inPos,
		Timestamp:        adc,
		PlaybackPosition: -1,
	}
	e.inPos += int64(len(in))

	if cap(e.mixBuffer) < len(out) {
		e.mixBuffer = make([]float64, len(out))
	}
	mix := e.mixBuffer[:len(out)]
	clear(mix)
	if e.playing {
		frame.PlaybackPosition = e.playPos
		audio.Mix(mix, e.playPos, e.cfg.SampleRate, e.tracks)
		e.playPos += int64(len(out))
	}
	e.mu.Unlock()

	for i, v := range mix {
		out[i] = float32(max(-1, min(1, v)))
	}

	if onFrame == nil || len(in) == 0 {
		return
	}
	samples := make([]float64, len(in))
	for i, v := range in {
		samples[i] = float64(v) * gain
	}
	frame.Samples = samples
	onFrame(frame)
}

var (
	_ audio.Capture         = (*captureView)(nil)
	_ audio.Player          = (*Engine)(nil)
	_ audio.LatencyReporter = (*Engine)(nil)
	_ audio.BufferInfo      = (*Engine)(nil)
)

// captureView is the capture side of an [Engine]. Its Stop leaves playback
// running.
type captureView struct{ e *Engine }

// Capture returns the capture side of the engine.
func (e *Engine) Capture() audio.Capture { return captureView{e} }

func (c captureView) Start(_ context.Context, onFrame func(audio.Frame)) error {
	return c.e.startCapture(onFrame)
}

func (c captureView) Stop() error {
	c.e.mu.Lock()
	defer c.e.mu.Unlock()
	c.e.onFrame = nil
	return nil
}

func (c captureView) SetGain(gain float64) { c.e.SetInputGain(gain) }

func (c captureView) Latency() time.Duration { return c.e.Latency() }

func (c captureView) BufferFrames() (int, int) { return c.e.BufferFrames() }
