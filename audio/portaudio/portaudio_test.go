package portaudio

import (
	"context"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-vocal/audio"
	"github.com/RyanBlaney/sonido-vocal/logging"
)

func newTestEngine() *Engine {
	return newEngine(Config{SampleRate: 4, FramesPerBuffer: 2}, &logging.NoOpLogger{})
}

func TestProcess_CaptureCarriesPlaybackPosition(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	var frames []audio.Frame
	capture := e.Capture()
	if err := capture.Start(context.Background(), func(f audio.Frame) { frames = append(frames, f) }); err != nil {
		t.Fatal(err)
	}
	if err := capture.Start(context.Background(), func(audio.Frame) {}); err == nil {
		t.Error("second Start should fail")
	}
	capture.SetGain(2)

	out := make([]float32, 2)
	e.process([]float32{0.1, 0.2}, out, time.Second)

	if err := e.Play(context.Background(), audio.Track{Samples: []float64{0.5, 0.5, 0.5}, SampleRate: 4, Gain: 1}); err != nil {
		t.Fatal(err)
	}
	e.process([]float32{0, 0}, out, 0)
	if out[0] != 0.5 || out[1] != 0.5 {
		t.Errorf("out = %v, want the track", out)
	}
	e.process([]float32{0, 0}, out, 0)
	if out[0] != 0.5 || out[1] != 0 {
		t.Errorf("out = %v, want the track tail then silence", out)
	}

	if len(frames) != 3 {
		t.Fatalf("got %d frames, want 3", len(frames))
	}
	if f := frames[0]; f.Position != 0 || f.PlaybackPosition != -1 || f.Timestamp != time.Second || f.Samples[1] != 2*float64(float32(0.2)) {
		t.Errorf("first frame = %+v", f)
	}
	if f := frames[2]; f.Position != 4 || f.PlaybackPosition != 2 {
		t.Errorf("third frame position = %d, playback = %d", f.Position, f.PlaybackPosition)
	}
	if got := e.Position(); got != time.Second {
		t.Errorf("playback position = %v, want 1s", got)
	}

	// stopping playback leaves capture running
	if err := e.Stop(); err != nil {
		t.Fatal(err)
	}
	e.process([]float32{0, 0}, out, 0)
	if len(frames) != 4 || out[0] != 0 {
		t.Errorf("after player Stop: %d frames, out = %v", len(frames), out)
	}

	if err := capture.Stop(); err != nil {
		t.Fatal(err)
	}
	e.process([]float32{0, 0}, out, 0)
	if len(frames) != 4 {
		t.Errorf("frames delivered after capture Stop")
	}
}

func TestPlay_ClipsAndChecksRate(t *testing.T) {
	t.Parallel()
	e := newTestEngine()

	if err := e.Play(context.Background(), audio.Track{Samples: []float64{1}, SampleRate: 8, Gain: 1}); err == nil {
		t.Error("Play accepted a track at another rate")
	}

	tracks := []audio.Track{
		{Samples: []float64{0.8, -0.8}, SampleRate: 4, Gain: 1},
		{Samples: []float64{0.8, -0.8}, SampleRate: 4, Gain: 1},
	}
	if err := e.Play(context.Background(), tracks...); err != nil {
		t.Fatal(err)
	}
	e.SetGain(audio.TrackTake, 0.5)
	e.SetGain(9, 3)

	out := make([]float32, 2)
	e.process(nil, out, 0)
	if out[0] != 1 || out[1] != -1 {
		t.Errorf("out = %v, want clipped to ±1", out)
	}

	in, outFrames := e.BufferFrames()
	if in != 2 || outFrames != 2 {
		t.Errorf("buffer frames = %d, %d", in, outFrames)
	}
	if e.Latency() != 0 {
		t.Error("latency without a stream should be 0")
	}
}
