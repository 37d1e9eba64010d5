package alignment

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

const testRate = 16000

// bursts returns seconds of decaying noise bursts at irregular onsets.
func bursts(seconds float64, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, seed+1))
	out := make([]float64, int(seconds*testRate))
	pos := int(0.1 * testRate)
	for pos < len(out) {
		length := int((0.04 + 0.08*rng.Float64()) * testRate)
		for i := 0; i < length && pos+i < len(out); i++ {
			out[pos+i] = 0.5 * (rng.Float64()*2 - 1) * math.Exp(-float64(i)/float64(length)*4)
		}
		pos += int((0.15 + 0.3*rng.Float64()) * testRate)
	}
	return out
}

func delayed(signal []float64, samples int) []float64 {
	out := make([]float64, len(signal))
	if samples >= 0 {
		copy(out[samples:], signal)
	} else {
		copy(out, signal[-samples:])
	}
	return out
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return e
}

func TestModelMapping(t *testing.T) {
	t.Parallel()
	late := Model{MicOffsetSec: 0.5, LeadInSec: 2.0}
	if got := late.MicTimeToExerciseTime(1.5); got != 1.0 {
		t.Errorf("mic late MicTimeToExerciseTime(1.5) = %v, want 1.0", got)
	}
	if got := late.MicTimeToExerciseTime(0.5); got != 0.0 {
		t.Errorf("mic late MicTimeToExerciseTime(0.5) = %v, want 0.0", got)
	}

	early := Model{MicOffsetSec: -0.5, LeadInSec: 2.0}
	if got := early.MicTimeToExerciseTime(0.5); got != 1.0 {
		t.Errorf("mic early MicTimeToExerciseTime(0.5) = %v, want 1.0", got)
	}

	if got := (Model{}).RefPositionToExerciseTime(2.0); got != 2.0 {
		t.Errorf("RefPositionToExerciseTime(2.0) = %v, want 2.0", got)
	}
	if got := late.RefPositionToExerciseTime(3.0); got != 1.0 {
		t.Errorf("RefPositionToExerciseTime with lead-in = %v", got)
	}

	if got := late.MicPositionToExerciseTime(3.5); got != 1.0 {
		t.Errorf("MicPositionToExerciseTime(3.5) = %v, want 1.0", got)
	}
	for _, x := range []float64{0, 1.25, 7} {
		if got := late.MicPositionToExerciseTime(late.ExerciseTimeToMicPosition(x)); math.Abs(got-x) > 1e-12 {
			t.Errorf("mic round trip of %v = %v", x, got)
		}
		if got := early.RefPositionToExerciseTime(early.ExerciseTimeToRefPosition(x)); math.Abs(got-x) > 1e-12 {
			t.Errorf("ref round trip of %v = %v", x, got)
		}
	}
	if late.OffsetMs() != 500 {
		t.Errorf("OffsetMs = %v", late.OffsetMs())
	}
}

func TestAlign_Offsets(t *testing.T) {
	t.Parallel()
	ref := bursts(4, 7)

	tests := []struct {
		name   string
		method Method
		shift  int
		want   float64
		tol    float64
	}{
		// envelope resolution is one 8 ms hop before refinement
		{"identical envelope", MethodEnvelope, 0, 0, 0.006},
		{"mic late envelope", MethodEnvelope, 4096, 0.256, 0.006},
		{"mic early envelope", MethodEnvelope, -2048, -0.128, 0.006},
		{"mic late waveform", MethodWaveform, 37, 37.0 / testRate, 0.0005},
		{"mic early waveform", MethodWaveform, -800, -0.05, 0.0005},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			cfg.Method = tc.method
			e := newEngine(t, cfg)

			res, err := e.Align(context.Background(), Input{
				Reference: Signal{Samples: ref, SampleRate: testRate},
				Capture:   Signal{Samples: delayed(ref, tc.shift), SampleRate: testRate},
				LeadInSec: 1,
			})
			if err != nil {
				t.Fatal(err)
			}
			if res.Strategy != StrategyCorrelation {
				t.Fatalf("strategy = %s (confidence %v)", res.Strategy, res.Confidence)
			}
			if math.Abs(res.Model.MicOffsetSec-tc.want) > tc.tol {
				t.Errorf("offset = %v s, want %v", res.Model.MicOffsetSec, tc.want)
			}
			if res.Confidence < cfg.MinConfidence {
				t.Errorf("confidence = %v", res.Confidence)
			}
			if res.Model.LeadInSec != 1 {
				t.Errorf("lead-in = %v", res.Model.LeadInSec)
			}
			if lkg, ok := e.LastKnownGood(); !ok || lkg != res.Model.MicOffsetSec {
				t.Errorf("last known good = %v, %v", lkg, ok)
			}
		})
	}
}

func TestAlign_SilentCapture(t *testing.T) {
	t.Parallel()
	e := newEngine(t, DefaultConfig())
	in := Input{
		Reference: Signal{Samples: bursts(3, 1), SampleRate: testRate},
		Capture:   Signal{Samples: make([]float64, 3*testRate), SampleRate: testRate},
	}

	res, err := e.Align(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyDefault || res.Confidence != 0 || res.Model.MicOffsetSec != 0 {
		t.Errorf("silent capture = %+v", res)
	}

	e.SetLastKnownGood(0.12)
	res, err = e.Align(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if res.Model.MicOffsetSec != 0.12 || res.Confidence != 0 {
		t.Errorf("silent capture with last known good = %+v", res)
	}

	in.Capture.Samples = nil
	if res, err = e.Align(context.Background(), in); err != nil || res.Strategy != StrategyDefault {
		t.Errorf("empty capture = %+v, %v", res, err)
	}
}

func TestAlign_DeviceLatencyFallback(t *testing.T) {
	t.Parallel()
	cfg := DefaultConfig()
	cfg.MinConfidence = 0.6

	ref := bursts(4, 3)
	rng := rand.New(rand.NewPCG(9, 9))
	noise := make([]float64, len(ref))
	for i := range noise {
		noise[i] = 0.2 * (rng.Float64()*2 - 1)
	}

	tests := []struct {
		name string
		cfg  float64
		in   Input
		want float64
	}{
		{"buffers", 0, Input{InputBufferFrames: 256, OutputBufferFrames: 512}, 768.0 / testRate},
		{"measured", 0, Input{DeviceLatencySec: 0.09, InputBufferFrames: 256}, 0.09},
		{"configured", 0.07, Input{DeviceLatencySec: 0.09}, 0.07},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := cfg
			c.DeviceLatencySec = tc.cfg
			e := newEngine(t, c)

			in := tc.in
			in.Reference = Signal{Samples: ref, SampleRate: testRate}
			in.Capture = Signal{Samples: noise, SampleRate: testRate}
			res, err := e.Align(context.Background(), in)
			if err != nil {
				t.Fatal(err)
			}
			if res.Strategy != StrategyDeviceLatency {
				t.Fatalf("strategy = %s, confidence %v", res.Strategy, res.Confidence)
			}
			if math.Abs(res.Model.MicOffsetSec-tc.want) > 1e-12 {
				t.Errorf("offset = %v, want %v", res.Model.MicOffsetSec, tc.want)
			}
			if res.Confidence >= c.MinConfidence {
				t.Errorf("confidence = %v", res.Confidence)
			}
			if _, ok := e.LastKnownGood(); ok {
				t.Error("fallback must not update the last known good offset")
			}
		})
	}
}

func TestAlign_SilentReference(t *testing.T) {
	t.Parallel()
	e := newEngine(t, DefaultConfig())
	res, err := e.Align(context.Background(), Input{
		Reference:        Signal{Samples: make([]float64, testRate), SampleRate: testRate},
		Capture:          Signal{Samples: bursts(1, 2), SampleRate: testRate},
		DeviceLatencySec: 0.05,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Strategy != StrategyDeviceLatency || res.Confidence != 0 || res.Model.MicOffsetSec != 0.05 {
		t.Errorf("silent reference = %+v", res)
	}
}

func TestAlign_Errors(t *testing.T) {
	t.Parallel()
	ref := Signal{Samples: bursts(2, 5), SampleRate: testRate}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := newEngine(t, DefaultConfig()).Align(ctx, Input{Reference: ref, Capture: ref}); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled align error = %v", err)
	}

	cfg := DefaultConfig()
	cfg.Method = MethodWaveform
	other := Signal{Samples: bursts(2, 5), SampleRate: 8000}
	if _, err := newEngine(t, cfg).Align(context.Background(), Input{Reference: ref, Capture: other}); !errors.Is(err, ErrSampleRateMismatch) {
		t.Errorf("rate mismatch error = %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatal(err)
	}
	bad := DefaultConfig()
	bad.Method = "dtw"
	bad.MaxLagSec = 0
	bad.MinConfidence = 2
	err := bad.Validate()
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("error = %v", err)
	}
	if _, err := New(bad); err == nil {
		t.Error("New accepted an invalid config")
	}
}
