package tonal

import (
	"math"
	"testing"
)

func sine(freq float64, sampleRate, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func TestDetectPitch_Sines(t *testing.T) {
	t.Parallel()
	pd, err := NewPitchDetectorWithParams(DefaultPitchDetectionParams(44100))
	if err != nil {
		t.Fatal(err)
	}
	for _, freq := range []float64{82.4, 196, 440, 987.8} {
		res, err := pd.DetectPitch(sine(freq, 44100, 2048))
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(res.Pitch-freq)/freq > 0.01 {
			t.Errorf("%v Hz detected as %v", freq, res.Pitch)
		}
		if res.Clarity < 0.9 {
			t.Errorf("%v Hz clarity = %v", freq, res.Clarity)
		}
	}
}

func TestDetectPitch_Silence(t *testing.T) {
	t.Parallel()
	pd, err := NewPitchDetectorWithParams(DefaultPitchDetectionParams(16000))
	if err != nil {
		t.Fatal(err)
	}
	res, err := pd.DetectPitch(make([]float64, 2048))
	if err != nil {
		t.Fatal(err)
	}
	if res.Pitch != 0 || res.Clarity != 0 {
		t.Errorf("silence = %+v", res)
	}
	if _, err := pd.DetectPitch(make([]float64, 10)); err == nil {
		t.Error("expected window size error")
	}
}

func TestNewPitchDetector_InvalidParams(t *testing.T) {
	t.Parallel()
	bad := []PitchDetectionParams{
		{SampleRate: 0, WindowSize: 2048, MinFreq: 60, MaxFreq: 1200},
		{SampleRate: 44100, WindowSize: 2048, MinFreq: 500, MaxFreq: 400},
		{SampleRate: 44100, WindowSize: 32, MinFreq: 60, MaxFreq: 1200},
	}
	for _, p := range bad {
		if _, err := NewPitchDetectorWithParams(p); err == nil {
			t.Errorf("params %+v accepted", p)
		}
	}
}

func TestPostProcess_OctaveAndMedian(t *testing.T) {
	t.Parallel()
	pd, err := NewPitchDetectorWithParams(DefaultPitchDetectionParams(44100))
	if err != nil {
		t.Fatal(err)
	}
	for range 4 {
		pd.PostProcess(220, true)
	}
	if got := pd.PostProcess(440, true); got != 220 {
		t.Errorf("octave jump smoothed to %v, want 220", got)
	}
	if got := pd.PostProcess(0, false); got != 0 {
		t.Errorf("unvoiced = %v", got)
	}
	if got := pd.PostProcess(300, true); got != 300 {
		t.Errorf("history should be cleared after unvoiced, got %v", got)
	}
}
