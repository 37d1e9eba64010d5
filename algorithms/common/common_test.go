package common

import (
	"math"
	"testing"
)

func TestHzToMidi(t *testing.T) {
	t.Parallel()
	tests := []struct {
		hz   float64
		want float64
	}{
		{440, 69},
		{261.6255653, 60},
		{880, 81},
		{0, 0},
		{-5, 0},
	}
	for _, tc := range tests {
		if got := HzToMidi(tc.hz); math.Abs(got-tc.want) > 1e-6 {
			t.Errorf("HzToMidi(%v) = %v, want %v", tc.hz, got, tc.want)
		}
	}
	if got := MidiToHz(HzToMidi(311.13)); math.Abs(got-311.13) > 1e-9 {
		t.Errorf("round trip = %v", got)
	}
}

func TestCents(t *testing.T) {
	t.Parallel()
	if got := Cents(880, 440); math.Abs(got-1200) > 1e-9 {
		t.Errorf("octave = %v cents", got)
	}
	if got := Cents(MidiToHz(60.1), MidiToHz(60)); math.Abs(got-10) > 1e-9 {
		t.Errorf("0.1 semitone = %v cents", got)
	}
	if got := Cents(0, 440); got != 0 {
		t.Errorf("unvoiced cents = %v", got)
	}
}

func TestNoteName(t *testing.T) {
	t.Parallel()
	cases := map[float64]string{60: "C4", 69: "A4", 61.4: "C#4", 59.6: "C4", 21: "A0"}
	for midi, want := range cases {
		if got := NoteName(midi); got != want {
			t.Errorf("NoteName(%v) = %q, want %q", midi, got, want)
		}
	}
}

func TestParabolicPeak(t *testing.T) {
	t.Parallel()
	// y = -(x-2.3)^2 sampled at integers
	data := make([]float64, 5)
	for i := range data {
		d := float64(i) - 2.3
		data[i] = -d * d
	}
	x, y := ParabolicPeak(data, 2)
	if math.Abs(x-2.3) > 1e-9 {
		t.Errorf("peak x = %v, want 2.3", x)
	}
	if math.Abs(y) > 1e-9 {
		t.Errorf("peak y = %v, want 0", y)
	}

	if x, _ := ParabolicPeak(data, 0); x != 0 {
		t.Errorf("edge index should not move, got %v", x)
	}
}

func TestSlidingWindow_PositionsAndFlush(t *testing.T) {
	t.Parallel()
	sw := NewSlidingWindow(8, 2)
	sw.Seek(100)

	samples := make([]float64, 11)
	for i := range samples {
		samples[i] = float64(i)
	}
	windows := sw.AddSamples(samples)

	// windows complete at sample 8, 10
	if len(windows) != 2 {
		t.Fatalf("got %d windows, want 2", len(windows))
	}
	if windows[0].Start != 100 || windows[1].Start != 102 {
		t.Errorf("starts = %d, %d", windows[0].Start, windows[1].Start)
	}
	if windows[1].Samples[0] != 2 {
		t.Errorf("second window starts with %v, want 2", windows[1].Samples[0])
	}
	if got := sw.Pending(); got != 1 {
		t.Errorf("pending = %d, want 1", got)
	}

	w, ok := sw.Flush(1)
	if !ok {
		t.Fatal("flush dropped a 1 sample tail")
	}
	if w.Start != 104 || w.Valid != 7 || len(w.Samples) != 8 || w.Samples[7] != 0 {
		t.Errorf("flushed window = %+v", w)
	}
	if sw.Pending() != 0 {
		t.Error("flush should reset the window")
	}
}

func TestSlidingWindow_FlushDropsShortTail(t *testing.T) {
	t.Parallel()
	sw := NewSlidingWindow(8, 4)
	sw.AddSamples([]float64{1, 2, 3})
	if _, ok := sw.Flush(4); ok {
		t.Error("3 samples should be dropped with minimum 4")
	}

	sw.AddSamples(make([]float64, 9))
	if _, ok := sw.Flush(2); ok {
		t.Error("1 new sample after a window should be dropped with minimum 2")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	out := Normalize([]float64{1, 2, 3, 4})
	if math.Abs(Mean(out)) > 1e-12 {
		t.Errorf("mean = %v", Mean(out))
	}
	if math.Abs(StandardDeviation(out)-1) > 1e-12 {
		t.Errorf("std = %v", StandardDeviation(out))
	}
	flat := Normalize([]float64{2, 2, 2})
	for _, v := range flat {
		if v != 0 {
			t.Errorf("constant input should centre to zero, got %v", flat)
		}
	}
}

func TestMedianAndRMS(t *testing.T) {
	t.Parallel()
	if got := Median([]float64{3, 1, 2}); got != 2 {
		t.Errorf("median = %v", got)
	}
	if got := Median([]float64{4, 1, 2, 3}); got != 2.5 {
		t.Errorf("median = %v", got)
	}
	if got := RMS([]float64{3, -3, 3, -3}); got != 3 {
		t.Errorf("rms = %v", got)
	}
}
