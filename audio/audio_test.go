package audio

import (
	"testing"
	"time"
)

func TestFrameMono(t *testing.T) {
	t.Parallel()
	f := Frame{Samples: []float64{1, 3, -1, 1}, Channels: 2, SampleRate: 2}
	mono := f.Mono()
	if len(mono) != 2 || mono[0] != 2 || mono[1] != 0 {
		t.Errorf("mono = %v", mono)
	}
	if f.Len() != 2 {
		t.Errorf("len = %d", f.Len())
	}
	f.Position = 4
	if f.Seconds() != 2 {
		t.Errorf("seconds = %v", f.Seconds())
	}
}

func TestMix(t *testing.T) {
	t.Parallel()
	tracks := []Track{
		{Samples: []float64{1, 1, 1, 1}, SampleRate: 4, Gain: 0.5},
		{Samples: []float64{1, 2}, SampleRate: 4, Gain: 1, OffsetSec: 0.5},
		{Samples: []float64{9}, SampleRate: 8, Gain: 1},
	}
	dst := make([]float64, 3)
	Mix(dst, 1, 4, tracks)
	want := []float64{0.5, 1.5, 2.5}
	for i := range want {
		if dst[i] != want[i] {
			t.Fatalf("mix = %v, want %v", dst, want)
		}
	}

	if got := Duration(tracks); got != time.Second {
		t.Errorf("duration = %v, want 1s", got)
	}
}
