package melody

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		segments []Segment
		wantErr  bool
	}{
		{"empty", nil, false},
		{"ordered", []Segment{NewNote(0, 500, 60, 50), NewNote(500, 1000, 62, 50)}, false},
		{"zero length", []Segment{NewNote(100, 100, 60, 50)}, true},
		{"overlap", []Segment{NewNote(0, 600, 60, 50), NewNote(500, 1000, 62, 50)}, true},
		{"no tolerance", []Segment{NewNote(0, 500, 60, 0)}, true},
		{"no pitch", []Segment{NewNote(0, 500, 0, 50)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.segments)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tc.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSegment) {
				t.Errorf("error %v does not wrap ErrInvalidSegment", err)
			}
		})
	}
}

func TestFind(t *testing.T) {
	t.Parallel()
	segments := []Segment{NewNote(0, 500, 60, 50), NewNote(580, 1080, 62, 50), NewNote(1160, 1660, 64, 50)}
	cases := []struct {
		ms    float64
		index int
		ok    bool
	}{
		{0, 0, true},
		{499.9, 0, true},
		{500, -1, false},
		{579, -1, false},
		{580, 1, true},
		{1659, 2, true},
		{1660, -1, false},
		{-1, -1, false},
	}
	for _, tc := range cases {
		i, ok := Find(segments, tc.ms)
		if i != tc.index || ok != tc.ok {
			t.Errorf("Find(%v) = %d, %v; want %d, %v", tc.ms, i, ok, tc.index, tc.ok)
		}
	}
}

func TestGlideTarget(t *testing.T) {
	t.Parallel()
	g := NewGlide(1000, 2000, 60, 64, 50)
	if !g.IsGlide() {
		t.Fatal("glide not detected")
	}
	for ms, want := range map[float64]float64{1000: 60, 1500: 62, 1750: 63, 2500: 64, 0: 60} {
		if got := g.TargetMidiAt(ms); math.Abs(got-want) > 1e-9 {
			t.Errorf("TargetMidiAt(%v) = %v, want %v", ms, got, want)
		}
	}
	if got := NewNote(0, 10, 69, 50).TargetHzAt(5); math.Abs(got-440) > 1e-9 {
		t.Errorf("A4 target = %v Hz", got)
	}
}

func TestMajorScale(t *testing.T) {
	t.Parallel()
	up := MajorScale(DefaultScaleOptions())
	if len(up) != 8 {
		t.Fatalf("got %d notes", len(up))
	}
	if err := Validate(up); err != nil {
		t.Fatal(err)
	}
	if up[0].StartMidi != 60 || up[7].StartMidi != 72 || up[2].StartMidi != 64 {
		t.Errorf("pitches = %v %v %v", up[0].StartMidi, up[2].StartMidi, up[7].StartMidi)
	}
	if up[1].StartMs != 580 || up[7].EndMs != 7*580+500 {
		t.Errorf("timing = %v .. %v", up[1].StartMs, up[7].EndMs)
	}

	opts := DefaultScaleOptions()
	opts.Descending = true
	down := MajorScale(opts)
	if down[0].StartMidi != 72 || down[7].StartMidi != 60 {
		t.Errorf("descending = %v .. %v", down[0].StartMidi, down[7].StartMidi)
	}
}

func TestShift(t *testing.T) {
	t.Parallel()
	in := []Segment{NewNote(0, 500, 60, 50)}
	out := Shift(in, 2000)
	if out[0].StartMs != 2000 || out[0].EndMs != 2500 || in[0].StartMs != 0 {
		t.Errorf("shift = %+v, original %+v", out[0], in[0])
	}
	if got := DurationSec(out); got != 2.5 {
		t.Errorf("duration = %v", got)
	}
}

func TestParseExercise_Segments(t *testing.T) {
	t.Parallel()
	const doc = `
id: warmup
title: Warm up
lead_in_sec: 2
tolerance_cents: 35
segments:
  - {start_ms: 0, end_ms: 500, start_midi: 60}
  - {start_ms: 500, end_ms: 1500, start_midi: 60, end_midi: 67, tolerance_cents: 80, lyric: ah}
`
	ex, err := ParseExercise(strings.NewReader(doc), "/tmp")
	if err != nil {
		t.Fatal(err)
	}
	if len(ex.Segments) != 2 {
		t.Fatalf("got %d segments", len(ex.Segments))
	}
	if ex.Segments[0].EndMidi != 60 || ex.Segments[0].ToleranceCents != 35 {
		t.Errorf("defaults not filled: %+v", ex.Segments[0])
	}
	if !ex.Segments[1].IsGlide() || ex.Segments[1].ToleranceCents != 80 || ex.Segments[1].Lyric != "ah" {
		t.Errorf("glide = %+v", ex.Segments[1])
	}
	if got := ex.DurationSec(); got != 3.5 {
		t.Errorf("duration = %v", got)
	}
}

func TestParseExercise_Scale(t *testing.T) {
	t.Parallel()
	const doc = `
id: c-major
lead_in_sec: 1
scale:
  tonic_midi: 62
  note_ms: 400
  gap_ms: 100
reference: ref.wav
`
	ex, err := ParseExercise(strings.NewReader(doc), "/data")
	if err != nil {
		t.Fatal(err)
	}
	if len(ex.Segments) != 8 || ex.Segments[0].StartMidi != 62 || ex.Segments[0].ToleranceCents != DefaultToleranceCents {
		t.Errorf("scale = %+v", ex.Segments)
	}
	if ex.Reference != "/data/ref.wav" {
		t.Errorf("reference = %q", ex.Reference)
	}
}

func TestParseExercise_Errors(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"unknown field": "id: x\nbogus: 1\nscale: {}\n",
		"no source":     "id: x\n",
		"two sources":   "id: x\nscale: {}\nsegments: [{start_ms: 0, end_ms: 10, start_midi: 60}]\n",
		"missing id":    "scale: {}\n",
		"bad segment":   "id: x\nsegments: [{start_ms: 10, end_ms: 0, start_midi: 60}]\n",
		"negative lead": "id: x\nlead_in_sec: -1\nscale: {}\n",
	}
	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseExercise(strings.NewReader(doc), ""); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestReadMIDI(t *testing.T) {
	t.Parallel()

	// 960 ticks per quarter at the default 120 bpm is 500 ms.
	s := smf.New()
	var tr smf.Track
	tr.Add(0, midi.NoteOn(0, 60, 100))
	tr.Add(960, midi.NoteOff(0, 60))
	tr.Add(0, midi.NoteOn(0, 62, 100))
	tr.Add(960, midi.NoteOff(0, 62))
	tr.Add(480, midi.NoteOn(0, 64, 100))
	// overlaps the next note by one eighth
	tr.Add(1440, midi.NoteOn(0, 65, 100))
	tr.Add(480, midi.NoteOff(0, 64))
	tr.Add(480, midi.NoteOff(0, 65))
	tr.Close(0)
	if err := s.Add(tr); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		t.Fatal(err)
	}

	segments, err := ReadMIDI(&buf, -1, 40)
	if err != nil {
		t.Fatal(err)
	}
	if len(segments) != 4 {
		t.Fatalf("got %d segments: %+v", len(segments), segments)
	}
	if err := Validate(segments); err != nil {
		t.Fatalf("imported melody invalid: %v", err)
	}

	want := []struct{ start, end, midi float64 }{
		{0, 500, 60},
		{500, 1000, 62},
		{1250, 2000, 64},
		{2000, 2500, 65},
	}
	for i, w := range want {
		got := segments[i]
		if math.Abs(got.StartMs-w.start) > 1 || math.Abs(got.EndMs-w.end) > 1 || got.StartMidi != w.midi {
			t.Errorf("segment %d = %+v, want %v", i, got, w)
		}
		if got.ToleranceCents != 40 {
			t.Errorf("segment %d tolerance = %v", i, got.ToleranceCents)
		}
	}
}
