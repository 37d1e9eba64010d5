package melody

// majorSteps are the semitone offsets of a major scale's eight degrees.
var majorSteps = [8]float64{0, 2, 4, 5, 7, 9, 11, 12}

// ScaleOptions shapes a generated scale exercise.
type ScaleOptions struct {
	// TonicMidi is the first note. 60 is C4.
	TonicMidi      float64 `yaml:"tonic_midi"`
	NoteMs         float64 `yaml:"note_ms"`
	GapMs          float64 `yaml:"gap_ms"`
	ToleranceCents float64 `yaml:"tolerance_cents"`
	Descending     bool    `yaml:"descending"`
}

// DefaultScaleOptions returns a C4 to C5 scale of 500 ms notes with 80 ms
// gaps.
func DefaultScaleOptions() ScaleOptions {
	return ScaleOptions{
		TonicMidi:      60,
		NoteMs:         500,
		GapMs:          80,
		ToleranceCents: DefaultToleranceCents,
	}
}

// MajorScale returns the eight notes of a one octave major scale.
func MajorScale(opts ScaleOptions) []Segment {
	if opts.NoteMs <= 0 {
		opts.NoteMs = DefaultScaleOptions().NoteMs
	}
	if opts.ToleranceCents <= 0 {
		opts.ToleranceCents = DefaultToleranceCents
	}

	steps := majorSteps
	if opts.Descending {
		for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
			steps[i], steps[j] = steps[j], steps[i]
		}
	}

	segments := make([]Segment, 0, len(steps))
	t := 0.0
	for _, step := range steps {
		segments = append(segments, NewNote(t, t+opts.NoteMs, opts.TonicMidi+step, opts.ToleranceCents))
		t += opts.NoteMs + max(opts.GapMs, 0)
	}
	return segments
}
