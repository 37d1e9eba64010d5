// Package melody describes the reference melody a take is scored against.
package melody

import (
	"errors"
	"fmt"
	"sort"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
)

// ErrInvalidSegment marks a segment list that breaks ordering, duration or
// tolerance rules.
var ErrInvalidSegment = errors.New("invalid melody segment")

// DefaultToleranceCents is the hit tolerance used when none is given.
const DefaultToleranceCents = 50.0

// Segment is one target note, or a glide between two pitches, on the
// exercise clock.
type Segment struct {
	StartMs   float64 `json:"start_ms" yaml:"start_ms"`
	EndMs     float64 `json:"end_ms" yaml:"end_ms"`
	StartMidi float64 `json:"start_midi" yaml:"start_midi"`
	// EndMidi equals StartMidi for a held note.
	EndMidi        float64 `json:"end_midi" yaml:"end_midi"`
	ToleranceCents float64 `json:"tolerance_cents" yaml:"tolerance_cents"`
	Lyric          string  `json:"lyric,omitempty" yaml:"lyric,omitempty"`
}

// NewNote returns a held note.
func NewNote(startMs, endMs, midi, toleranceCents float64) Segment {
	return Segment{StartMs: startMs, EndMs: endMs, StartMidi: midi, EndMidi: midi, ToleranceCents: toleranceCents}
}

// NewGlide returns a segment sliding linearly (in midi) between two pitches.
func NewGlide(startMs, endMs, fromMidi, toMidi, toleranceCents float64) Segment {
	return Segment{StartMs: startMs, EndMs: endMs, StartMidi: fromMidi, EndMidi: toMidi, ToleranceCents: toleranceCents}
}

// IsGlide reports whether the target pitch moves.
func (s Segment) IsGlide() bool {
	return s.StartMidi != s.EndMidi
}

// DurationMs returns the segment length.
func (s Segment) DurationMs() float64 {
	return s.EndMs - s.StartMs
}

// Contains reports whether ms falls inside [StartMs, EndMs).
func (s Segment) Contains(ms float64) bool {
	return ms >= s.StartMs && ms < s.EndMs
}

// TargetMidiAt returns the target pitch at ms, interpolated for glides and
// clamped to the segment bounds.
func (s Segment) TargetMidiAt(ms float64) float64 {
	if !s.IsGlide() || s.EndMs <= s.StartMs {
		return s.StartMidi
	}
	frac := common.Clamp((ms-s.StartMs)/(s.EndMs-s.StartMs), 0, 1)
	return s.StartMidi + frac*(s.EndMidi-s.StartMidi)
}

// TargetHzAt returns the target frequency at ms.
func (s Segment) TargetHzAt(ms float64) float64 {
	return common.MidiToHz(s.TargetMidiAt(ms))
}

// Validate checks every segment and their ordering, joining all problems.
func Validate(segments []Segment) error {
	var errs []error
	for i, s := range segments {
		if s.EndMs <= s.StartMs {
			errs = append(errs, fmt.Errorf("%w: segment %d ends at %.1f ms, not after its start %.1f ms", ErrInvalidSegment, i, s.EndMs, s.StartMs))
		}
		if s.ToleranceCents <= 0 {
			errs = append(errs, fmt.Errorf("%w: segment %d tolerance %.1f cents must be positive", ErrInvalidSegment, i, s.ToleranceCents))
		}
		if s.StartMidi <= 0 || s.EndMidi <= 0 {
			errs = append(errs, fmt.Errorf("%w: segment %d has no target pitch", ErrInvalidSegment, i))
		}
		if i > 0 && s.StartMs < segments[i-1].EndMs {
			errs = append(errs, fmt.Errorf("%w: segment %d starts at %.1f ms before segment %d ends at %.1f ms", ErrInvalidSegment, i, s.StartMs, i-1, segments[i-1].EndMs))
		}
	}
	return errors.Join(errs...)
}

// Find returns the index of the segment containing ms. Segments must be
// ordered and non-overlapping.
func Find(segments []Segment, ms float64) (int, bool) {
	// first segment ending after ms
	i := sort.Search(len(segments), func(i int) bool { return segments[i].EndMs > ms })
	if i < len(segments) && segments[i].Contains(ms) {
		return i, true
	}
	return -1, false
}

// DurationSec returns the end of the last segment in seconds.
func DurationSec(segments []Segment) float64 {
	if len(segments) == 0 {
		return 0
	}
	return segments[len(segments)-1].EndMs / 1000
}

// Shift returns a copy of the segments moved by offsetMs.
func Shift(segments []Segment, offsetMs float64) []Segment {
	out := make([]Segment, len(segments))
	for i, s := range segments {
		s.StartMs += offsetMs
		s.EndMs += offsetMs
		out[i] = s
	}
	return out
}
