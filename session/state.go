package session

import (
	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/tail"
)

// Phase is the step of a take the controller is in.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseRecording  Phase = "recording"
	PhaseProcessing Phase = "processing"
	PhaseReplay     Phase = "replay"
)

// State is the published view of a controller. Every publication is a
// fresh copy; slices and pointers inside it must be treated as read-only.
type State struct {
	Phase      Phase  `json:"phase"`
	TakeID     string `json:"take_id,omitempty"`
	ExerciseID string `json:"exercise_id,omitempty"`

	// Playheads are seconds since the take started, lead-in included.
	RecordPlayheadSec float64 `json:"record_playhead_sec"`
	ReplayPlayheadSec float64 `json:"replay_playhead_sec"`

	// Tail holds the recent pitch trail on the exercise clock.
	Tail []tail.Point `json:"tail,omitempty"`

	Alignment *alignment.Result `json:"alignment,omitempty"`
	Score     *scoring.Result   `json:"score,omitempty"`

	ReferenceGain  float64 `json:"reference_gain"`
	TakeGain       float64 `json:"take_gain"`
	ApplyAlignment bool    `json:"apply_alignment"`

	// Err describes why the last take ended in idle without a score.
	Err string `json:"error,omitempty"`

	DroppedFrames int64 `json:"dropped_frames"`
}

func (s State) clone() State {
	out := s
	if s.Alignment != nil {
		a := *s.Alignment
		out.Alignment = &a
	}
	if s.Score != nil {
		sc := *s.Score
		sc.Segments = append([]scoring.SegmentScore(nil), s.Score.Segments...)
		out.Score = &sc
	}
	return out
}
