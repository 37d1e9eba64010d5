// Package store persists finished takes for inter-take history.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/pitch"
	"github.com/RyanBlaney/sonido-vocal/scoring"
)

// ErrDuplicate is returned when a take with the same ID already exists.
var ErrDuplicate = errors.New("take already stored")

// Take is everything kept about one scored take.
type Take struct {
	ID          string    `json:"id"`
	ExerciseID  string    `json:"exercise_id"`
	RecordedAt  time.Time `json:"recorded_at"`
	DurationSec float64   `json:"duration_sec"`

	SampleRate int `json:"sample_rate"`
	HopSize    int `json:"hop_size"`

	Alignment alignment.Result `json:"alignment"`
	Score     scoring.Result   `json:"score"`
	Frames    []pitch.Frame    `json:"frames,omitempty"`
}

// Summary is the row shown in a take history.
type Summary struct {
	ID         string             `json:"id"`
	ExerciseID string             `json:"exercise_id"`
	RecordedAt time.Time          `json:"recorded_at"`
	Overall    float64            `json:"overall"`
	OffsetMs   float64            `json:"offset_ms"`
	Confidence float64            `json:"confidence"`
	Strategy   alignment.Strategy `json:"strategy"`
	Tendency   scoring.Tendency   `json:"tendency"`
}

// Sink receives takes at the end of processing.
type Sink interface {
	SaveTake(ctx context.Context, take Take) error
}

// Store is a [Sink] that can read takes back. Implementations must be safe
// for concurrent use.
type Store interface {
	Sink

	// Get returns the take with id. Found is false when it does not exist.
	Get(ctx context.Context, id string) (take Take, found bool, err error)

	// Recent returns up to limit summaries, newest first. An empty
	// exerciseID returns takes of every exercise.
	Recent(ctx context.Context, exerciseID string, limit int) ([]Summary, error)

	Close() error
}

// Nop discards every take.
type Nop struct{}

// SaveTake implements [Sink].
func (Nop) SaveTake(context.Context, Take) error { return nil }

// Summarize returns the history row of t.
func Summarize(t Take) Summary {
	return Summary{
		ID:         t.ID,
		ExerciseID: t.ExerciseID,
		RecordedAt: t.RecordedAt,
		Overall:    t.Score.Overall,
		OffsetMs:   t.Alignment.Model.OffsetMs(),
		Confidence: t.Alignment.Confidence,
		Strategy:   t.Alignment.Strategy,
		Tendency:   t.Score.Tendency,
	}
}
