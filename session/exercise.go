package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/contour"
	"github.com/RyanBlaney/sonido-vocal/melody"
	"github.com/RyanBlaney/sonido-vocal/scoring"
)

// Exercise is what one take is sung against.
type Exercise struct {
	ID        string
	LeadInSec float64
	Segments  []melody.Segment

	// Reference is the backing track, lead-in included. Nil renders the
	// segments with the controller's synth.
	Reference  []float64
	SampleRate int
}

// FromMelody converts a loaded exercise. reference may be nil.
func FromMelody(ex *melody.Exercise, reference []float64, sampleRate int) Exercise {
	return Exercise{
		ID:         ex.ID,
		LeadInSec:  ex.LeadInSec,
		Segments:   ex.Segments,
		Reference:  reference,
		SampleRate: sampleRate,
	}
}

func (ex Exercise) validate() error {
	var errs []error
	if ex.LeadInSec < 0 {
		errs = append(errs, fmt.Errorf("lead-in %v must not be negative", ex.LeadInSec))
	}
	if len(ex.Reference) > 0 && ex.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("reference sample rate %d must be positive", ex.SampleRate))
	}
	if err := melody.Validate(ex.Segments); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Take is a finished recording handed to the [Processor].
type Take struct {
	ID         string
	Exercise   Exercise
	RecordedAt time.Time

	Reference     []float64
	ReferenceRate int
	Capture       []float64
	CaptureRate   int

	// Contour is frozen.
	Contour *contour.Contour

	LatencySec         float64
	InputBufferFrames  int
	OutputBufferFrames int
}

// DurationSec returns the captured length.
func (t Take) DurationSec() float64 {
	if t.CaptureRate <= 0 {
		return 0
	}
	return float64(len(t.Capture)) / float64(t.CaptureRate)
}

// Processor aligns and scores a take. It runs on a worker goroutine and
// should return early when ctx is cancelled.
type Processor interface {
	Process(ctx context.Context, take Take) (alignment.Result, scoring.Result, error)
}

// ProcessorFunc adapts a function to [Processor].
type ProcessorFunc func(ctx context.Context, take Take) (alignment.Result, scoring.Result, error)

// Process implements [Processor].
func (f ProcessorFunc) Process(ctx context.Context, take Take) (alignment.Result, scoring.Result, error) {
	return f(ctx, take)
}

type engines struct {
	align *alignment.Engine
	score *scoring.Engine
}

// NewProcessor runs alignment then scoring.
func NewProcessor(align *alignment.Engine, score *scoring.Engine) Processor {
	return engines{align: align, score: score}
}

func (e engines) Process(ctx context.Context, take Take) (alignment.Result, scoring.Result, error) {
	al, err := e.align.Align(ctx, alignment.Input{
		Reference:          alignment.Signal{Samples: take.Reference, SampleRate: take.ReferenceRate},
		Capture:            alignment.Signal{Samples: take.Capture, SampleRate: take.CaptureRate},
		LeadInSec:          take.Exercise.LeadInSec,
		DeviceLatencySec:   take.LatencySec,
		InputBufferFrames:  take.InputBufferFrames,
		OutputBufferFrames: take.OutputBufferFrames,
	})
	if err != nil {
		return alignment.Result{}, scoring.Result{}, fmt.Errorf("align take: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return alignment.Result{}, scoring.Result{}, err
	}
	return al, e.score.Score(take.Contour, take.Exercise.Segments, al.Model), nil
}
