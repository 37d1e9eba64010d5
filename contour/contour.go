// Package contour holds the pitch frames captured during one take.
package contour

import (
	"errors"
	"fmt"

	"github.com/RyanBlaney/sonido-vocal/pitch"
)

var (
	// ErrFrozen is returned when appending to a frozen contour.
	ErrFrozen = errors.New("contour is frozen")
	// ErrNonMonotonic is returned for a frame that does not advance in time.
	ErrNonMonotonic = errors.New("contour frames must be strictly increasing in time")
)

// Contour is the ordered sequence of pitch frames of one take. It is built
// by a single owner during recording and becomes read-only after Freeze.
type Contour struct {
	frames []pitch.Frame

	// StartOffsetSec is the capture stream time of the first recorded sample.
	StartOffsetSec float64 `json:"start_offset_sec"`
	SampleRate     int     `json:"sample_rate"`
	HopSize        int     `json:"hop_size"`

	frozen bool
}

// New returns an empty contour.
func New(sampleRate, hopSize int, startOffsetSec float64) *Contour {
	return &Contour{
		StartOffsetSec: startOffsetSec,
		SampleRate:     sampleRate,
		HopSize:        hopSize,
	}
}

// FromFrames builds a frozen contour from frames that must already be in
// strictly increasing time order.
func FromFrames(frames []pitch.Frame, sampleRate, hopSize int) (*Contour, error) {
	c := New(sampleRate, hopSize, 0)
	for _, f := range frames {
		if err := c.Append(f); err != nil {
			return nil, err
		}
	}
	c.Freeze()
	return c, nil
}

// Append adds a frame at the end.
func (c *Contour) Append(f pitch.Frame) error {
	if c.frozen {
		return ErrFrozen
	}
	if n := len(c.frames); n > 0 && f.TimeSec <= c.frames[n-1].TimeSec {
		return fmt.Errorf("%w: %.4f after %.4f", ErrNonMonotonic, f.TimeSec, c.frames[n-1].TimeSec)
	}
	c.frames = append(c.frames, f)
	return nil
}

// Freeze makes the contour immutable.
func (c *Contour) Freeze() {
	c.frozen = true
}

// Frozen reports whether Freeze was called.
func (c *Contour) Frozen() bool {
	return c.frozen
}

// Len returns the number of frames.
func (c *Contour) Len() int {
	if c == nil {
		return 0
	}
	return len(c.frames)
}

// Frames returns the frames. The slice is shared once the contour is frozen
// and must not be modified; before that a copy is returned.
func (c *Contour) Frames() []pitch.Frame {
	if c == nil {
		return nil
	}
	if c.frozen {
		return c.frames
	}
	out := make([]pitch.Frame, len(c.frames))
	copy(out, c.frames)
	return out
}

// VoicedRatio returns the share of voiced frames.
func (c *Contour) VoicedRatio() float64 {
	if c.Len() == 0 {
		return 0
	}
	voiced := 0
	for _, f := range c.frames {
		if f.Voiced {
			voiced++
		}
	}
	return float64(voiced) / float64(len(c.frames))
}

// DurationSec returns the time spanned from the first to the last frame.
func (c *Contour) DurationSec() float64 {
	if c.Len() < 2 {
		return 0
	}
	return c.frames[len(c.frames)-1].TimeSec - c.frames[0].TimeSec
}
