package contour

import (
	"math"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
)

// Note is a run of voiced frames sung as one pitch.
type Note struct {
	StartSec   float64 `json:"start_sec"`
	EndSec     float64 `json:"end_sec"`
	Frames     int     `json:"frames"`
	MeasuredHz float64 `json:"measured_hz"` // median frequency
	Midi       int     `json:"midi"`        // nearest semitone
	Name       string  `json:"name"`
	// CentsError is the measured pitch against the nearest semitone.
	CentsError float64 `json:"cents_error"`
}

// SegmentOptions controls note segmentation.
type SegmentOptions struct {
	// MaxGapSec splits notes on voiced frames further apart than this.
	MaxGapSec float64 `yaml:"max_gap_sec"`
	// MaxJumpCents splits notes on an instantaneous jump larger than this.
	MaxJumpCents float64 `yaml:"max_jump_cents"`
	// MinFrames drops notes with fewer frames.
	MinFrames int `yaml:"min_frames"`
}

// DefaultSegmentOptions returns 80 ms gaps, 80 cent jumps and 3 frames.
func DefaultSegmentOptions() SegmentOptions {
	return SegmentOptions{MaxGapSec: 0.08, MaxJumpCents: 80, MinFrames: 3}
}

// Notes segments the voiced frames of the contour into notes.
func (c *Contour) Notes(opts SegmentOptions) []Note {
	if c.Len() == 0 {
		return nil
	}

	var (
		notes   []Note
		current []int
	)

	flush := func() {
		if len(current) >= max(opts.MinFrames, 1) {
			notes = append(notes, c.note(current))
		}
		current = current[:0]
	}

	for i, f := range c.frames {
		if !f.Voiced || f.FrequencyHz <= 0 {
			continue
		}
		if n := len(current); n > 0 {
			prev := c.frames[current[n-1]]
			gap := f.TimeSec - prev.TimeSec
			jump := math.Abs(common.Cents(f.FrequencyHz, prev.FrequencyHz))
			if gap > opts.MaxGapSec || jump > opts.MaxJumpCents {
				flush()
			}
		}
		current = append(current, i)
	}
	flush()

	return notes
}

func (c *Contour) note(idxs []int) Note {
	freqs := make([]float64, len(idxs))
	for i, idx := range idxs {
		freqs[i] = c.frames[idx].FrequencyHz
	}

	measured := common.Median(freqs)
	midi := int(math.Round(common.HzToMidi(measured)))
	return Note{
		StartSec:   c.frames[idxs[0]].TimeSec,
		EndSec:     c.frames[idxs[len(idxs)-1]].TimeSec,
		Frames:     len(idxs),
		MeasuredHz: measured,
		Midi:       midi,
		Name:       common.NoteName(float64(midi)),
		CentsError: common.Cents(measured, common.MidiToHz(float64(midi))),
	}
}
