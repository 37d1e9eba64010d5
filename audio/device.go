package audio

import (
	"context"
	"math"
	"time"
)

// Track indices used by [Player.SetGain].
const (
	TrackReference = 0
	TrackTake      = 1
)

// Capture delivers microphone frames. onFrame runs on the engine's callback
// thread and must not block.
type Capture interface {
	Start(ctx context.Context, onFrame func(Frame)) error
	Stop() error
	SetGain(gain float64)
}

// Track is one mono buffer handed to a [Player].
type Track struct {
	Samples    []float64
	SampleRate int
	Gain       float64
	// OffsetSec delays the track start; negative values skip into the track.
	OffsetSec float64
}

// Player renders one or more tracks mixed together. Play returns once
// playback has started.
type Player interface {
	Play(ctx context.Context, tracks ...Track) error
	Stop() error
	SetGain(track int, gain float64)
	// Position is the time rendered since Play.
	Position() time.Duration
}

// LatencyReporter is implemented by engines that know their input plus
// output latency.
type LatencyReporter interface {
	Latency() time.Duration
}

// BufferInfo is implemented by engines that can report their buffer sizes
// in frames.
type BufferInfo interface {
	BufferFrames() (input, output int)
}

// Mix adds the tracks into dst, where dst[0] is playback frame pos. Each
// track's gain and offset apply; tracks at another sample rate are skipped.
func Mix(dst []float64, pos int64, sampleRate int, tracks []Track) {
	for _, tr := range tracks {
		if tr.SampleRate != sampleRate || len(tr.Samples) == 0 || tr.Gain == 0 {
			continue
		}
		shift := int64(math.Round(tr.OffsetSec * float64(sampleRate)))
		for i := range dst {
			j := pos + int64(i) - shift
			if j >= 0 && j < int64(len(tr.Samples)) {
				dst[i] += tr.Samples[j] * tr.Gain
			}
		}
	}
}

// Duration returns the time until the last track ends.
func Duration(tracks []Track) time.Duration {
	var longest float64
	for _, tr := range tracks {
		if tr.SampleRate <= 0 {
			continue
		}
		longest = max(longest, tr.OffsetSec+float64(len(tr.Samples))/float64(tr.SampleRate))
	}
	return time.Duration(longest * float64(time.Second))
}
