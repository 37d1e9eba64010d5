package melody

import (
	"fmt"
	"io"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// ReadMIDIFile imports the notes of a Standard MIDI File as held segments.
// track selects one track; a negative value reads all of them.
func ReadMIDIFile(path string, track int, toleranceCents float64) ([]Segment, error) {
	var tracks []int
	if track >= 0 {
		tracks = []int{track}
	}
	return readTracks(smf.ReadTracks(path, tracks...), toleranceCents)
}

// ReadMIDI is [ReadMIDIFile] over an already open file.
func ReadMIDI(r io.Reader, track int, toleranceCents float64) ([]Segment, error) {
	var tracks []int
	if track >= 0 {
		tracks = []int{track}
	}
	return readTracks(smf.ReadTracksFrom(r, tracks...), toleranceCents)
}

type noteKey struct {
	track   int
	channel uint8
	key     uint8
}

func readTracks(tr *smf.TracksReader, toleranceCents float64) ([]Segment, error) {
	if toleranceCents <= 0 {
		toleranceCents = DefaultToleranceCents
	}

	open := map[noteKey]float64{}
	var segments []Segment

	tr.Do(func(te smf.TrackEvent) {
		msg := midi.Message(te.Message)
		ms := float64(te.AbsMicroSeconds) / 1000

		var channel, key, velocity uint8
		switch {
		case msg.GetNoteStart(&channel, &key, &velocity):
			open[noteKey{te.TrackNo, channel, key}] = ms
		case msg.GetNoteEnd(&channel, &key):
			k := noteKey{te.TrackNo, channel, key}
			start, ok := open[k]
			if !ok {
				return
			}
			delete(open, k)
			if ms > start {
				segments = append(segments, NewNote(start, ms, float64(key), toleranceCents))
			}
		}
	})
	if err := tr.Error(); err != nil {
		return nil, fmt.Errorf("read midi: %w", err)
	}

	sort.SliceStable(segments, func(i, j int) bool { return segments[i].StartMs < segments[j].StartMs })
	return monophonic(segments), nil
}

// monophonic trims overlapping notes so each ends where the next begins,
// dropping notes that start together with a later one.
func monophonic(segments []Segment) []Segment {
	out := segments[:0]
	for _, s := range segments {
		if n := len(out); n > 0 && out[n-1].EndMs > s.StartMs {
			if out[n-1].StartMs >= s.StartMs {
				out = out[:n-1]
			} else {
				out[n-1].EndMs = s.StartMs
			}
		}
		out = append(out, s)
	}
	return out
}
