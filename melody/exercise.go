package melody

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Exercise is a melody definition loaded from YAML. Exactly one of
// Segments, Scale or MidiFile provides the notes.
type Exercise struct {
	ID        string  `yaml:"id"`
	Title     string  `yaml:"title"`
	LeadInSec float64 `yaml:"lead_in_sec"`
	// ToleranceCents fills segments that carry no tolerance of their own.
	ToleranceCents float64 `yaml:"tolerance_cents"`

	Segments []Segment    `yaml:"segments"`
	Scale    *ScaleOptions `yaml:"scale"`
	MidiFile string        `yaml:"midi_file"`
	// MidiTrack selects one track of MidiFile; negative reads all tracks.
	MidiTrack int `yaml:"midi_track"`

	// Reference is an optional audio file played instead of a synthesized
	// rendering of the segments.
	Reference string `yaml:"reference"`
}

// LoadExercise reads and resolves the exercise file at path. Relative
// midi_file and reference paths resolve against the file's directory.
func LoadExercise(path string) (*Exercise, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("melody: open %q: %w", path, err)
	}
	defer f.Close()

	ex, err := ParseExercise(f, filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("melody: parse %q: %w", path, err)
	}
	return ex, nil
}

// ParseExercise decodes an exercise from r and resolves its notes.
func ParseExercise(r io.Reader, baseDir string) (*Exercise, error) {
	ex := &Exercise{MidiTrack: -1}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(ex); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}

	if ex.ToleranceCents <= 0 {
		ex.ToleranceCents = DefaultToleranceCents
	}
	if ex.MidiFile != "" && !filepath.IsAbs(ex.MidiFile) {
		ex.MidiFile = filepath.Join(baseDir, ex.MidiFile)
	}
	if ex.Reference != "" && !filepath.IsAbs(ex.Reference) {
		ex.Reference = filepath.Join(baseDir, ex.Reference)
	}

	if err := ex.resolve(); err != nil {
		return nil, err
	}
	return ex, nil
}

func (ex *Exercise) resolve() error {
	sources := 0
	for _, set := range []bool{len(ex.Segments) > 0, ex.Scale != nil, ex.MidiFile != ""} {
		if set {
			sources++
		}
	}

	var errs []error
	if ex.ID == "" {
		errs = append(errs, errors.New("id is required"))
	}
	if ex.LeadInSec < 0 {
		errs = append(errs, fmt.Errorf("lead_in_sec must not be negative, got %v", ex.LeadInSec))
	}
	if sources != 1 {
		errs = append(errs, fmt.Errorf("exactly one of segments, scale or midi_file is required, got %d", sources))
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	switch {
	case ex.Scale != nil:
		opts := *ex.Scale
		if opts.TonicMidi <= 0 {
			opts.TonicMidi = DefaultScaleOptions().TonicMidi
		}
		if opts.ToleranceCents <= 0 {
			opts.ToleranceCents = ex.ToleranceCents
		}
		ex.Segments = MajorScale(opts)
	case ex.MidiFile != "":
		segments, err := ReadMIDIFile(ex.MidiFile, ex.MidiTrack, ex.ToleranceCents)
		if err != nil {
			return err
		}
		ex.Segments = segments
	default:
		for i := range ex.Segments {
			if ex.Segments[i].EndMidi == 0 {
				ex.Segments[i].EndMidi = ex.Segments[i].StartMidi
			}
			if ex.Segments[i].ToleranceCents <= 0 {
				ex.Segments[i].ToleranceCents = ex.ToleranceCents
			}
		}
	}

	return Validate(ex.Segments)
}

// DurationSec returns the lead-in plus melody length.
func (ex *Exercise) DurationSec() float64 {
	return ex.LeadInSec + DurationSec(ex.Segments)
}
