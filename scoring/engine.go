// Package scoring rates an aligned pitch contour against a reference
// melody.
package scoring

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/contour"
	"github.com/RyanBlaney/sonido-vocal/melody"
)

// ErrInvalidConfig is returned by [New] for unusable parameters.
var ErrInvalidConfig = errors.New("invalid scoring config")

// Weighting selects how segment scores combine into the overall score.
type Weighting string

const (
	WeightDuration Weighting = "duration"
	WeightEqual    Weighting = "equal"
)

// Config holds the scoring parameters.
type Config struct {
	Weighting Weighting `yaml:"weighting"`
	// NeutralCents is the mean error within which the tendency is neutral.
	NeutralCents float64 `yaml:"neutral_cents"`
}

// DefaultConfig returns duration weighting with a 10 cent neutral band.
func DefaultConfig() Config {
	return Config{
		Weighting:    WeightDuration,
		NeutralCents: 10,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.Weighting != WeightDuration && c.Weighting != WeightEqual {
		errs = append(errs, fmt.Errorf("%w: unknown weighting %q", ErrInvalidConfig, c.Weighting))
	}
	if c.NeutralCents < 0 {
		errs = append(errs, fmt.Errorf("%w: neutral_cents must not be negative, got %v", ErrInvalidConfig, c.NeutralCents))
	}
	return errors.Join(errs...)
}

// Engine scores takes. It holds no state between calls, so Score is
// deterministic and safe for concurrent use.
type Engine struct {
	cfg Config
}

// New validates cfg and builds an engine.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg}, nil
}

// Score maps every frame of c onto the exercise clock through model and
// rates it against the segment it falls in. Segments must be ordered and
// non-overlapping. A segment that no frame reaches scores 0.
func (e *Engine) Score(c *contour.Contour, segments []melody.Segment, model alignment.Model) Result {
	res := Result{
		OffsetMs: model.OffsetMs(),
		Tendency: TendencyNeutral,
		Segments: make([]SegmentScore, len(segments)),
	}
	if len(segments) == 0 {
		res.Segments = nil
		return res
	}

	errs := make([][]float64, len(segments))
	for i, seg := range segments {
		res.Segments[i] = SegmentScore{Index: i, Segment: seg}
	}

	var startOffset float64
	if c != nil {
		startOffset = c.StartOffsetSec
	}

	var all []float64
	hits := 0
	for _, f := range c.Frames() {
		ms := model.MicPositionToExerciseTime(f.TimeSec-startOffset) * 1000
		i, ok := melody.Find(segments, ms)
		if !ok {
			continue
		}

		s := &res.Segments[i]
		s.Frames++
		res.FramesScored++
		if !f.Voiced || f.FrequencyHz <= 0 {
			continue
		}

		cents := common.Cents(f.FrequencyHz, segments[i].TargetHzAt(ms))
		s.Voiced++
		errs[i] = append(errs[i], cents)
		all = append(all, cents)
		if math.Abs(cents) <= segments[i].ToleranceCents {
			s.Hits++
			hits++
		}
	}

	fractions := make([]float64, len(segments))
	weights := make([]float64, len(segments))
	for i := range res.Segments {
		s := &res.Segments[i]
		if s.Frames > 0 {
			s.HitFraction = float64(s.Hits) / float64(s.Frames)
		}
		s.AvgCentsError = common.Mean(errs[i])
		s.AvgAbsCentsError = meanAbs(errs[i])

		fractions[i] = s.HitFraction
		weights[i] = max(s.Segment.DurationMs(), 0)
	}

	res.Overall = e.overall(fractions, weights)

	if len(all) > 0 {
		res.AvgCentsError = common.Mean(all)
		res.WithinTolerance = float64(hits) / float64(len(all))
		switch {
		case res.AvgCentsError > e.cfg.NeutralCents:
			res.Tendency = TendencySharp
		case res.AvgCentsError < -e.cfg.NeutralCents:
			res.Tendency = TendencyFlat
		}
	}
	return res
}

func (e *Engine) overall(fractions, weights []float64) float64 {
	if e.cfg.Weighting == WeightEqual {
		weights = nil
	} else {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		if total <= 0 {
			weights = nil
		}
	}
	return common.Clamp(stat.Mean(fractions, weights)*100, 0, 100)
}

func meanAbs(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += math.Abs(v)
	}
	return sum / float64(len(values))
}
