package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/config"
	"github.com/RyanBlaney/sonido-vocal/contour"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/melody"
	"github.com/RyanBlaney/sonido-vocal/pitch"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/store"
	"github.com/RyanBlaney/sonido-vocal/store/sqlite"
	"github.com/RyanBlaney/sonido-vocal/synth"
	"github.com/RyanBlaney/sonido-vocal/transcode"
)

type analyzeOptions struct {
	exercise  string
	take      string
	reference string
	notes     bool
}

// report is the JSON document analyze prints.
type report struct {
	TakeID      string           `json:"take_id"`
	ExerciseID  string           `json:"exercise_id"`
	DurationSec float64          `json:"duration_sec"`
	Reference   string           `json:"reference"` // file path or "synth"
	VoicedRatio float64          `json:"voiced_ratio"`
	Alignment   alignment.Result `json:"alignment"`
	Score       scoring.Result   `json:"score"`
	Notes       []contour.Note   `json:"notes,omitempty"`

	take store.Take
}

func runAnalyze(ctx context.Context, e *env, args []string) error {
	fs, configPath := newFlagSet("analyze", e)
	var opts analyzeOptions
	fs.StringVar(&opts.exercise, "exercise", "", "exercise YAML file (required)")
	fs.StringVar(&opts.take, "take", "", "recorded take, WAV or anything ffmpeg reads (required)")
	fs.StringVar(&opts.reference, "reference", "", "backing track the take was sung against; defaults to the exercise reference or a synthesized one")
	fs.BoolVar(&opts.notes, "notes", false, "include the segmented sung notes")
	save := fs.Bool("save", false, "store the take in the history database")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if opts.exercise == "" || opts.take == "" {
		fs.Usage()
		return errors.New("-exercise and -take are required")
	}
	if err := e.setup(*configPath); err != nil {
		return err
	}

	rep, err := analyze(ctx, e.cfg, e.logger, opts)
	if err != nil {
		return err
	}

	if *save {
		if e.cfg.Store.Path == "" {
			return errors.New("-save needs store.path in the configuration")
		}
		db, err := sqlite.Open(e.cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.SaveTake(ctx, rep.take); err != nil {
			return fmt.Errorf("save take: %w", err)
		}
		e.logger.Info("Take saved", logging.Fields{"take_id": rep.TakeID, "path": e.cfg.Store.Path})
	}

	return writeJSON(e.stdout, rep)
}

// analyze scores a recorded take file. The take and the reference must
// start at the same instant.
func analyze(ctx context.Context, cfg *config.Config, logger logging.Logger, opts analyzeOptions) (*report, error) {
	ex, err := melody.LoadExercise(opts.exercise)
	if err != nil {
		return nil, err
	}
	rate := cfg.Audio.SampleRate

	decoder, err := transcode.NewDecoder(cfg.Decoder, logger)
	if err != nil {
		return nil, err
	}

	refPath := opts.reference
	if refPath == "" {
		refPath = ex.Reference
	}

	var take, ref *transcode.AudioData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if take, err = decoder.DecodeFile(gctx, opts.take); err != nil {
			return fmt.Errorf("decode take: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if refPath == "" {
			samples := synth.NewSine().Render(ex.Segments, ex.LeadInSec, rate)
			ref = &transcode.AudioData{PCM: samples, SampleRate: rate, Source: "synth"}
			return nil
		}
		var err error
		if ref, err = decoder.DecodeFile(gctx, refPath); err != nil {
			return fmt.Errorf("decode reference: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	detector, err := pitch.NewDetector(cfg.Pitch, pitch.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	frames := detector.AnalyzeSignal(take.PCM, 0)
	c, err := contour.FromFrames(frames, rate, cfg.Pitch.HopSize)
	if err != nil {
		return nil, err
	}

	aligner, err := alignment.New(cfg.Alignment, alignment.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	scorer, err := scoring.New(cfg.Scoring)
	if err != nil {
		return nil, err
	}

	al, err := aligner.Align(ctx, alignment.Input{
		Reference: alignment.Signal{Samples: ref.PCM, SampleRate: ref.SampleRate},
		Capture:   alignment.Signal{Samples: take.PCM, SampleRate: take.SampleRate},
		LeadInSec: ex.LeadInSec,
	})
	if err != nil {
		return nil, fmt.Errorf("align take: %w", err)
	}
	score := scorer.Score(c, ex.Segments, al.Model)

	rep := &report{
		TakeID:      uuid.NewString(),
		ExerciseID:  ex.ID,
		DurationSec: take.Duration.Seconds(),
		Reference:   refPath,
		VoicedRatio: c.VoicedRatio(),
		Alignment:   al,
		Score:       score,
	}
	if rep.Reference == "" {
		rep.Reference = "synth"
	}
	if opts.notes {
		rep.Notes = c.Notes(contour.DefaultSegmentOptions())
	}
	rep.take = store.Take{
		ID:          rep.TakeID,
		ExerciseID:  ex.ID,
		RecordedAt:  time.Now().UTC(),
		DurationSec: rep.DurationSec,
		SampleRate:  rate,
		HopSize:     cfg.Pitch.HopSize,
		Alignment:   al,
		Score:       score,
		Frames:      c.Frames(),
	}

	logger.Info("Take analyzed", logging.Fields{
		"exercise_id": ex.ID,
		"overall":     score.Overall,
		"offset_ms":   al.Model.OffsetMs(),
		"strategy":    al.Strategy,
		"confidence":  al.Confidence,
	})
	return rep, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
