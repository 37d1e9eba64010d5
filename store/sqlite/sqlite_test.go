package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/pitch"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/store"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "takes.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func take(id, exercise string, at time.Time, overall float64) store.Take {
	return store.Take{
		ID:          id,
		ExerciseID:  exercise,
		RecordedAt:  at,
		DurationSec: 6.5,
		SampleRate:  16000,
		HopSize:     512,
		Alignment: alignment.Result{
			Model:      alignment.Model{MicOffsetSec: 0.085, LeadInSec: 2},
			Confidence: 0.8,
			Strategy:   alignment.StrategyCorrelation,
		},
		Score: scoring.Result{Overall: overall, Tendency: scoring.TendencyFlat},
		Frames: []pitch.Frame{
			pitch.Voiced(0.016, 261.63),
			pitch.Unvoiced(0.048),
		},
	}
}

func TestSaveAndGet(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	want := take("a", "c-major", at, 72.5)
	if err := s.SaveTake(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, found, err := s.Get(ctx, "a")
	if err != nil || !found {
		t.Fatalf("Get = %v, %v", found, err)
	}
	if !got.RecordedAt.Equal(at) || got.ExerciseID != "c-major" || got.HopSize != 512 {
		t.Errorf("take = %+v", got)
	}
	if got.Alignment.Model.MicOffsetSec != 0.085 || got.Score.Overall != 72.5 {
		t.Errorf("alignment %+v score %+v", got.Alignment, got.Score)
	}
	if len(got.Frames) != 2 || !got.Frames[0].Voiced || got.Frames[1].Voiced {
		t.Errorf("frames = %+v", got.Frames)
	}

	if _, found, err := s.Get(ctx, "missing"); found || err != nil {
		t.Errorf("missing take = %v, %v", found, err)
	}

	if err := s.SaveTake(ctx, want); !errors.Is(err, store.ErrDuplicate) {
		t.Errorf("duplicate save error = %v", err)
	}
}

func TestRecent(t *testing.T) {
	t.Parallel()
	s := openTemp(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"t1", "t2", "t3"} {
		if err := s.SaveTake(ctx, take(id, "scale", base.Add(time.Duration(i)*time.Minute), float64(50+i*10))); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.SaveTake(ctx, take("other", "glide", base.Add(time.Hour), 90)); err != nil {
		t.Fatal(err)
	}

	recent, err := s.Recent(ctx, "scale", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 || recent[0].ID != "t3" || recent[1].ID != "t2" {
		t.Fatalf("recent = %+v", recent)
	}
	if recent[0].Overall != 70 || recent[0].OffsetMs != 85 || recent[0].Strategy != alignment.StrategyCorrelation || recent[0].Tendency != scoring.TendencyFlat {
		t.Errorf("summary = %+v", recent[0])
	}

	all, err := s.Recent(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 || all[0].ID != "other" {
		t.Errorf("all = %+v", all)
	}
}
