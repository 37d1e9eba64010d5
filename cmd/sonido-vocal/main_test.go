package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/melody"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/session"
	"github.com/RyanBlaney/sonido-vocal/store"
	"github.com/RyanBlaney/sonido-vocal/synth"
	"github.com/RyanBlaney/sonido-vocal/transcode"
)

const testRate = 16000

const exerciseYAML = `id: triad
title: C major triad
lead_in_sec: 0.5
segments:
  - {start_ms: 0, end_ms: 600, start_midi: 60}
  - {start_ms: 600, end_ms: 1200, start_midi: 64}
  - {start_ms: 1200, end_ms: 1800, start_midi: 67}
`

// writeFixtures writes a config, an exercise and a take sung delaySec late.
func writeFixtures(t *testing.T, delaySec float64) (configPath, exercisePath, takePath, dbPath string) {
	t.Helper()
	dir := t.TempDir()

	dbPath = filepath.Join(dir, "takes.db")
	configPath = filepath.Join(dir, "vocal.yaml")
	cfg := fmt.Sprintf(`log:
  level: error
audio:
  sample_rate: %d
pitch:
  window_size: 1024
  hop_size: 256
  min_partial_samples: 256
alignment:
  method: waveform
store:
  path: %q
`, testRate, dbPath)
	if err := os.WriteFile(configPath, []byte(cfg), 0o644); err != nil {
		t.Fatal(err)
	}

	exercisePath = filepath.Join(dir, "triad.yaml")
	if err := os.WriteFile(exercisePath, []byte(exerciseYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	ex, err := melody.ParseExercise(strings.NewReader(exerciseYAML), dir)
	if err != nil {
		t.Fatal(err)
	}

	reference := synth.NewSine().Render(ex.Segments, ex.LeadInSec, testRate)
	delay := int(delaySec * testRate)
	take := make([]float64, delay+len(reference)+testRate/2)
	copy(take[delay:], reference)

	takePath = filepath.Join(dir, "take.wav")
	if err := transcode.WriteWAVFile(takePath, take, testRate); err != nil {
		t.Fatal(err)
	}
	return configPath, exercisePath, takePath, dbPath
}

func TestRun_Usage(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if code := run(nil, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Errorf("no args exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "analyze") {
		t.Errorf("usage = %q", stderr.String())
	}

	stderr.Reset()
	if code := run([]string{"sing"}, strings.NewReader(""), &stdout, &stderr); code != 2 {
		t.Errorf("unknown command exit = %d", code)
	}
	if !strings.Contains(stderr.String(), `unknown command "sing"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestRun_AnalyzeRequiresFiles(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	if code := run([]string{"analyze", "-take", "x.wav"}, strings.NewReader(""), &stdout, &stderr); code != 1 {
		t.Errorf("exit = %d", code)
	}
	if !strings.Contains(stderr.String(), "-exercise and -take are required") {
		t.Errorf("stderr = %q", stderr.String())
	}
}

func TestAnalyzeAndHistory(t *testing.T) {
	t.Parallel()
	const delaySec = 0.1
	configPath, exercisePath, takePath, _ := writeFixtures(t, delaySec)

	var stdout, stderr bytes.Buffer
	code := run([]string{"analyze", "-config", configPath, "-exercise", exercisePath, "-take", takePath, "-notes", "-save"},
		strings.NewReader(""), &stdout, &stderr)
	if code != 0 {
		t.Fatalf("analyze exit = %d, stderr = %s", code, stderr.String())
	}

	var rep report
	if err := json.Unmarshal(stdout.Bytes(), &rep); err != nil {
		t.Fatalf("decode report: %v\n%s", err, stdout.String())
	}
	if rep.ExerciseID != "triad" || rep.Reference != "synth" || rep.TakeID == "" {
		t.Errorf("report header = %+v", rep)
	}
	if rep.Alignment.Strategy != alignment.StrategyCorrelation {
		t.Errorf("strategy = %s", rep.Alignment.Strategy)
	}
	if off := rep.Alignment.Model.MicOffsetSec; math.Abs(off-delaySec) > 0.002 {
		t.Errorf("offset = %.4f s, want %.3f", off, delaySec)
	}
	if rep.Score.Overall < 60 {
		t.Errorf("overall = %.1f", rep.Score.Overall)
	}
	if len(rep.Score.Segments) != 3 {
		t.Errorf("segments = %d", len(rep.Score.Segments))
	}
	if len(rep.Notes) < 3 {
		t.Errorf("notes = %+v", rep.Notes)
	}

	stdout.Reset()
	if code := run([]string{"history", "-config", configPath, "-json"}, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("history exit = %d, stderr = %s", code, stderr.String())
	}
	var rows []store.Summary
	if err := json.Unmarshal(stdout.Bytes(), &rows); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != rep.TakeID || rows[0].Overall != rep.Score.Overall {
		t.Errorf("history = %+v", rows)
	}

	stdout.Reset()
	if code := run([]string{"history", "-config", configPath, "-take", rep.TakeID}, strings.NewReader(""), &stdout, &stderr); code != 0 {
		t.Fatalf("history -take exit = %d, stderr = %s", code, stderr.String())
	}
	var take store.Take
	if err := json.Unmarshal(stdout.Bytes(), &take); err != nil {
		t.Fatal(err)
	}
	if take.ID != rep.TakeID || len(take.Frames) == 0 || take.SampleRate != testRate {
		t.Errorf("stored take = id %s, %d frames, rate %d", take.ID, len(take.Frames), take.SampleRate)
	}
}

func TestPrintHistory(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := printHistory(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "no takes stored") {
		t.Errorf("empty history = %q", buf.String())
	}

	buf.Reset()
	rows := []store.Summary{{
		ID:         "take-1",
		ExerciseID: "triad",
		RecordedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Overall:    87.5,
		OffsetMs:   12.3,
		Confidence: 0.91,
		Strategy:   alignment.StrategyCorrelation,
		Tendency:   scoring.TendencyFlat,
	}}
	if err := printHistory(&buf, rows); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "RECORDED") {
		t.Fatalf("table = %q", buf.String())
	}
	for _, want := range []string{"triad", "87.5", "flat", "12.3", "0.91", "take-1"} {
		if !strings.Contains(lines[1], want) {
			t.Errorf("row %q is missing %q", lines[1], want)
		}
	}
}

type fakeControls struct {
	mu    sync.Mutex
	calls []string
	align bool
}

func (f *fakeControls) record(s string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, s)
	return nil
}

func (f *fakeControls) Start(ex session.Exercise) error { return f.record("start " + ex.ID) }
func (f *fakeControls) Stop() error                     { return f.record("stop") }
func (f *fakeControls) Cancel() error                   { return f.record("cancel") }
func (f *fakeControls) Done() error {
	f.record("done")
	return session.ErrWrongPhase
}

func (f *fakeControls) SetApplyAlignment(on bool) error {
	f.mu.Lock()
	f.align = on
	f.mu.Unlock()
	return f.record(fmt.Sprintf("align %v", on))
}

func (f *fakeControls) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.State{ApplyAlignment: f.align}
}

func TestConsole(t *testing.T) {
	t.Parallel()
	lines := make(chan string, 8)
	for _, l := range []string{"s", " x ", "", "a", "d", "?", "q", "c"} {
		lines <- l
	}
	ctrl := &fakeControls{}
	var out bytes.Buffer

	err := console(context.Background(), lines, ctrl, session.Exercise{ID: "triad"}, &out)
	if !errors.Is(err, errQuit) {
		t.Fatalf("console = %v, want errQuit", err)
	}
	if got := strings.Join(ctrl.calls, ","); got != "start triad,stop,align true,done" {
		t.Errorf("calls = %s", got)
	}
	if !strings.Contains(out.String(), "d: session: operation not allowed") {
		t.Errorf("output = %q, want the done error", out.String())
	}
	if !strings.Contains(out.String(), consoleHelp) {
		t.Errorf("output = %q, want help for an unknown command", out.String())
	}
}

func TestConsole_KeepsRunningAfterEOF(t *testing.T) {
	t.Parallel()
	lines := make(chan string)
	close(lines)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := console(ctx, lines, &fakeControls{}, session.Exercise{}, &bytes.Buffer{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("console = %v, want the context error", err)
	}
}

func TestPrintStates(t *testing.T) {
	t.Parallel()
	states := make(chan session.State, 8)
	states <- session.State{Phase: session.PhaseRecording}
	states <- session.State{Phase: session.PhaseRecording, RecordPlayheadSec: 1}
	states <- session.State{Phase: session.PhaseProcessing}
	states <- session.State{
		Phase:     session.PhaseReplay,
		Score:     &scoring.Result{Overall: 72.34, Tendency: scoring.TendencySharp, AvgCentsError: 8},
		Alignment: &alignment.Result{Model: alignment.Model{MicOffsetSec: 0.05}, Strategy: alignment.StrategyCorrelation},
	}
	states <- session.State{Phase: session.PhaseIdle}
	states <- session.State{Phase: session.PhaseRecording}
	states <- session.State{Phase: session.PhaseIdle, Err: "no signal"}
	close(states)

	var out bytes.Buffer
	printStates(context.Background(), states, &out)

	want := []string{
		"recording",
		"processing",
		fmt.Sprintf("score 72.3 (sharp, avg +8.0 cents), offset 50.0 ms via %s", alignment.StrategyCorrelation),
		"idle",
		"recording",
		"take failed: no signal",
	}
	got := strings.Split(strings.TrimSpace(out.String()), "\n")
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("output:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}
