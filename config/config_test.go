package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/logging"
)

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if cfg.Audio.SampleRate != DefaultSampleRate || cfg.Pitch.SampleRate != DefaultSampleRate {
		t.Errorf("rates = %d / %d", cfg.Audio.SampleRate, cfg.Pitch.SampleRate)
	}
	if cfg.Alignment.Method != alignment.MethodEnvelope {
		t.Errorf("alignment method = %q", cfg.Alignment.Method)
	}
}

func TestLoadFromReader_Overrides(t *testing.T) {
	t.Parallel()
	const doc = `
log:
  level: debug
  format: json
audio:
  sample_rate: 44100
  frames_per_buffer: 128
pitch:
  window_size: 4096
  hop_size: 441
alignment:
  method: waveform
  device_latency_sec: 0.012
session:
  playhead_interval: 20ms
  tail_margin_sec: 2
store:
  path: ""
server:
  addr: ":9000"
`
	cfg, err := LoadFromReader(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	// rate follows audio.sample_rate
	if cfg.Pitch.SampleRate != 44100 || cfg.Session.SampleRate != 44100 || cfg.Decoder.TargetSampleRate != 44100 {
		t.Errorf("rates = pitch %d, session %d, decoder %d", cfg.Pitch.SampleRate, cfg.Session.SampleRate, cfg.Decoder.TargetSampleRate)
	}
	if cfg.Pitch.WindowSize != 4096 || cfg.Pitch.HopSize != 441 {
		t.Errorf("pitch = %+v", cfg.Pitch)
	}
	// untouched fields keep their defaults
	if cfg.Pitch.MinFreq != 60 || !cfg.Pitch.OctaveCorrection {
		t.Errorf("pitch defaults lost: %+v", cfg.Pitch)
	}
	if cfg.Alignment.Method != alignment.MethodWaveform || cfg.Alignment.DeviceLatencySec != 0.012 {
		t.Errorf("alignment = %+v", cfg.Alignment)
	}
	if cfg.Session.PlayheadInterval != 20*time.Millisecond || cfg.Session.TailMarginSec != 2 {
		t.Errorf("session = %+v", cfg.Session)
	}
	if cfg.Store.Path != "" || cfg.Server.Addr != ":9000" || cfg.Server.FeedPath != "/feed" {
		t.Errorf("store = %+v, server = %+v", cfg.Store, cfg.Server)
	}

	logger, err := cfg.Log.NewLogger(nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := logger.(*logging.ZapLogger); !ok {
		t.Errorf("json format built %T", logger)
	}
}

func TestLoadFromReader_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{
			name: "unknown field",
			doc:  "pitch:\n  window: 10\n",
			want: []string{"window"},
		},
		{
			name: "several problems",
			doc: `
log:
  level: loud
  format: xml
pitch:
  hop_size: 9000
scoring:
  weighting: median
server:
  metrics_path: /feed
`,
			want: []string{"log.level", "log.format", "pitch:", "scoring:", "server.feed_path and server.metrics_path"},
		},
		{
			name: "rate mismatch",
			doc:  "audio:\n  sample_rate: 16000\npitch:\n  sample_rate: 44100\n",
			want: []string{"pitch.sample_rate 44100 differs"},
		},
		{
			name: "bad alignment",
			doc:  "alignment:\n  min_confidence: 2\n",
			want: []string{"alignment:"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadFromReader(strings.NewReader(tc.doc))
			if err == nil {
				t.Fatal("expected an error")
			}
			for _, w := range tc.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := filepath.Join(dir, "vocal.yaml")
	if err := os.WriteFile(path, []byte("audio:\n  sample_rate: 16000\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Session.SampleRate != 16000 {
		t.Errorf("session rate = %d", cfg.Session.SampleRate)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil || !strings.Contains(err.Error(), "open") {
		t.Errorf("missing file error = %v", err)
	}
}

func TestLogConfig_NewLogger(t *testing.T) {
	t.Parallel()
	if l, err := (LogConfig{Level: "warn"}).NewLogger(nil); err != nil {
		t.Fatal(err)
	} else if _, ok := l.(*logging.DefaultLogger); !ok {
		t.Errorf("text format built %T", l)
	}

	var buf strings.Builder
	l, err := (LogConfig{Level: "info", Format: LogFormatText}).NewLogger(&buf)
	if err != nil {
		t.Fatal(err)
	}
	l.Debug("hidden")
	l.Info("shown")
	if out := buf.String(); strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("writer logger output = %q", out)
	}

	if _, err := (LogConfig{Level: "verbose"}).NewLogger(nil); err == nil {
		t.Error("unknown level accepted")
	}
}
