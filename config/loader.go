package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/RyanBlaney/sonido-vocal/logging"
)

// DefaultSampleRate is used when the file does not set audio.sample_rate.
const DefaultSampleRate = 48000

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults and
// validates the result. The defaults follow audio.sample_rate, so setting
// only the stream rate moves the detector, session and decoder with it.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	var probe struct {
		Audio struct {
			SampleRate int `yaml:"sample_rate"`
		} `yaml:"audio"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	rate := probe.Audio.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}

	cfg := Default(rate)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error
	section := func(name string, err error) {
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	if _, err := logging.ParseLevel(cfg.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if cfg.Log.Format != "" && !cfg.Log.Format.IsValid() {
		errs = append(errs, fmt.Errorf("log.format %q is invalid; valid values: text, json", cfg.Log.Format))
	}

	if cfg.Audio.SampleRate <= 0 || cfg.Audio.FramesPerBuffer <= 0 {
		errs = append(errs, fmt.Errorf("audio: sample_rate %d and frames_per_buffer %d must be positive", cfg.Audio.SampleRate, cfg.Audio.FramesPerBuffer))
	}
	section("pitch", cfg.Pitch.Validate())
	section("alignment", cfg.Alignment.Validate())
	section("scoring", cfg.Scoring.Validate())
	section("session", cfg.Session.Validate())

	if cfg.Tail.RetentionSec <= 0 {
		errs = append(errs, fmt.Errorf("tail.retention_sec must be positive, got %v", cfg.Tail.RetentionSec))
	}
	if cfg.Tail.MaxMidi <= cfg.Tail.MinMidi {
		errs = append(errs, fmt.Errorf("tail.max_midi %v must exceed min_midi %v", cfg.Tail.MaxMidi, cfg.Tail.MinMidi))
	}

	// one clock for capture, detection, synthesis and decoding
	rate := cfg.Audio.SampleRate
	for name, r := range map[string]int{
		"pitch.sample_rate":          cfg.Pitch.SampleRate,
		"session.sample_rate":        cfg.Session.SampleRate,
		"decoder.target_sample_rate": cfg.Decoder.TargetSampleRate,
	} {
		if r != rate {
			errs = append(errs, fmt.Errorf("%s %d differs from audio.sample_rate %d", name, r, rate))
		}
	}

	if cfg.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if err := validatePath("server.feed_path", cfg.Server.FeedPath); err != nil {
		errs = append(errs, err)
	}
	if err := validatePath("server.metrics_path", cfg.Server.MetricsPath); err != nil {
		errs = append(errs, err)
	}
	if cfg.Server.FeedPath == cfg.Server.MetricsPath {
		errs = append(errs, fmt.Errorf("server.feed_path and server.metrics_path are both %q", cfg.Server.FeedPath))
	}

	return errors.Join(errs...)
}
