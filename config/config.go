// Package config defines the configuration file of the sonido-vocal
// command. Each section reuses the owning package's Config type, so the
// defaults and validation rules live next to the code they configure.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/pitch"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/session"
	"github.com/RyanBlaney/sonido-vocal/tail"
	"github.com/RyanBlaney/sonido-vocal/transcode"
)

// LogFormat selects the log backend.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// IsValid reports whether f is a known format.
func (f LogFormat) IsValid() bool {
	return f == LogFormatText || f == LogFormatJSON
}

// Config is the top-level configuration.
type Config struct {
	Log       LogConfig               `yaml:"log"`
	Audio     AudioConfig             `yaml:"audio"`
	Decoder   transcode.DecoderConfig `yaml:"decoder"`
	Pitch     pitch.Config            `yaml:"pitch"`
	Tail      tail.Config             `yaml:"tail"`
	Alignment alignment.Config        `yaml:"alignment"`
	Scoring   scoring.Config          `yaml:"scoring"`
	Session   session.Config          `yaml:"session"`
	Store     StoreConfig             `yaml:"store"`
	Server    ServerConfig            `yaml:"server"`
}

// LogConfig selects the level and backend.
type LogConfig struct {
	Level  string    `yaml:"level"`
	Format LogFormat `yaml:"format"`
}

// AudioConfig is the sound card stream. Its rate is the clock every other
// section runs at.
type AudioConfig struct {
	SampleRate      int `yaml:"sample_rate"`
	FramesPerBuffer int `yaml:"frames_per_buffer"`
}

// StoreConfig locates the take history database. An empty path disables
// persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServerConfig holds the HTTP listener for the state feed and metrics.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	FeedPath        string        `yaml:"feed_path"`
	MetricsPath     string        `yaml:"metrics_path"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Default returns the configuration for a stream at sampleRate.
func Default(sampleRate int) *Config {
	return &Config{
		Log:       LogConfig{Level: "info", Format: LogFormatText},
		Audio:     AudioConfig{SampleRate: sampleRate, FramesPerBuffer: 256},
		Decoder:   transcode.DefaultDecoderConfig(sampleRate),
		Pitch:     pitch.DefaultConfig(sampleRate),
		Tail:      tail.DefaultConfig(),
		Alignment: alignment.DefaultConfig(),
		Scoring:   scoring.DefaultConfig(),
		Session:   session.DefaultConfig(sampleRate),
		Store:     StoreConfig{Path: "sonido-vocal.db"},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8089",
			FeedPath:        "/feed",
			MetricsPath:     "/metrics",
			ShutdownTimeout: 5 * time.Second,
		},
	}
}

// NewLogger builds the configured logger. Text logs go to w, or to the
// console when w is nil; JSON logs always go to stderr.
func (c LogConfig) NewLogger(w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	switch c.Format {
	case LogFormatJSON:
		return logging.NewZapLogger(level)
	case LogFormatText, "":
		if w != nil {
			return logging.NewWriterLogger(w, level), nil
		}
		l := logging.NewDefaultLogger()
		l.SetLevel(level)
		return l, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", c.Format)
	}
}

func validatePath(name, p string) error {
	if p == "" || !strings.HasPrefix(p, "/") {
		return fmt.Errorf("%s %q must start with /", name, p)
	}
	return nil
}
