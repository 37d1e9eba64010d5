// Package transcode turns reference recordings into mono float PCM. WAV at
// the target rate is decoded in process; anything else goes through ffmpeg.
package transcode

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/RyanBlaney/sonido-vocal/logging"
)

// ErrNoSamples is returned when a source decodes to nothing.
var ErrNoSamples = errors.New("no audio samples decoded")

// AudioData is decoded mono audio.
type AudioData struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Duration   time.Duration `json:"duration"`
	// Source names the decoder that produced the samples: "wav" or "ffmpeg".
	Source string `json:"source"`
}

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	TargetSampleRate int           `yaml:"target_sample_rate"`
	MaxDuration      time.Duration `yaml:"max_duration"`
	ResampleQuality  string        `yaml:"resample_quality"` // "fast", "medium", "high"
	FFmpegPath       string        `yaml:"ffmpeg_path"`
	Timeout          time.Duration `yaml:"timeout"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig(sampleRate int) DecoderConfig {
	return DecoderConfig{
		TargetSampleRate: sampleRate,
		ResampleQuality:  "medium",
		FFmpegPath:       "ffmpeg", // Assume in PATH
		Timeout:          30 * time.Second,
	}
}

// Decoder decodes reference tracks.
type Decoder struct {
	config DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config DecoderConfig, logger logging.Logger) (*Decoder, error) {
	if config.TargetSampleRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive: %d", config.TargetSampleRate)
	}
	return &Decoder{
		config: config,
		logger: logging.OrGlobal(logger).WithFields(logging.Fields{"component": "audio_decoder"}),
	}, nil
}

// DecodeFile decodes an audio file to mono PCM at the target rate.
func (d *Decoder) DecodeFile(ctx context.Context, filename string) (*AudioData, error) {
	logger := d.logger.WithFields(logging.Fields{"filename": filename})

	if strings.EqualFold(filepath.Ext(filename), ".wav") {
		f, err := os.Open(filename)
		if err != nil {
			return nil, fmt.Errorf("open %q: %w", filename, err)
		}
		data, err := DecodeWAV(f)
		f.Close()
		switch {
		case err != nil:
			logger.Debug("in process WAV decode failed, trying ffmpeg", logging.Fields{"error": err.Error()})
		case data.SampleRate == d.config.TargetSampleRate:
			d.trim(data)
			logger.Debug("decoded WAV", logging.Fields{"samples": len(data.PCM), "sample_rate": data.SampleRate})
			return data, nil
		default:
			logger.Debug("WAV needs resampling, using ffmpeg", logging.Fields{
				"sample_rate": data.SampleRate,
				"target":      d.config.TargetSampleRate,
			})
		}
	}

	return d.decodeWithFFmpeg(ctx, filename, logger)
}

func (d *Decoder) trim(data *AudioData) {
	if d.config.MaxDuration <= 0 {
		return
	}
	if n := int(d.config.MaxDuration.Seconds() * float64(data.SampleRate)); n < len(data.PCM) {
		data.PCM = data.PCM[:n]
		data.Duration = durationOf(n, data.SampleRate)
	}
}

func (d *Decoder) decodeWithFFmpeg(ctx context.Context, filename string, logger logging.Logger) (*AudioData, error) {
	args := append([]string{"-i", filename}, d.buildFFmpegArgs()...)
	args = append(args, "pipe:1")

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})

	output, err := cmd.Output()
	if err != nil {
		var exitError *exec.ExitError
		if errors.As(err, &exitError) {
			logger.Error(err, "Ffmpeg decode failed", logging.Fields{
				"stderr": string(exitError.Stderr),
			})
		}
		return nil, fmt.Errorf("ffmpeg decode failed: %w", err)
	}

	samples := bytesToFloat64(output)
	if len(samples) == 0 {
		return nil, fmt.Errorf("%q: %w", filename, ErrNoSamples)
	}
	return &AudioData{
		PCM:        samples,
		SampleRate: d.config.TargetSampleRate,
		Duration:   durationOf(len(samples), d.config.TargetSampleRate),
		Source:     "ffmpeg",
	}, nil
}

// buildFFmpegArgs builds mono f64le output arguments at the target rate.
func (d *Decoder) buildFFmpegArgs() []string {
	args := []string{
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.TargetSampleRate),
	}

	switch d.config.ResampleQuality {
	case "fast":
		args = append(args, "-af", "aresample=resampler=soxr:precision=16")
	case "medium":
		args = append(args, "-af", "aresample=resampler=soxr:precision=20")
	case "high":
		args = append(args, "-af", "aresample=resampler=soxr:precision=28")
	}

	if d.config.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.2f", d.config.MaxDuration.Seconds()))
	}

	// Suppress ffmpeg output
	return append(args, "-v", "error")
}

// DecodeWAV decodes integer PCM WAV and mixes it down to mono in [-1, 1].
func DecodeWAV(r io.ReadSeeker) (*AudioData, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("not a valid WAV file")
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read WAV samples: %w", err)
	}
	if buf == nil || buf.Format == nil || len(buf.Data) == 0 {
		return nil, ErrNoSamples
	}

	channels := max(buf.Format.NumChannels, 1)
	depth := int(dec.BitDepth)
	if depth <= 0 || depth > 32 {
		return nil, fmt.Errorf("unsupported WAV bit depth %d", depth)
	}
	scale := 1 / float64(int64(1)<<(depth-1))
	if depth == 8 {
		// 8 bit WAV is unsigned
		for i, v := range buf.Data {
			buf.Data[i] = v - 128
		}
	}

	n := len(buf.Data) / channels
	pcm := make([]float64, n)
	for i := range n {
		sum := 0
		for c := range channels {
			sum += buf.Data[i*channels+c]
		}
		pcm[i] = float64(sum) / float64(channels) * scale
	}

	return &AudioData{
		PCM:        pcm,
		SampleRate: buf.Format.SampleRate,
		Duration:   durationOf(n, buf.Format.SampleRate),
		Source:     "wav",
	}, nil
}

// WriteWAV writes mono samples as 16 bit PCM, clipping to [-1, 1].
func WriteWAV(w io.WriteSeeker, samples []float64, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	enc := wav.NewEncoder(w, sampleRate, 16, 1, 1)

	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(math.Round(max(-1, min(1, v)) * math.MaxInt16))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		enc.Close()
		return fmt.Errorf("write WAV samples: %w", err)
	}
	return enc.Close()
}

// WriteWAVFile writes samples to path.
func WriteWAVFile(path string, samples []float64, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, samples, sampleRate); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// bytesToFloat64 converts raw float64 bytes to []float64
func bytesToFloat64(data []byte) []float64 {
	// Trim to multiple of 8 bytes
	data = data[:len(data)-(len(data)%8)]
	if len(data) == 0 {
		return nil
	}

	samples := make([]float64, len(data)/8)
	for i := range samples {
		bits := binary.LittleEndian.Uint64(data[i*8 : i*8+8])
		samples[i] = math.Float64frombits(bits)
	}
	return samples
}

func durationOf(samples, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}
