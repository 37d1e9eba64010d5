// Package tail keeps the last few seconds of pitch for live display.
package tail

import (
	"iter"

	"github.com/RyanBlaney/sonido-vocal/algorithms/common"
	"github.com/RyanBlaney/sonido-vocal/pitch"
)

// Point is one display-ready tail sample.
type Point struct {
	TimeSec float64 `json:"t"`
	Midi    float64 `json:"midi"`
	// Y is Midi mapped into [0,1] over the buffer's midi range, 0 when
	// unvoiced.
	Y      float64 `json:"y"`
	Voiced bool    `json:"voiced"`
}

// Config holds the tail parameters.
type Config struct {
	RetentionSec float64 `yaml:"retention_sec"`
	// MinMidi and MaxMidi span the display range.
	MinMidi float64 `yaml:"min_midi"`
	MaxMidi float64 `yaml:"max_midi"`
	// FramesPerSecond sizes the initial ring capacity.
	FramesPerSecond float64 `yaml:"frames_per_second"`
}

// DefaultConfig keeps 4 s of pitch between C2 and C6.
func DefaultConfig() Config {
	return Config{
		RetentionSec:    4,
		MinMidi:         36,
		MaxMidi:         84,
		FramesPerSecond: 100,
	}
}

// Buffer is a ring of recent points. Points older than the retention window
// relative to the newest point are evicted on every push. It is not safe for
// concurrent use; the owner hands out [Buffer.Snapshot] copies.
type Buffer struct {
	cfg Config

	ring  []Point
	head  int // index of the oldest point
	count int
}

// New returns an empty buffer.
func New(cfg Config) *Buffer {
	if cfg.RetentionSec <= 0 {
		cfg.RetentionSec = DefaultConfig().RetentionSec
	}
	if cfg.MaxMidi <= cfg.MinMidi {
		cfg.MinMidi, cfg.MaxMidi = DefaultConfig().MinMidi, DefaultConfig().MaxMidi
	}
	fps := cfg.FramesPerSecond
	if fps <= 0 {
		fps = DefaultConfig().FramesPerSecond
	}
	return &Buffer{
		cfg:  cfg,
		ring: make([]Point, max(int(cfg.RetentionSec*fps)+1, 8)),
	}
}

// PointFromFrame converts a pitch frame to a point.
func (b *Buffer) PointFromFrame(f pitch.Frame) Point {
	p := Point{TimeSec: f.TimeSec, Voiced: f.Voiced}
	if f.Voiced {
		p.Midi = f.Midi
		p.Y = common.Clamp((f.Midi-b.cfg.MinMidi)/(b.cfg.MaxMidi-b.cfg.MinMidi), 0, 1)
	}
	return p
}

// PushFrame converts and pushes a pitch frame.
func (b *Buffer) PushFrame(f pitch.Frame) bool {
	return b.Push(b.PointFromFrame(f))
}

// Push appends p and evicts expired points. A point older than the newest
// one is rejected and Push returns false.
func (b *Buffer) Push(p Point) bool {
	if b.count > 0 && p.TimeSec < b.at(b.count-1).TimeSec {
		return false
	}

	if b.count == len(b.ring) {
		b.grow()
	}
	b.ring[(b.head+b.count)%len(b.ring)] = p
	b.count++

	cutoff := p.TimeSec - b.cfg.RetentionSec
	for b.count > 0 && b.ring[b.head].TimeSec <= cutoff {
		b.ring[b.head] = Point{}
		b.head = (b.head + 1) % len(b.ring)
		b.count--
	}
	return true
}

func (b *Buffer) grow() {
	next := make([]Point, len(b.ring)*2)
	for i := range b.count {
		next[i] = b.at(i)
	}
	b.ring = next
	b.head = 0
}

func (b *Buffer) at(i int) Point {
	return b.ring[(b.head+i)%len(b.ring)]
}

// Len returns the number of retained points.
func (b *Buffer) Len() int {
	return b.count
}

// PointsSince yields retained points with TimeSec >= t, oldest first. The
// sequence reads the buffer lazily and can be ranged over repeatedly.
func (b *Buffer) PointsSince(t float64) iter.Seq[Point] {
	return func(yield func(Point) bool) {
		for i := range b.count {
			p := b.at(i)
			if p.TimeSec < t {
				continue
			}
			if !yield(p) {
				return
			}
		}
	}
}

// Snapshot copies all retained points, oldest first.
func (b *Buffer) Snapshot() []Point {
	out := make([]Point, b.count)
	for i := range b.count {
		out[i] = b.at(i)
	}
	return out
}

// Reset drops every point and keeps the capacity.
func (b *Buffer) Reset() {
	clear(b.ring)
	b.head = 0
	b.count = 0
}
