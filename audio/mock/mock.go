// Package mock provides in-memory implementations of [audio.Capture] and
// [audio.Player] for unit tests.
//
// All mocks are safe for concurrent use. They record every method call so
// tests can assert on call counts and arguments, and they expose exported
// fields that control return values.
//
// Typical usage:
//
//	capture := &mock.Capture{SampleRate: 16000}
//	player := &mock.Player{}
//	// ... start a session, then feed audio:
//	capture.Feed(samples, 512)
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/RyanBlaney/sonido-vocal/audio"
)

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture].
type Capture struct {
	mu sync.Mutex

	// SampleRate stamps frames built by [Capture.Feed]. Default 16000.
	SampleRate int

	// StartError is returned by [Capture.Start].
	StartError error

	// StopError is returned by [Capture.Stop].
	StopError error

	// LatencyResult is returned by [Capture.Latency].
	LatencyResult time.Duration

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Gains records every SetGain argument in order.
	Gains []float64

	onFrame  func(audio.Frame)
	position int64
	started  chan struct{}
}

// Start implements [audio.Capture]. The callback is kept until Stop.
func (c *Capture) Start(_ context.Context, onFrame func(audio.Frame)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStart++
	if c.StartError != nil {
		return c.StartError
	}
	c.onFrame = onFrame
	c.position = 0
	if c.started != nil {
		close(c.started)
		c.started = nil
	}
	return nil
}

// Stop implements [audio.Capture].
func (c *Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountStop++
	c.onFrame = nil
	return c.StopError
}

// SetGain implements [audio.Capture].
func (c *Capture) SetGain(gain float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Gains = append(c.Gains, gain)
}

// Latency implements [audio.LatencyReporter].
func (c *Capture) Latency() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.LatencyResult
}

// Running reports whether a callback is registered.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onFrame != nil
}

// Started returns a channel closed by the next successful Start, or an
// already closed channel when capture is running.
func (c *Capture) Started() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	if c.onFrame != nil {
		close(ch)
		return ch
	}
	if c.started == nil {
		c.started = ch
	}
	return c.started
}

// Emit delivers one frame to the registered callback. It reports false when
// capture is not running.
func (c *Capture) Emit(frame audio.Frame) bool {
	c.mu.Lock()
	cb := c.onFrame
	c.mu.Unlock()
	if cb == nil {
		return false
	}
	cb(frame)
	return true
}

// Feed splits mono samples into frames of chunk samples and emits them with
// consecutive positions. It returns the number of frames delivered.
func (c *Capture) Feed(samples []float64, chunk int) int {
	c.mu.Lock()
	rate := c.SampleRate
	c.mu.Unlock()
	if rate <= 0 {
		rate = 16000
	}

	delivered := 0
	for start := 0; start < len(samples); start += chunk {
		end := min(start+chunk, len(samples))
		c.mu.Lock()
		pos := c.position
		c.position += int64(end - start)
		c.mu.Unlock()

		frame := audio.Frame{
			Samples:          samples[start:end],
			SampleRate:       rate,
			Channels:         1,
			Position:         pos,
			Timestamp:        time.Duration(float64(pos) / float64(rate) * float64(time.Second)),
			PlaybackPosition: -1,
		}
		if !c.Emit(frame) {
			break
		}
		delivered++
	}
	return delivered
}

// ─── Player ───────────────────────────────────────────────────────────────────

// GainCall records the arguments of a single [Player.SetGain] invocation.
type GainCall struct {
	Track int
	Gain  float64
}

// Player is a mock implementation of [audio.Player].
type Player struct {
	mu sync.Mutex

	// PlayError is returned by [Player.Play].
	PlayError error

	// StopError is returned by [Player.Stop].
	StopError error

	// PositionResult is returned by [Player.Position].
	PositionResult time.Duration

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	// Plays records the tracks of every Play call, in order.
	Plays [][]audio.Track

	// GainCalls records every SetGain call, in order.
	GainCalls []GainCall

	playing bool
}

// Play implements [audio.Player].
func (p *Player) Play(_ context.Context, tracks ...audio.Track) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]audio.Track, len(tracks))
	copy(cp, tracks)
	p.Plays = append(p.Plays, cp)
	if p.PlayError != nil {
		return p.PlayError
	}
	p.playing = true
	return nil
}

// Stop implements [audio.Player].
func (p *Player) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CallCountStop++
	p.playing = false
	return p.StopError
}

// SetGain implements [audio.Player].
func (p *Player) SetGain(track int, gain float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GainCalls = append(p.GainCalls, GainCall{Track: track, Gain: gain})
}

// Position implements [audio.Player].
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.PositionResult
}

// SetPosition changes the value returned by Position.
func (p *Player) SetPosition(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PositionResult = d
}

// Playing reports whether Play succeeded without a later Stop.
func (p *Player) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// LastPlay returns the tracks of the most recent Play call.
func (p *Player) LastPlay() []audio.Track {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Plays) == 0 {
		return nil
	}
	return p.Plays[len(p.Plays)-1]
}

// PlayCount returns the number of Play calls.
func (p *Player) PlayCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Plays)
}
