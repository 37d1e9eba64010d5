package pitch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/RyanBlaney/sonido-vocal/audio"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/observe"
)

// ErrStreamStarted is returned when Start is called twice.
var ErrStreamStarted = errors.New("pitch stream already started")

// Stream runs a [Detector] on its own goroutine. Audio frames go in through
// the non-blocking [Stream.Push], which is safe to call from an audio
// callback; pitch frames come out of the channel returned by Start.
type Stream struct {
	det *Detector

	in   chan audio.Frame
	quit chan struct{}

	logger  logging.Logger
	metrics *observe.Metrics

	mu       sync.Mutex
	started  bool
	stopOnce sync.Once

	dropped atomic.Int64
}

// NewStream wraps det. The input queue holds the detector's QueueSize
// frames.
func NewStream(det *Detector, opts ...Option) *Stream {
	o := buildOptions(opts)
	size := det.cfg.QueueSize
	if size <= 0 {
		size = 64
	}
	return &Stream{
		det:     det,
		in:      make(chan audio.Frame, size),
		quit:    make(chan struct{}),
		logger:  o.logger.WithFields(logging.Fields{"component": "pitch_stream"}),
		metrics: o.metrics,
	}
}

// Start launches the worker. The returned channel is closed after Stop once
// every queued frame has been analyzed and the tail flushed, or as soon as
// ctx is cancelled.
func (s *Stream) Start(ctx context.Context) (<-chan Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return nil, ErrStreamStarted
	}
	s.started = true

	out := make(chan Frame, cap(s.in)*4)
	go s.run(ctx, out)
	return out, nil
}

func (s *Stream) run(ctx context.Context, out chan<- Frame) {
	defer close(out)

	emit := func(frames []Frame) bool {
		for _, f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return false
			}
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			return
		case f := <-s.in:
			if !emit(s.det.ProcessFrame(f)) {
				return
			}
		case <-s.quit:
			for {
				select {
				case f := <-s.in:
					if !emit(s.det.ProcessFrame(f)) {
						return
					}
				default:
					emit(s.det.Flush())
					return
				}
			}
		}
	}
}

// Push queues a frame without blocking. When the queue is full the frame is
// dropped, counted and logged, and Push returns false. Push after Stop is a
// no-op.
func (s *Stream) Push(frame audio.Frame) bool {
	select {
	case <-s.quit:
		return false
	default:
	}

	select {
	case s.in <- frame:
		return true
	default:
		n := s.dropped.Add(1)
		s.metrics.RecordDrop(context.Background(), "pitch", 1)
		if n == 1 || n%100 == 0 {
			s.logger.Warn("pitch queue full, dropping audio frame", logging.Fields{
				"dropped":  n,
				"position": frame.Position,
			})
		}
		return false
	}
}

// Stop ends the stream. It is safe to call more than once.
func (s *Stream) Stop() {
	s.stopOnce.Do(func() { close(s.quit) })
}

// Dropped returns the number of frames dropped by Push.
func (s *Stream) Dropped() int64 {
	return s.dropped.Load()
}
