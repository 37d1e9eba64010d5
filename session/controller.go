// Package session sequences a practice take: recording, processing and
// replay. A [Controller] owns every piece of take state on a single event
// loop goroutine; audio callbacks and public methods only post events to it.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/RyanBlaney/sonido-vocal/alignment"
	"github.com/RyanBlaney/sonido-vocal/audio"
	"github.com/RyanBlaney/sonido-vocal/contour"
	"github.com/RyanBlaney/sonido-vocal/logging"
	"github.com/RyanBlaney/sonido-vocal/melody"
	"github.com/RyanBlaney/sonido-vocal/observe"
	"github.com/RyanBlaney/sonido-vocal/pitch"
	"github.com/RyanBlaney/sonido-vocal/scoring"
	"github.com/RyanBlaney/sonido-vocal/store"
	"github.com/RyanBlaney/sonido-vocal/synth"
	"github.com/RyanBlaney/sonido-vocal/tail"
)

var (
	// ErrBusy is returned by Start outside the idle phase.
	ErrBusy = errors.New("session: a take is already in progress")
	// ErrWrongPhase is returned by operations the current phase does not
	// allow.
	ErrWrongPhase = errors.New("session: operation not allowed in the current phase")
	// ErrClosed is returned once Run has returned.
	ErrClosed = errors.New("session: controller is not running")
	// ErrInvalidGain is returned by SetGain for a bad track or gain.
	ErrInvalidGain = errors.New("session: invalid gain")
)

// Option configures a [Controller].
type Option func(*Controller)

// WithLogger sets the logger. The global logger is used otherwise.
func WithLogger(l logging.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metric instruments.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithSynth sets the renderer for exercises without a backing track. A nil
// synth records those takes without playback.
func WithSynth(s synth.Synth) Option {
	return func(c *Controller) { c.synth = s; c.synthSet = true }
}

// WithSink sets where scored takes are saved.
func WithSink(s store.Sink) Option {
	return func(c *Controller) { c.sink = s }
}

// WithProcessor replaces the default alignment and scoring.
func WithProcessor(p Processor) Option {
	return func(c *Controller) { c.processor = p }
}

// WithPitchConfig sets the live pitch detector configuration.
func WithPitchConfig(cfg pitch.Config) Option {
	return func(c *Controller) { c.pitchCfg = cfg; c.pitchSet = true }
}

// WithTailConfig sets the pitch tail configuration.
func WithTailConfig(cfg tail.Config) Option {
	return func(c *Controller) { c.tailCfg = cfg; c.tailSet = true }
}

type cmdKind int

const (
	cmdStart cmdKind = iota
	cmdStop
	cmdCancel
	cmdDone
	cmdGain
	cmdApplyAlignment
)

type command struct {
	kind     cmdKind
	exercise Exercise
	track    int
	gain     float64
	apply    bool
	reply    chan error
}

type frameEvent struct {
	gen   uint64
	frame audio.Frame
}

type result struct {
	gen       uint64
	take      Take
	alignment alignment.Result
	score     scoring.Result
	err       error
	elapsed   time.Duration
}

// recording is the state of the take being captured.
type recording struct {
	gen       uint64
	exercise  Exercise
	reference []float64
	refRate   int
	startedAt time.Time
	cancel    context.CancelFunc

	stream  *pitch.Stream
	pitchCh <-chan pitch.Frame
	contour *contour.Contour

	capture     []float64
	captureRate int
	firstPos    int64
	nextPos     int64
	limitSec    float64

	// anchored is set once the capture buffer starts where the reference
	// started playing.
	anchored bool

	// stopping is set once capture stopped; the pitch stream is draining.
	stopping bool
}

// Controller runs the take state machine idle → recording → processing →
// replay → idle. Public methods are safe for concurrent use and block until
// the event loop started by [Controller.Run] has handled them.
type Controller struct {
	cfg      Config
	capture  audio.Capture
	player   audio.Player
	pitchCfg pitch.Config
	tailCfg  tail.Config

	synth     synth.Synth
	sink      store.Sink
	processor Processor
	logger    logging.Logger
	metrics   *observe.Metrics

	pitchSet, tailSet, synthSet bool

	cmds    chan command
	frames  chan frameEvent
	results chan result
	quit    chan struct{}
	running atomic.Bool
	wg      sync.WaitGroup

	dropped  atomic.Int64
	snapshot atomic.Pointer[State]

	subMu   sync.Mutex
	subs    map[int]chan State
	nextSub int
	closed  bool

	// Owned by the event loop.
	state      State
	gen        uint64
	tail       *tail.Buffer
	rec        *recording
	replay     *Take
	procCancel context.CancelFunc
}

// New builds a controller around a capture and a playback device.
func New(cfg Config, capture audio.Capture, player audio.Player, opts ...Option) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if capture == nil || player == nil {
		return nil, errors.New("session: capture and player are required")
	}

	c := &Controller{
		cfg:     cfg,
		capture: capture,
		player:  player,
		cmds:    make(chan command),
		frames:  make(chan frameEvent, cfg.FrameQueue),
		results: make(chan result),
		quit:    make(chan struct{}),
		subs:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}

	if !c.pitchSet {
		c.pitchCfg = pitch.DefaultConfig(cfg.SampleRate)
	}
	if err := c.pitchCfg.Validate(); err != nil {
		return nil, err
	}
	if !c.tailSet {
		c.tailCfg = tail.DefaultConfig()
	}
	if !c.synthSet {
		c.synth = synth.NewSine()
	}
	if c.sink == nil {
		c.sink = store.Nop{}
	}
	c.logger = logging.OrGlobal(c.logger).WithFields(logging.Fields{"component": "session"})
	c.metrics = observe.OrDefault(c.metrics)

	if c.processor == nil {
		al, err := alignment.New(alignment.DefaultConfig(), alignment.WithLogger(c.logger), alignment.WithMetrics(c.metrics))
		if err != nil {
			return nil, err
		}
		sc, err := scoring.New(scoring.DefaultConfig())
		if err != nil {
			return nil, err
		}
		c.processor = NewProcessor(al, sc)
	}

	c.tail = tail.New(c.tailCfg)
	c.state = State{
		Phase:          PhaseIdle,
		ReferenceGain:  cfg.ReferenceGain,
		TakeGain:       cfg.TakeGain,
		ApplyAlignment: cfg.ApplyAlignment,
	}
	s := c.state.clone()
	c.snapshot.Store(&s)
	return c, nil
}

// State returns the latest published state.
func (c *Controller) State() State {
	return *c.snapshot.Load()
}

// Subscribe returns a channel carrying the latest state. A slow reader
// only misses intermediate states, never the newest one. The channel is
// closed by the returned cancel function or when Run returns.
func (c *Controller) Subscribe() (<-chan State, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	ch := make(chan State, 1)
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	ch <- *c.snapshot.Load()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Start begins recording a take. It returns [ErrBusy] unless idle.
func (c *Controller) Start(ex Exercise) error {
	return c.do(command{kind: cmdStart, exercise: ex})
}

// Stop ends recording early and starts processing.
func (c *Controller) Stop() error {
	return c.do(command{kind: cmdStop})
}

// Cancel abandons the current take from any phase and returns to idle.
// Cancelling while idle does nothing.
func (c *Controller) Cancel() error {
	return c.do(command{kind: cmdCancel})
}

// Done leaves replay and releases the take.
func (c *Controller) Done() error {
	return c.do(command{kind: cmdDone})
}

// SetGain sets the gain of [audio.TrackReference] or [audio.TrackTake].
func (c *Controller) SetGain(track int, gain float64) error {
	return c.do(command{kind: cmdGain, track: track, gain: gain})
}

// SetApplyAlignment toggles whether replay shifts the take by the measured
// offset. Changing it during replay restarts playback.
func (c *Controller) SetApplyAlignment(on bool) error {
	return c.do(command{kind: cmdApplyAlignment, apply: on})
}

func (c *Controller) do(cmd command) error {
	cmd.reply = make(chan error, 1)
	select {
	case c.cmds <- cmd:
	case <-c.quit:
		return ErrClosed
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-c.quit:
		return ErrClosed
	}
}

// Run is the event loop. It returns when ctx is cancelled, after stopping
// audio and waiting for background work.
func (c *Controller) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}

	ticker := time.NewTicker(c.cfg.PlayheadInterval)
	defer ticker.Stop()

	c.logger.Debug("session loop started")
	for {
		var pitchCh <-chan pitch.Frame
		if c.rec != nil {
			pitchCh = c.rec.pitchCh
		}

		select {
		case <-ctx.Done():
			c.shutdown()
			return ctx.Err()

		case cmd := <-c.cmds:
			cmd.reply <- c.handle(ctx, cmd)

		case ev := <-c.frames:
			c.onAudio(ev)

		case f, ok := <-pitchCh:
			if !ok {
				if !c.rec.stopping {
					c.finishRecording()
				}
				c.beginProcessing(ctx)
				continue
			}
			c.onPitch(f)

		case r := <-c.results:
			c.onResult(ctx, r)

		case <-ticker.C:
			c.onTick()
		}
	}
}

func (c *Controller) shutdown() {
	if c.state.Phase != PhaseIdle {
		c.abort()
		c.metrics.RecordTake(context.Background(), observe.OutcomeCancelled)
		c.toIdle("")
	}
	close(c.quit)
	c.wg.Wait()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for id, ch := range c.subs {
		close(ch)
		delete(c.subs, id)
	}
	c.closed = true
	c.logger.Debug("session loop stopped")
}

func (c *Controller) handle(ctx context.Context, cmd command) error {
	switch cmd.kind {
	case cmdStart:
		return c.startTake(ctx, cmd.exercise)

	case cmdStop:
		if c.state.Phase != PhaseRecording || c.rec == nil || c.rec.stopping {
			return fmt.Errorf("%w: stop during %s", ErrWrongPhase, c.state.Phase)
		}
		c.finishRecording()
		return nil

	case cmdCancel:
		if c.state.Phase == PhaseIdle {
			return nil
		}
		c.logger.Info("take cancelled", logging.Fields{"phase": c.state.Phase, "take_id": c.state.TakeID})
		c.abort()
		c.metrics.RecordTake(ctx, observe.OutcomeCancelled)
		c.toIdle("")
		return nil

	case cmdDone:
		if c.state.Phase != PhaseReplay {
			return fmt.Errorf("%w: done during %s", ErrWrongPhase, c.state.Phase)
		}
		c.abort()
		c.toIdle("")
		return nil

	case cmdGain:
		return c.setGain(cmd.track, cmd.gain)

	case cmdApplyAlignment:
		if c.state.ApplyAlignment == cmd.apply {
			return nil
		}
		c.state.ApplyAlignment = cmd.apply
		if c.state.Phase == PhaseReplay {
			c.startReplayPlayback(ctx)
		}
		c.publish()
		return nil
	}
	return fmt.Errorf("session: unknown command %d", cmd.kind)
}

func (c *Controller) startTake(ctx context.Context, ex Exercise) error {
	if c.state.Phase != PhaseIdle {
		return fmt.Errorf("%w: phase is %s", ErrBusy, c.state.Phase)
	}
	if err := ex.validate(); err != nil {
		return fmt.Errorf("session: invalid exercise %q: %w", ex.ID, err)
	}

	det, err := pitch.NewDetector(c.pitchCfg, pitch.WithLogger(c.logger), pitch.WithMetrics(c.metrics))
	if err != nil {
		return err
	}

	reference, refRate := ex.Reference, ex.SampleRate
	if len(reference) == 0 && c.synth != nil {
		reference = c.synth.Render(ex.Segments, ex.LeadInSec, c.cfg.SampleRate)
		refRate = c.cfg.SampleRate
	}

	c.gen++
	gen := c.gen
	// only abort and beginProcessing end a take; shutdown goes through abort
	recCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	stream := pitch.NewStream(det, pitch.WithLogger(c.logger), pitch.WithMetrics(c.metrics))
	pitchCh, err := stream.Start(recCtx)
	if err != nil {
		cancel()
		return err
	}

	limit := ex.LeadInSec + melody.DurationSec(ex.Segments)
	if refRate > 0 {
		limit = max(limit, float64(len(reference))/float64(refRate))
	}
	limit += c.cfg.TailMarginSec
	if c.cfg.MaxTakeSec > 0 {
		limit = min(limit, c.cfg.MaxTakeSec)
	}

	c.rec = &recording{
		gen:       gen,
		exercise:  ex,
		reference: reference,
		refRate:   refRate,
		startedAt: time.Now(),
		cancel:    cancel,
		stream:    stream,
		pitchCh:   pitchCh,
		contour:   contour.New(c.pitchCfg.SampleRate, c.pitchCfg.HopSize, 0),
		limitSec:  limit,
	}

	onFrame := func(f audio.Frame) {
		select {
		case c.frames <- frameEvent{gen: gen, frame: f}:
		default:
			n := c.dropped.Add(1)
			c.metrics.RecordDrop(context.Background(), "capture", 1)
			if n == 1 || n%100 == 0 {
				c.logger.Warn("capture queue full, dropping audio frame", logging.Fields{
					"dropped":  n,
					"position": f.Position,
				})
			}
		}
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := c.capture.Start(recCtx, onFrame); err != nil {
			return fmt.Errorf("start capture: %w", err)
		}
		return nil
	})
	if len(reference) > 0 {
		g.Go(func() error {
			track := audio.Track{Samples: reference, SampleRate: refRate, Gain: c.state.ReferenceGain}
			if err := c.player.Play(recCtx, track); err != nil {
				return fmt.Errorf("start reference playback: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Error(err, "could not start take", logging.Fields{"exercise_id": ex.ID})
		c.stopDevices(true)
		stream.Stop()
		cancel()
		c.rec = nil
		return err
	}

	c.metrics.ActiveSessions.Add(ctx, 1)
	c.tail.Reset()
	c.state.Phase = PhaseRecording
	c.state.TakeID = uuid.NewString()
	c.state.ExerciseID = ex.ID
	c.state.RecordPlayheadSec = 0
	c.state.ReplayPlayheadSec = 0
	c.state.Alignment = nil
	c.state.Score = nil
	c.state.Err = ""
	c.logger.Info("recording started", logging.Fields{
		"take_id":     c.state.TakeID,
		"exercise_id": ex.ID,
		"limit_sec":   limit,
	})
	c.publish()
	return nil
}

func (c *Controller) onAudio(ev frameEvent) {
	r := c.rec
	if r == nil || r.stopping || ev.gen != r.gen {
		return
	}
	f := ev.frame
	if f.SampleRate <= 0 || f.Len() == 0 {
		return
	}

	if r.captureRate == 0 {
		r.captureRate = f.SampleRate
		r.firstPos = f.Position
		r.nextPos = f.Position
		r.contour.StartOffsetSec = f.Seconds()
	}
	if f.SampleRate != r.captureRate {
		return
	}

	// keep the capture buffer on the stream clock across dropped frames
	if gap := f.Position - r.nextPos; gap > 0 && gap <= int64(r.captureRate) {
		r.capture = append(r.capture, make([]float64, gap)...)
	}
	if !r.anchored && f.PlaybackPosition >= 0 && len(r.reference) > 0 {
		c.anchorCapture(r, f.Position-f.PlaybackPosition)
	}
	r.nextPos = f.Position + int64(f.Len())
	r.capture = append(r.capture, f.Mono()...)
	r.stream.Push(f)

	c.state.RecordPlayheadSec = float64(len(r.capture)) / float64(r.captureRate)
	if c.state.RecordPlayheadSec >= r.limitSec {
		c.logger.Info("take reached its length", logging.Fields{"seconds": c.state.RecordPlayheadSec})
		c.finishRecording()
	}
}

// anchorCapture moves the start of the capture buffer and the contour to
// refStart, the capture position at which reference sample 0 was played.
// Capture may start before or after playback.
func (c *Controller) anchorCapture(r *recording, refStart int64) {
	r.anchored = true
	switch shift := refStart - r.firstPos; {
	case shift > 0:
		n := int(min(shift, int64(len(r.capture))))
		r.capture = append([]float64(nil), r.capture[n:]...)
	case shift < 0:
		pad := int(-shift)
		r.capture = append(make([]float64, pad, pad+len(r.capture)), r.capture...)
	}
	r.contour.StartOffsetSec = float64(refStart) / float64(r.captureRate)
	c.logger.Debug("capture anchored to playback", logging.Fields{
		"take_id":  c.state.TakeID,
		"skew_sec": float64(r.firstPos-refStart) / float64(r.captureRate),
	})
}

func (c *Controller) onPitch(f pitch.Frame) {
	r := c.rec
	if err := r.contour.Append(f); err != nil {
		c.logger.Warn("dropping pitch frame", logging.Fields{"error": err.Error()})
		return
	}
	f.TimeSec -= r.contour.StartOffsetSec + r.exercise.LeadInSec
	c.tail.PushFrame(f)
	c.publish()
}

// finishRecording stops the devices; processing starts once the pitch
// stream has drained.
func (c *Controller) finishRecording() {
	r := c.rec
	r.stopping = true
	c.stopDevices(true)
	r.stream.Stop()

	c.state.Phase = PhaseProcessing
	c.logger.Info("recording stopped", logging.Fields{
		"take_id": c.state.TakeID,
		"seconds": c.state.RecordPlayheadSec,
	})
	c.publish()
}

func (c *Controller) beginProcessing(ctx context.Context) {
	r := c.rec
	c.rec = nil
	r.cancel()
	r.contour.Freeze()
	c.state.DroppedFrames = c.dropped.Load() + r.stream.Dropped()

	take := Take{
		ID:            c.state.TakeID,
		Exercise:      r.exercise,
		RecordedAt:    r.startedAt,
		Reference:     r.reference,
		ReferenceRate: r.refRate,
		Capture:       r.capture,
		CaptureRate:   r.captureRate,
		Contour:       r.contour,
	}
	take.LatencySec, take.InputBufferFrames, take.OutputBufferFrames = c.deviceLatency()

	pctx, cancel := context.WithCancel(ctx)
	c.procCancel = cancel
	gen := c.gen

	c.wg.Add(1)
	go c.process(pctx, gen, take)
}

func (c *Controller) process(ctx context.Context, gen uint64, take Take) {
	defer c.wg.Done()

	start := time.Now()
	res := result{gen: gen, take: take}
	func() {
		defer func() {
			if p := recover(); p != nil {
				res.err = fmt.Errorf("processing panicked: %v", p)
			}
		}()
		res.alignment, res.score, res.err = c.processor.Process(ctx, take)
	}()
	res.elapsed = time.Since(start)

	select {
	case c.results <- res:
	case <-c.quit:
	}
}

func (c *Controller) onResult(ctx context.Context, r result) {
	if r.gen != c.gen || c.state.Phase != PhaseProcessing {
		c.logger.Debug("discarding result of an abandoned take", logging.Fields{"take_id": r.take.ID})
		return
	}
	if c.procCancel != nil {
		c.procCancel()
		c.procCancel = nil
	}
	c.metrics.ProcessingDuration.Record(ctx, r.elapsed.Seconds())

	if r.err != nil {
		c.logger.Error(r.err, "processing failed", logging.Fields{"take_id": r.take.ID})
		c.metrics.RecordTake(ctx, observe.OutcomeFailed)
		c.toIdle(r.err.Error())
		return
	}

	c.metrics.RecordTake(ctx, observe.OutcomeScored)
	c.metrics.Score.Record(ctx, r.score.Overall)

	al, sc := r.alignment, r.score
	c.state.Alignment = &al
	c.state.Score = &sc
	c.state.Phase = PhaseReplay
	c.state.ReplayPlayheadSec = 0
	take := r.take
	c.replay = &take

	c.logger.Info("take scored", logging.Fields{
		"take_id":    take.ID,
		"overall":    sc.Overall,
		"offset_ms":  al.Model.OffsetMs(),
		"confidence": al.Confidence,
		"strategy":   al.Strategy,
	})

	c.startReplayPlayback(ctx)
	c.save(ctx, take, al, sc)
	c.publish()
}

func (c *Controller) replayTracks() []audio.Track {
	t := c.replay
	offset := 0.0
	if c.state.ApplyAlignment && c.state.Alignment != nil {
		offset = -c.state.Alignment.Model.MicOffsetSec
	}
	// indices match audio.TrackReference and audio.TrackTake
	return []audio.Track{
		{Samples: t.Reference, SampleRate: t.ReferenceRate, Gain: c.state.ReferenceGain},
		{Samples: t.Capture, SampleRate: t.CaptureRate, Gain: c.state.TakeGain, OffsetSec: offset},
	}
}

func (c *Controller) startReplayPlayback(ctx context.Context) {
	if err := c.player.Stop(); err != nil {
		c.logger.Debug("stopping player before replay", logging.Fields{"error": err.Error()})
	}
	if err := c.player.Play(ctx, c.replayTracks()...); err != nil {
		c.logger.Error(err, "replay playback failed", logging.Fields{"take_id": c.state.TakeID})
		c.state.Err = fmt.Sprintf("replay playback: %v", err)
		return
	}
	c.state.Err = ""
}

func (c *Controller) save(ctx context.Context, take Take, al alignment.Result, sc scoring.Result) {
	rec := store.Take{
		ID:          take.ID,
		ExerciseID:  take.Exercise.ID,
		RecordedAt:  take.RecordedAt,
		DurationSec: take.DurationSec(),
		SampleRate:  take.CaptureRate,
		HopSize:     c.pitchCfg.HopSize,
		Alignment:   al,
		Score:       sc,
		Frames:      take.Contour.Frames(),
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.sink.SaveTake(ctx, rec); err != nil {
			c.logger.Error(err, "saving take failed", logging.Fields{"take_id": rec.ID})
		}
	}()
}

func (c *Controller) setGain(track int, gain float64) error {
	if gain < 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidGain, gain)
	}
	switch track {
	case audio.TrackReference:
		c.state.ReferenceGain = gain
	case audio.TrackTake:
		c.state.TakeGain = gain
	default:
		return fmt.Errorf("%w: unknown track %d", ErrInvalidGain, track)
	}

	switch {
	case c.state.Phase == PhaseReplay:
		c.player.SetGain(track, gain)
	case c.state.Phase == PhaseRecording && track == audio.TrackReference:
		c.player.SetGain(track, gain)
	}
	c.publish()
	return nil
}

func (c *Controller) onTick() {
	switch c.state.Phase {
	case PhaseReplay:
		pos := c.player.Position().Seconds()
		if pos != c.state.ReplayPlayheadSec {
			c.state.ReplayPlayheadSec = pos
			c.publish()
		}
	case PhaseRecording:
		if p := c.snapshot.Load(); p.RecordPlayheadSec != c.state.RecordPlayheadSec {
			c.publish()
		}
	}
}

// abort releases whatever the current phase holds and invalidates any
// in-flight processing.
func (c *Controller) abort() {
	c.gen++
	if r := c.rec; r != nil {
		c.stopDevices(!r.stopping)
		r.stream.Stop()
		r.cancel()
		c.rec = nil
	}
	if c.procCancel != nil {
		c.procCancel()
		c.procCancel = nil
	}
	if c.replay != nil {
		c.stopDevices(false)
		c.replay = nil
	}
}

func (c *Controller) toIdle(errMsg string) {
	if c.state.Phase != PhaseIdle {
		c.metrics.ActiveSessions.Add(context.Background(), -1)
	}
	c.tail.Reset()
	c.state.Phase = PhaseIdle
	c.state.RecordPlayheadSec = 0
	c.state.ReplayPlayheadSec = 0
	c.state.Alignment = nil
	c.state.Score = nil
	c.state.Err = errMsg
	c.publish()
}

// stopDevices stops playback, and capture when withCapture is set. Errors
// are only logged: the devices are the collaborator's to close.
func (c *Controller) stopDevices(withCapture bool) {
	if withCapture {
		if err := c.capture.Stop(); err != nil {
			c.logger.Warn("stopping capture failed", logging.Fields{"error": err.Error()})
		}
	}
	if err := c.player.Stop(); err != nil {
		c.logger.Warn("stopping playback failed", logging.Fields{"error": err.Error()})
	}
}

// deviceLatency collects what the devices report about their latency.
func (c *Controller) deviceLatency() (sec float64, in, out int) {
	for _, dev := range []any{c.capture, c.player} {
		if lr, ok := dev.(audio.LatencyReporter); ok && sec == 0 {
			sec = lr.Latency().Seconds()
		}
		if bi, ok := dev.(audio.BufferInfo); ok && in == 0 && out == 0 {
			in, out = bi.BufferFrames()
		}
	}
	return sec, in, out
}

func (c *Controller) publish() {
	s := c.state.clone()
	s.Tail = c.tail.Snapshot()
	s.DroppedFrames = c.dropped.Load()
	if c.rec != nil {
		s.DroppedFrames += c.rec.stream.Dropped()
	} else {
		s.DroppedFrames = max(s.DroppedFrames, c.state.DroppedFrames)
	}
	c.snapshot.Store(&s)

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- s:
		default:
			// latest wins: replace the unread state
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- s:
			default:
			}
		}
	}
}
