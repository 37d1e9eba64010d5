// Package observe holds the OpenTelemetry instruments for the vocal
// pipeline. A Prometheus exporter bridge is available via [InitProvider] so
// metrics can be scraped from /metrics. Tests should build their own
// [Metrics] with [NewMetrics] and a ManualReader backed provider.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/RyanBlaney/sonido-vocal"

// Take outcomes recorded on [Metrics.Takes].
const (
	OutcomeScored    = "scored"
	OutcomeCancelled = "cancelled"
	OutcomeFailed    = "failed"
)

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// FramesDropped counts audio frames discarded because a bounded queue
	// was full. Use with attribute.String("stage", ...).
	FramesDropped metric.Int64Counter

	// PitchFrames counts emitted pitch frames. Use with
	// attribute.Bool("voiced", ...).
	PitchFrames metric.Int64Counter

	// Takes counts finished takes by outcome.
	Takes metric.Int64Counter

	// AlignmentConfidence records the confidence of every alignment. Use
	// with attribute.String("strategy", ...).
	AlignmentConfidence metric.Float64Histogram

	// AlignmentOffset records the absolute microphone offset in seconds.
	AlignmentOffset metric.Float64Histogram

	// ProcessingDuration tracks alignment plus scoring latency.
	ProcessingDuration metric.Float64Histogram

	// Score records overall take scores in [0,100].
	Score metric.Float64Histogram

	// ActiveSessions tracks controllers that are not idle.
	ActiveSessions metric.Int64UpDownCounter

	// FeedClients tracks connected state feed websocket clients.
	FeedClients metric.Int64UpDownCounter
}

var (
	latencyBuckets    = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
	confidenceBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1}
	offsetBuckets     = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.4, 0.8, 1.5}
	scoreBuckets      = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}
)

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesDropped, err = m.Int64Counter("vocal.audio.frames_dropped",
		metric.WithDescription("Audio frames dropped on a full queue, by stage."),
	); err != nil {
		return nil, err
	}
	if met.PitchFrames, err = m.Int64Counter("vocal.pitch.frames",
		metric.WithDescription("Pitch frames emitted, by voicing."),
	); err != nil {
		return nil, err
	}
	if met.Takes, err = m.Int64Counter("vocal.session.takes",
		metric.WithDescription("Finished takes by outcome."),
	); err != nil {
		return nil, err
	}

	if met.AlignmentConfidence, err = m.Float64Histogram("vocal.alignment.confidence",
		metric.WithDescription("Alignment confidence by strategy."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.AlignmentOffset, err = m.Float64Histogram("vocal.alignment.offset",
		metric.WithDescription("Absolute microphone offset."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(offsetBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ProcessingDuration, err = m.Float64Histogram("vocal.processing.duration",
		metric.WithDescription("Latency of alignment and scoring for one take."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Score, err = m.Float64Histogram("vocal.scoring.overall",
		metric.WithDescription("Overall take score."),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("vocal.active_sessions",
		metric.WithDescription("Number of sessions outside the idle phase."),
	); err != nil {
		return nil, err
	}
	if met.FeedClients, err = m.Int64UpDownCounter("vocal.feed.clients",
		metric.WithDescription("Number of connected state feed clients."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// OrDefault returns m, or [DefaultMetrics] when m is nil.
func OrDefault(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return DefaultMetrics()
}

// RecordDrop records n dropped frames at the given stage.
func (m *Metrics) RecordDrop(ctx context.Context, stage string, n int64) {
	m.FramesDropped.Add(ctx, n, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordPitchFrame records one emitted pitch frame.
func (m *Metrics) RecordPitchFrame(ctx context.Context, voiced bool) {
	m.PitchFrames.Add(ctx, 1, metric.WithAttributes(attribute.Bool("voiced", voiced)))
}

// RecordTake records a finished take.
func (m *Metrics) RecordTake(ctx context.Context, outcome string) {
	m.Takes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAlignment records the confidence and absolute offset of one alignment.
func (m *Metrics) RecordAlignment(ctx context.Context, strategy string, confidence, offsetSec float64) {
	m.AlignmentConfidence.Record(ctx, confidence, metric.WithAttributes(attribute.String("strategy", strategy)))
	if offsetSec < 0 {
		offsetSec = -offsetSec
	}
	m.AlignmentOffset.Record(ctx, offsetSec)
}
