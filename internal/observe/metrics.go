// Package observe provides application-wide observability primitives for
// Saathi: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Saathi metrics.
const meterName = "github.com/MrWong99/saathi"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per conversation stage ---

	// TurnDuration tracks the time from a finalized user utterance to the
	// end of the spoken reply.
	TurnDuration metric.Float64Histogram

	// GenerationDuration tracks response generator latency. Use with attribute:
	//   attribute.String("generator", ...)
	GenerationDuration metric.Float64Histogram

	// SpeechDuration tracks how long a reply was being spoken.
	SpeechDuration metric.Float64Histogram

	// --- Counters ---

	// GenerationRequests counts generator calls. Use with attributes:
	//   attribute.String("generator", ...), attribute.String("status", ...)
	GenerationRequests metric.Int64Counter

	// Turns counts appended conversation turns. Use with attribute:
	//   attribute.String("role", ...)
	Turns metric.Int64Counter

	// StaleReplies counts generation results discarded because the
	// activation that requested them was cancelled.
	StaleReplies metric.Int64Counter

	// DeviceContention counts device preemptions. Use with attribute:
	//   attribute.String("device", ...)
	DeviceContention metric.Int64Counter

	// DroppedRecords counts message-log records dropped because the
	// recorder queue was full.
	DroppedRecords metric.Int64Counter

	// --- Error counters ---

	// ControllerErrors counts errors surfaced by turn-taking controllers.
	// Use with attribute:
	//   attribute.String("kind", ...)
	ControllerErrors metric.Int64Counter

	// --- Gauges ---

	// ActiveConversations tracks the number of running controllers.
	ActiveConversations metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for
// remote generation and spoken replies, which run from sub-second to tens of
// seconds.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TurnDuration, err = m.Float64Histogram("saathi.turn.duration",
		metric.WithDescription("Latency from finalized user utterance to the end of the spoken reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.GenerationDuration, err = m.Float64Histogram("saathi.generation.duration",
		metric.WithDescription("Latency of response generation."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.SpeechDuration, err = m.Float64Histogram("saathi.speech.duration",
		metric.WithDescription("Time spent speaking a reply."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.GenerationRequests, err = m.Int64Counter("saathi.generation.requests",
		metric.WithDescription("Total generation requests by generator and status."),
	); err != nil {
		return nil, err
	}
	if met.Turns, err = m.Int64Counter("saathi.turns",
		metric.WithDescription("Total conversation turns appended, by role."),
	); err != nil {
		return nil, err
	}
	if met.StaleReplies, err = m.Int64Counter("saathi.generation.stale_replies",
		metric.WithDescription("Generation results discarded after cancellation."),
	); err != nil {
		return nil, err
	}
	if met.DeviceContention, err = m.Int64Counter("saathi.device.contention",
		metric.WithDescription("Device acquisitions that preempted another owner."),
	); err != nil {
		return nil, err
	}
	if met.DroppedRecords, err = m.Int64Counter("saathi.memory.dropped_records",
		metric.WithDescription("Message-log records dropped on a full recorder queue."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.ControllerErrors, err = m.Int64Counter("saathi.controller.errors",
		metric.WithDescription("Errors surfaced by turn-taking controllers, by kind."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveConversations, err = m.Int64UpDownCounter("saathi.active_conversations",
		metric.WithDescription("Number of running turn-taking controllers."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("saathi.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
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

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordGeneration records one generator call: its latency and a request
// counter increment with status "ok" or "error".
func (m *Metrics) RecordGeneration(ctx context.Context, generator string, seconds float64, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.GenerationDuration.Record(ctx, seconds,
		metric.WithAttributes(attribute.String("generator", generator)),
	)
	m.GenerationRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("generator", generator),
			attribute.String("status", status),
		),
	)
}

// RecordTurn records an appended conversation turn.
func (m *Metrics) RecordTurn(ctx context.Context, role string) {
	m.Turns.Add(ctx, 1, metric.WithAttributes(attribute.String("role", role)))
}

// RecordControllerError records an error surfaced by a controller.
func (m *Metrics) RecordControllerError(ctx context.Context, kind string) {
	m.ControllerErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

// RecordStaleReply records a discarded generation result.
func (m *Metrics) RecordStaleReply(ctx context.Context) {
	m.StaleReplies.Add(ctx, 1)
}

// RecordDeviceContention records that an acquisition of device preempted
// another owner.
func (m *Metrics) RecordDeviceContention(ctx context.Context, device string) {
	m.DeviceContention.Add(ctx, 1, metric.WithAttributes(attribute.String("device", device)))
}
