// Package observe provides application-wide observability primitives for
// Quillor: OpenTelemetry metrics, tracing, and HTTP middleware that ties
// them together.
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

// meterName is the instrumentation scope name used for all Quillor metrics.
const meterName = "github.com/quillor/quillor"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ASRDuration tracks transcription latency. Use with attributes:
	//   attribute.String("mode", "partial"|"final"|"final_timestamps")
	ASRDuration metric.Float64Histogram

	// LLMDuration tracks polishing LLM round-trip latency.
	LLMDuration metric.Float64Histogram

	// Partials counts partial transcripts emitted by the VAD scheduler.
	Partials metric.Int64Counter

	// Finals counts final transcripts. Use with attributes:
	//   attribute.String("status", "ok"|"empty"|"timeout"),
	//   attribute.String("polish_method", ...)
	Finals metric.Int64Counter

	// PolishUpdates counts successful background LLM polish deliveries.
	PolishUpdates metric.Int64Counter

	// LLMErrors counts failed LLM requests.
	LLMErrors metric.Int64Counter

	// AudioFrames counts inbound binary audio frames. Use with attribute:
	//   attribute.String("format", "float32"|"int16"|"legacy")
	AudioFrames metric.Int64Counter

	// ActiveSessions tracks the number of live recording sessions.
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// local model inference latencies.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ASRDuration, err = m.Float64Histogram("quillor.asr.duration",
		metric.WithDescription("Latency of speech-to-text transcription."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.LLMDuration, err = m.Float64Histogram("quillor.llm.duration",
		metric.WithDescription("Latency of polishing LLM requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	if met.Partials, err = m.Int64Counter("quillor.partials",
		metric.WithDescription("Total partial transcripts emitted."),
	); err != nil {
		return nil, err
	}
	if met.Finals, err = m.Int64Counter("quillor.finals",
		metric.WithDescription("Total final transcripts by status and polish method."),
	); err != nil {
		return nil, err
	}
	if met.PolishUpdates, err = m.Int64Counter("quillor.polish.updates",
		metric.WithDescription("Total background polish updates delivered."),
	); err != nil {
		return nil, err
	}
	if met.LLMErrors, err = m.Int64Counter("quillor.llm.errors",
		metric.WithDescription("Total failed LLM requests."),
	); err != nil {
		return nil, err
	}
	if met.AudioFrames, err = m.Int64Counter("quillor.audio.frames",
		metric.WithDescription("Total inbound audio frames by wire format."),
	); err != nil {
		return nil, err
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("quillor.active_sessions",
		metric.WithDescription("Number of live recording sessions."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("quillor.http.request.duration",
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

// DefaultMetrics returns the package-level [Metrics] instance, creating it
// on first call using [otel.GetMeterProvider]. Subsequent calls return the
// same pointer. Panics if instrument creation fails (should not happen with
// the global provider).
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

// RecordPartial records one emitted partial transcript.
func (m *Metrics) RecordPartial(ctx context.Context) {
	m.Partials.Add(ctx, 1)
}

// RecordFinal records one final transcript with its outcome.
func (m *Metrics) RecordFinal(ctx context.Context, status, polishMethod string) {
	m.Finals.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("status", status),
			attribute.String("polish_method", polishMethod),
		),
	)
}

// RecordAudioFrame records one inbound audio frame by wire format.
func (m *Metrics) RecordAudioFrame(ctx context.Context, format string) {
	m.AudioFrames.Add(ctx, 1,
		metric.WithAttributes(attribute.String("format", format)),
	)
}

// RecordLLMError records one failed LLM request.
func (m *Metrics) RecordLLMError(ctx context.Context) {
	m.LLMErrors.Add(ctx, 1)
}
