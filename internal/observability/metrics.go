package observability

import (
	otelmetric "go.opentelemetry.io/otel/metric"
)

// Metrics holds the metric instruments used by the collector. Instruments
// are created once at startup and shared with middleware and handlers.
type Metrics struct {
	// HTTP metrics
	HTTPRequestDuration otelmetric.Float64Histogram
	HTTPRequestTotal    otelmetric.Int64Counter
	HTTPRequestErrors   otelmetric.Int64Counter

	// Ingest metrics
	PayloadsReceived  otelmetric.Int64Counter
	EventsReceived    otelmetric.Int64Counter
	PayloadSize       otelmetric.Int64Histogram
	DuplicatePayloads otelmetric.Int64Counter

	// Liveness metrics
	Heartbeats otelmetric.Int64Counter
	Acks       otelmetric.Int64Counter
}

// NewMetrics creates all metric instruments from the given Meter, with
// names and units following OpenTelemetry semantic conventions.
func NewMetrics(meter otelmetric.Meter) (*Metrics, error) {
	var m Metrics
	var err error

	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http.server.request.duration",
		otelmetric.WithUnit("s"),
		otelmetric.WithDescription("HTTP server request duration in seconds"),
		otelmetric.WithExplicitBucketBoundaries(0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestTotal, err = meter.Int64Counter(
		"http.server.request.total",
		otelmetric.WithDescription("Total HTTP requests served"),
	)
	if err != nil {
		return nil, err
	}

	m.HTTPRequestErrors, err = meter.Int64Counter(
		"http.server.request.errors",
		otelmetric.WithDescription("HTTP requests answered with 4xx or 5xx"),
	)
	if err != nil {
		return nil, err
	}

	m.PayloadsReceived, err = meter.Int64Counter(
		"ingest.payloads.received",
		otelmetric.WithDescription("Bulk payloads accepted"),
	)
	if err != nil {
		return nil, err
	}

	m.EventsReceived, err = meter.Int64Counter(
		"ingest.events.received",
		otelmetric.WithDescription("Events accepted across all payloads"),
	)
	if err != nil {
		return nil, err
	}

	m.PayloadSize, err = meter.Int64Histogram(
		"ingest.payload.size",
		otelmetric.WithDescription("Events per bulk payload"),
	)
	if err != nil {
		return nil, err
	}

	m.DuplicatePayloads, err = meter.Int64Counter(
		"ingest.payloads.duplicate",
		otelmetric.WithDescription("Retried payloads dropped by deduplication"),
	)
	if err != nil {
		return nil, err
	}

	m.Heartbeats, err = meter.Int64Counter(
		"liveness.heartbeats",
		otelmetric.WithDescription("Heartbeat requests received"),
	)
	if err != nil {
		return nil, err
	}

	m.Acks, err = meter.Int64Counter(
		"liveness.acks",
		otelmetric.WithDescription("Final acknowledgments received"),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}
