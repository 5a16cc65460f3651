// Package observe provides application-wide observability primitives for
// mixplay: OpenTelemetry metrics, distributed tracing, trace-aware logging,
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

// meterName is the instrumentation scope name used for all mixplay metrics.
const meterName = "github.com/MrWong99/mixplay"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms ---

	// SearchDuration tracks multi-tier search latency.
	SearchDuration metric.Float64Histogram

	// ComposeDuration tracks sentence composition latency.
	ComposeDuration metric.Float64Histogram

	// RenderDuration tracks audio assembly latency.
	RenderDuration metric.Float64Histogram

	// IndexBuildDuration tracks corpus index (re)build latency.
	IndexBuildDuration metric.Float64Histogram

	// --- Counters ---

	// SearchTier counts searches by the tier that answered. Use with attribute:
	//   attribute.String("tier", ...)
	SearchTier metric.Int64Counter

	// MissingWords counts requested words without any match.
	MissingWords metric.Int64Counter

	// StretchFallbacks counts segments whose tempo stretch failed and were
	// used unmodified.
	StretchFallbacks metric.Int64Counter

	// CacheLookups counts decode cache lookups. Use with attribute:
	//   attribute.String("result", "hit"|"miss")
	CacheLookups metric.Int64Counter

	// ToolCalls counts MCP tool invocations. Use with attributes:
	//   attribute.String("tool", ...), attribute.String("status", ...)
	ToolCalls metric.Int64Counter

	// --- Gauges ---

	// IndexedOccurrences tracks the number of occurrences in the live index.
	IndexedOccurrences metric.Int64Gauge

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds). Searches
// land in the low buckets, renders of long sentences in the high ones.
var latencyBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.SearchDuration, "mixplay.search.duration", "Latency of a multi-tier word search."},
		{&met.ComposeDuration, "mixplay.compose.duration", "Latency of sentence composition."},
		{&met.RenderDuration, "mixplay.render.duration", "Latency of audio assembly."},
		{&met.IndexBuildDuration, "mixplay.index.build.duration", "Latency of a full corpus index build."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}

	// Counters.
	if met.SearchTier, err = m.Int64Counter("mixplay.search.tier",
		metric.WithDescription("Total searches by answering tier."),
	); err != nil {
		return nil, err
	}
	if met.MissingWords, err = m.Int64Counter("mixplay.compose.missing_words",
		metric.WithDescription("Total requested words that had no match in the corpus."),
	); err != nil {
		return nil, err
	}
	if met.StretchFallbacks, err = m.Int64Counter("mixplay.render.stretch_fallbacks",
		metric.WithDescription("Total segments rendered without tempo stretch after a stretch failure."),
	); err != nil {
		return nil, err
	}
	if met.CacheLookups, err = m.Int64Counter("mixplay.cache.lookups",
		metric.WithDescription("Total decode cache lookups by result."),
	); err != nil {
		return nil, err
	}
	if met.ToolCalls, err = m.Int64Counter("mixplay.tool.calls",
		metric.WithDescription("Total MCP tool invocations by tool name and status."),
	); err != nil {
		return nil, err
	}

	// Gauges.
	if met.IndexedOccurrences, err = m.Int64Gauge("mixplay.index.occurrences",
		metric.WithDescription("Number of word occurrences in the live corpus index."),
	); err != nil {
		return nil, err
	}

	// HTTP middleware histogram.
	if met.HTTPRequestDuration, err = m.Float64Histogram("mixplay.http.request.duration",
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

// RecordSearch records the latency and answering tier of one search.
func (m *Metrics) RecordSearch(ctx context.Context, tier string, seconds float64) {
	m.SearchDuration.Record(ctx, seconds)
	m.SearchTier.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", tier)))
}

// RecordCacheLookup records a decode cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

// RecordToolCall is a convenience method that records a tool call counter
// increment with the standard attribute set.
func (m *Metrics) RecordToolCall(ctx context.Context, tool, status string) {
	m.ToolCalls.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("tool", tool),
			attribute.String("status", status),
		),
	)
}
