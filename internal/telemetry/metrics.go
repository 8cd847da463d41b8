package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/polyglot"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Resolution metrics
	ResolutionsTotal    metric.Int64Counter
	ResolutionDuration  metric.Float64Histogram
	ResolutionCacheHits metric.Int64Counter

	// Registry metrics
	GrantsTotal      metric.Int64Counter
	RevocationsTotal metric.Int64Counter

	// Ownership metrics
	OwnershipViolationsTotal metric.Int64Counter
	OwnershipTransfersTotal  metric.Int64Counter

	// API key metrics
	APIKeysCreatedTotal metric.Int64Counter
	APIKeysRevokedTotal metric.Int64Counter

	// Consistency metrics
	CascadeDeletesTotal metric.Int64Counter

	// Store metrics (postgres only)
	TxRetriesTotal metric.Int64Counter
}

var (
	once    sync.Once
	metrics *Metrics
)

// GetMetrics returns the singleton Metrics instance, initializing it if necessary
func GetMetrics() *Metrics {
	once.Do(func() {
		metrics = initMetrics()
	})
	return metrics
}

// Tracer returns the tracer used for access mutations.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	m.ResolutionsTotal, _ = meter.Int64Counter(
		"polyglot.resolutions.total",
		metric.WithDescription("Total number of permission resolutions by level and source"),
		metric.WithUnit("{resolution}"),
	)

	m.ResolutionDuration, _ = meter.Float64Histogram(
		"polyglot.resolutions.duration",
		metric.WithDescription("Duration of permission resolutions"),
		metric.WithUnit("ms"),
	)

	m.ResolutionCacheHits, _ = meter.Int64Counter(
		"polyglot.resolutions.cache_hits.total",
		metric.WithDescription("Total number of resolutions served from the cache"),
		metric.WithUnit("{resolution}"),
	)

	m.GrantsTotal, _ = meter.Int64Counter(
		"polyglot.permissions.granted.total",
		metric.WithDescription("Total number of permissions granted or changed"),
		metric.WithUnit("{permission}"),
	)

	m.RevocationsTotal, _ = meter.Int64Counter(
		"polyglot.permissions.revoked.total",
		metric.WithDescription("Total number of permissions revoked"),
		metric.WithUnit("{permission}"),
	)

	m.OwnershipViolationsTotal, _ = meter.Int64Counter(
		"polyglot.ownership.violations.total",
		metric.WithDescription("Total number of project mutations rejected for invalid ownership"),
		metric.WithUnit("{violation}"),
	)

	m.OwnershipTransfersTotal, _ = meter.Int64Counter(
		"polyglot.ownership.transfers.total",
		metric.WithDescription("Total number of project ownership transfers"),
		metric.WithUnit("{transfer}"),
	)

	m.APIKeysCreatedTotal, _ = meter.Int64Counter(
		"polyglot.api_keys.created.total",
		metric.WithDescription("Total number of API keys created"),
		metric.WithUnit("{key}"),
	)

	m.APIKeysRevokedTotal, _ = meter.Int64Counter(
		"polyglot.api_keys.revoked.total",
		metric.WithDescription("Total number of API keys revoked, explicitly or by cascade"),
		metric.WithUnit("{key}"),
	)

	m.CascadeDeletesTotal, _ = meter.Int64Counter(
		"polyglot.cascade.deleted.total",
		metric.WithDescription("Total number of dependent records removed by cascading deletes"),
		metric.WithUnit("{record}"),
	)

	m.TxRetriesTotal, _ = meter.Int64Counter(
		"polyglot.store.tx_retries.total",
		metric.WithDescription("Total number of transactions retried after a serialization failure"),
		metric.WithUnit("{retry}"),
	)

	return m
}
