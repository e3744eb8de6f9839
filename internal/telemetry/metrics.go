package telemetry

import (
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	instrumentationName = "github.com/wolfeidau/sitebundle"
)

// Metrics holds all the OpenTelemetry metric instruments
type Metrics struct {
	// Build metrics
	BuildsTotal      metric.Int64Counter
	BuildErrorsTotal metric.Int64Counter
	BuildDuration    metric.Float64Histogram

	// Include and page metrics
	IncludesExpandedTotal metric.Int64Counter
	PagesRenderedTotal    metric.Int64Counter

	// Watch metrics
	RebuildsTriggeredTotal metric.Int64Counter
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

// Tracer returns the tracer used for build spans
func Tracer() trace.Tracer {
	return otel.GetTracerProvider().Tracer(instrumentationName)
}

// initMetrics creates and registers all metric instruments
func initMetrics() *Metrics {
	meter := otel.GetMeterProvider().Meter(instrumentationName)

	m := &Metrics{}

	// Build metrics
	m.BuildsTotal, _ = meter.Int64Counter(
		"sitebundle.builds.total",
		metric.WithDescription("Total number of builds started"),
		metric.WithUnit("{build}"),
	)

	m.BuildErrorsTotal, _ = meter.Int64Counter(
		"sitebundle.builds.errors.total",
		metric.WithDescription("Total number of failed builds"),
		metric.WithUnit("{error}"),
	)

	m.BuildDuration, _ = meter.Float64Histogram(
		"sitebundle.builds.duration",
		metric.WithDescription("Duration of builds"),
		metric.WithUnit("ms"),
	)

	// Include and page metrics
	m.IncludesExpandedTotal, _ = meter.Int64Counter(
		"sitebundle.includes.expanded.total",
		metric.WithDescription("Total number of include files expanded into documents"),
		metric.WithUnit("{file}"),
	)

	m.PagesRenderedTotal, _ = meter.Int64Counter(
		"sitebundle.pages.rendered.total",
		metric.WithDescription("Total number of HTML pages rendered"),
		metric.WithUnit("{page}"),
	)

	// Watch metrics
	m.RebuildsTriggeredTotal, _ = meter.Int64Counter(
		"sitebundle.rebuilds.triggered.total",
		metric.WithDescription("Total number of rebuilds triggered by file changes"),
		metric.WithUnit("{build}"),
	)

	return m
}
