package observe

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

// ProviderConfig selects what InitProvider installs.
type ProviderConfig struct {
	// ServiceName tags every metric and span. Default: "saathi".
	ServiceName string

	// ServiceVersion is the build version, usually set from main.version.
	ServiceVersion string

	// TraceExporter receives finished spans in batches. Nil keeps spans
	// in-process only, which still gives log lines their trace IDs.
	TraceExporter sdktrace.SpanExporter

	// Registry is where the Prometheus exporter registers. Nil means
	// [prometheus.DefaultRegisterer], which [MetricsHandler] serves.
	Registry *prometheus.Registry
}

// InitProvider installs global meter and tracer providers for one process.
// Meters are read by a Prometheus exporter on cfg.Registry; spans go to
// cfg.TraceExporter when one is set. The returned function shuts both down
// and joins their errors.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "saathi"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	var exporterOpts []promexporter.Option
	if cfg.Registry != nil {
		exporterOpts = append(exporterOpts, promexporter.WithRegisterer(cfg.Registry))
	}
	reader, err := promexporter.New(exporterOpts...)
	if err != nil {
		return nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res), sdkmetric.WithReader(reader))

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	if cfg.TraceExporter != nil {
		traceOpts = append(traceOpts, sdktrace.WithBatcher(cfg.TraceExporter))
	}
	tp := sdktrace.NewTracerProvider(traceOpts...)

	otel.SetMeterProvider(mp)
	otel.SetTracerProvider(tp)

	return func(ctx context.Context) error {
		return errors.Join(mp.Shutdown(ctx), tp.Shutdown(ctx))
	}, nil
}

// MetricsHandler returns the /metrics handler. A nil reg serves the default
// Prometheus registry.
func MetricsHandler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
