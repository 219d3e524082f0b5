// Package tracing provides opt-in OpenTelemetry tracing support for
// LabelKeeper. Tracing is enabled only when an OTLP endpoint is configured;
// otherwise [Init] returns a no-op shutdown function.
package tracing

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const defaultServiceName = "labelkeeper"

// TracerName identifies spans created by LabelKeeper itself, as opposed to
// the otelhttp and otelgrpc instrumentation.
const TracerName = "github.com/solatis/labelkeeper"

// Init configures the global OpenTelemetry tracer provider with an OTLP HTTP
// exporter pointed at endpoint (host:port or a full URL). An empty endpoint
// disables tracing.
//
// The returned function should be called on server shutdown to flush pending
// spans.
func Init(ctx context.Context, endpoint, serviceName string) (shutdown func(context.Context) error, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return func(context.Context) error { return nil }, nil
	}

	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}

	// Schemaless, so the merge never conflicts with the SDK's schema URL.
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("create resource: %w", err)
	}

	exporter, err := otlptracehttp.New(ctx, endpointOption(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create OTLP exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}

// endpointOption accepts either a bare host:port (plain HTTP) or a full URL.
func endpointOption(endpoint string) otlptracehttp.Option {
	if strings.HasPrefix(endpoint, "http://") || strings.HasPrefix(endpoint, "https://") {
		return otlptracehttp.WithEndpointURL(endpoint)
	}
	return otlptracehttp.WithEndpoint(endpoint)
}

// Tracer returns the LabelKeeper tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(TracerName)
}
