// Package tracing sets up OpenTelemetry tracing of test runs. Tracing is
// opt-in; a disabled provider records nothing.
package tracing

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// EndpointEnv is the standard OTLP endpoint variable. When set, tracing is
// enabled even without an explicit endpoint.
const EndpointEnv = "OTEL_EXPORTER_OTLP_ENDPOINT"

// Config holds the tracing configuration
type Config struct {
	ServiceName    string
	ServiceVersion string
	RunID          string
	OTLPEndpoint   string // e.g. "http://localhost:4318"; empty uses EndpointEnv
	Enabled        bool
}

// ConfigFromEnv enables tracing when endpoint is set or EndpointEnv is
// present in the environment.
func ConfigFromEnv(service, version, endpoint string, getenv func(string) string) Config {
	return Config{
		ServiceName:    service,
		ServiceVersion: version,
		OTLPEndpoint:   endpoint,
		Enabled:        endpoint != "" || getenv(EndpointEnv) != "",
	}
}

// Provider wraps the OpenTelemetry trace provider
type Provider struct {
	tp     *sdktrace.TracerProvider
	tracer trace.Tracer
}

// Init creates the provider. A disabled configuration yields a provider
// whose tracer is a no-op.
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if !cfg.Enabled {
		return &Provider{tracer: noop.NewTracerProvider().Tracer(cfg.ServiceName)}, nil
	}

	var opts []otlptracehttp.Option
	if cfg.OTLPEndpoint != "" {
		opts = append(opts, otlptracehttp.WithEndpointURL(cfg.OTLPEndpoint))
	}
	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.ServiceName),
			attribute.String("service.version", cfg.ServiceVersion),
			attribute.String("testrunner.run_id", cfg.RunID),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	p := newProvider(cfg.ServiceName,
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(p.tp)
	otel.SetTextMapPropagator(propagator())
	return p, nil
}

// NewWithExporter creates an always-sampling provider that exports spans
// synchronously to exp.
func NewWithExporter(service string, exp sdktrace.SpanExporter) *Provider {
	return newProvider(service, sdktrace.WithSyncer(exp))
}

func newProvider(service string, opts ...sdktrace.TracerProviderOption) *Provider {
	opts = append(opts, sdktrace.WithSampler(sdktrace.AlwaysSample()))
	tp := sdktrace.NewTracerProvider(opts...)
	return &Provider{tp: tp, tracer: tp.Tracer(service)}
}

// Tracer returns the tracer; a nil provider yields a no-op tracer.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil {
		return noop.NewTracerProvider().Tracer("")
	}
	return p.tracer
}

// Shutdown flushes and stops the provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func propagator() propagation.TextMapPropagator {
	return propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	)
}

// HTTPMiddleware traces every request served by next.
func HTTPMiddleware(p *Provider) func(http.Handler) http.Handler {
	tracer := p.Tracer()
	prop := propagator()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", r.Method),
					attribute.String("http.url", r.URL.String()),
					attribute.String("http.remote_addr", r.RemoteAddr),
				),
			)
			defer span.End()

			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
			prop.Inject(ctx, propagation.HeaderCarrier(rw.Header()))

			next.ServeHTTP(rw, r.WithContext(ctx))

			span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
			if rw.statusCode >= 400 {
				span.SetAttributes(attribute.Bool("error", true))
			}
		})
	}
}

// responseWriter captures the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
