// Package tracing provides OpenTelemetry helpers for the Amari client. It is
// entirely optional: without a Config every span is a no-op.
package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	grpcStatus "google.golang.org/grpc/status"
)

const instrumentationName = "github.com/Keksclan/amari-go"

// Config holds the OpenTelemetry configuration used by the client.
type Config struct {
	// TracerProvider supplies the Tracer used to create spans. When nil the
	// global otel.GetTracerProvider() is used.
	TracerProvider trace.TracerProvider

	// Propagators injects trace context into outgoing request headers.
	// When nil the global otel.GetTextMapPropagator() is used.
	Propagators propagation.TextMapPropagator
}

// Tracer returns the configured tracer, or a no-op tracer for a nil Config.
func (c *Config) Tracer() trace.Tracer {
	if c == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	tp := c.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(instrumentationName)
}

// Inject writes the trace context of ctx into h. It does nothing for a nil
// Config.
func (c *Config) Inject(ctx context.Context, h http.Header) {
	if c == nil {
		return
	}
	p := c.Propagators
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	p.Inject(ctx, propagation.HeaderCarrier(h))
}

// StartClient starts a client span for one request to the remote API.
func StartClient(ctx context.Context, tracer trace.Tracer, endpoint, method, path string) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "amari "+endpoint, trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("amari.endpoint", endpoint),
		attribute.String("http.request.method", method),
		attribute.String("url.path", path),
	)
	return ctx, span
}

// End records the outcome of err on span and ends it. Errors that carry a
// canonical status code are tagged with it.
func End(span trace.Span, err error) {
	st, _ := grpcStatus.FromError(err)
	span.SetAttributes(attribute.String("amari.status_code", st.Code().String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
