package authcontext

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/acme-app/authcontext"

func defaultTracer() oteltrace.Tracer {
	return otel.Tracer(tracerName)
}

// startSpan opens the per-request server span.
func (m *Middleware) startSpan(r *http.Request) (context.Context, oteltrace.Span) {
	return m.tracer.Start(r.Context(), "authcontext.Middleware",
		oteltrace.WithSpanKind(oteltrace.SpanKindServer),
		oteltrace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.path", r.URL.Path),
		),
	)
}

func recordError(span oteltrace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
