// Package tracing provides OpenTelemetry trace-context propagation for the
// gate. The gate does not configure an exporter itself; it participates in
// whatever trace pipeline the hosting process sets up.
package tracing

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"kb-gate/internal/handler/http/responsewriter"
)

// tracer is the gate's tracer instance.
var tracer = otel.Tracer("kb-gate")

// Middleware creates OpenTelemetry tracing middleware for HTTP handlers.
//
// It extracts trace context from incoming request headers (W3C Trace Context
// format), starts a server span for the request, exposes the trace ID to
// clients via X-Trace-Id, and records method, path and status code as span
// attributes.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(
			r.Context(),
			propagation.HeaderCarrier(r.Header),
		)

		ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		traceID := span.SpanContext().TraceID().String()
		w.Header().Set("X-Trace-Id", traceID)

		rw := responsewriter.Wrap(w)

		r = r.WithContext(ctx)
		next.ServeHTTP(rw, r)

		span.SetAttributes(
			attribute.Int("http.status_code", rw.StatusCode()),
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)

		if rw.StatusCode() >= 500 {
			span.SetAttributes(attribute.Bool("error", true))
		}
	})
}
