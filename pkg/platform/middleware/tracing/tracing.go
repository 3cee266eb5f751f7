// Package tracing wraps HTTP handlers with OpenTelemetry server spans.
package tracing

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// HTTP instruments next with the global tracer provider unless tp is given.
// Health and metrics endpoints are not traced.
func HTTP(serviceName string, tp trace.TracerProvider) func(http.Handler) http.Handler {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, serviceName,
			otelhttp.WithTracerProvider(tp),
			otelhttp.WithFilter(shouldTrace),
			otelhttp.WithSpanNameFormatter(spanName),
		)
	}
}

func shouldTrace(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/readyz", "/metrics":
		return false
	}
	return true
}

// spanName uses the method and path without the query string.
func spanName(_ string, r *http.Request) string {
	return r.Method + " " + r.URL.Path
}
