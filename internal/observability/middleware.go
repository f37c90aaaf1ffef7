package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
)

// responseCapture wraps http.ResponseWriter to record the status code and
// response size. Only the first WriteHeader counts; an implicit 200 from a
// bare Write is captured too.
type responseCapture struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseCapture) WriteHeader(code int) {
	if w.status == 0 {
		w.status = code
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseCapture) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// HTTPMetrics instruments a handler with request duration, count, and error
// metrics. The route attribute is the mux pattern matched for the request,
// not the raw URL path, so arbitrary unmatched paths cannot inflate label
// cardinality. Requests rejected before routing (auth, throttling) and mux
// misses are grouped under "unrouted".
func HTTPMetrics(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			capture := &responseCapture{ResponseWriter: w}

			next.ServeHTTP(capture, r)

			status := capture.status
			if status == 0 {
				status = http.StatusOK
			}
			// ServeMux fills r.Pattern during routing, so it is readable
			// here once the inner handler returns.
			route := r.Pattern
			if route == "" {
				route = "unrouted"
			}

			attrs := otelmetric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			)

			ctx := r.Context()
			metrics.HTTPRequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
			metrics.HTTPRequestTotal.Add(ctx, 1, attrs)
			if status >= 400 {
				metrics.HTTPRequestErrors.Add(ctx, 1, attrs)
			}
		})
	}
}
