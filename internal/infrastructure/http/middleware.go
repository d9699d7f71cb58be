package httptransport

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/greengrove/plantshop/internal/pkg/logging"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Metrics holds the pre-registered HTTP vectors; main registers them once
// and hands them in.
type Metrics struct {
	Requests  *prometheus.CounterVec   // http_requests_total{method,route,status}
	Durations *prometheus.HistogramVec // http_request_duration_seconds{method,route}
}

// Observability injects a request-scoped logger (request id prebound),
// echoes X-Request-ID, and records per-route metrics using the chi route
// pattern to keep label cardinality bounded.
func Observability(base *zap.Logger, m *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", rid)

			reqLogger := base.With(zap.String("request_id", rid))
			ctx := logging.ContextWithLogger(r.Context(), reqLogger)

			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r.WithContext(ctx))

			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			if m != nil {
				status := strconv.Itoa(rec.status)
				m.Requests.WithLabelValues(r.Method, route, status).Inc()
				m.Durations.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
			}

			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection's remote address.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
