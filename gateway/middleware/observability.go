package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tuturu-tech/nft-staking/observability"
)

// Observability traces, counts, and logs API requests.
type Observability struct {
	logger      *slog.Logger
	logRequests bool
}

// NewObservability returns request instrumentation. When logRequests is set
// every request is logged at Info.
func NewObservability(logger *slog.Logger, logRequests bool) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{logger: logger, logRequests: logRequests}
}

// Middleware instruments requests served under route.
func (o *Observability) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			elapsed := time.Since(start)

			span := trace.SpanFromContext(r.Context())
			span.SetAttributes(attribute.String("http.route", route), attribute.Int("http.status_code", recorder.status))
			observability.HTTP().Observe(route, recorder.status, elapsed)
			if o.logRequests {
				o.logger.Info("request served",
					"method", r.Method,
					"path", r.URL.Path,
					"status", recorder.status,
					"duration_ms", float64(elapsed.Microseconds())/1000)
			}
		})
		return otelhttp.NewHandler(inner, route)
	}
}

// MetricsHandler serves the process-wide Prometheus registry.
func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}
