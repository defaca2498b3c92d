package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns the marketplace collectors on a private registry.
type Recorder struct {
	registry        *prometheus.Registry
	operations      *prometheus.CounterVec
	operationTime   *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	outboxRelayed   prometheus.Counter
	auditViolations prometheus.Counter
}

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tiof",
				Subsystem: "marketplace",
				Name:      "operations_total",
				Help:      "Entry operations by outcome code.",
			},
			[]string{"operation", "code"},
		),
		operationTime: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tiof",
				Subsystem: "marketplace",
				Name:      "operation_duration_seconds",
				Help:      "Duration of entry operations including settlement.",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
			},
			[]string{"operation"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tiof",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "HTTP requests by route and status.",
			},
			[]string{"route", "status"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tiof",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
			},
			[]string{"route"},
		),
		outboxRelayed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiof",
			Subsystem: "outbox",
			Name:      "relayed_total",
			Help:      "Outbox envelopes published to the event bus.",
		}),
		auditViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tiof",
			Subsystem: "audit",
			Name:      "violations_total",
			Help:      "Ledger audits that found a broken invariant.",
		}),
	}
	r.registry.MustRegister(
		r.operations,
		r.operationTime,
		r.httpRequests,
		r.httpDuration,
		r.outboxRelayed,
		r.auditViolations,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
	return r
}

func (r *Recorder) ObserveOperation(operation string, code string, elapsed time.Duration) {
	r.operations.WithLabelValues(operation, code).Inc()
	r.operationTime.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (r *Recorder) ObserveRelay(sent int) {
	r.outboxRelayed.Add(float64(sent))
}

func (r *Recorder) ObserveAuditViolation() {
	r.auditViolations.Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler exposes the registry for scraping.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// InstrumentRoute records status and latency under a fixed route label so
// path parameters never become label values.
func (r *Recorder) InstrumentRoute(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, req)
		r.httpRequests.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		r.httpDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer cannot be hijacked")
	}
	return hijacker.Hijack()
}
