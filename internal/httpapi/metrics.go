package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"breedserve/internal/apperr"
	"breedserve/internal/lifecycle"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breedserve",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"path", "method", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "breedserve",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"path", "method", "status"},
	)

	httpInflight = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "breedserve",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "In-flight HTTP requests",
		},
		[]string{"method"},
	)

	backpressureTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breedserve",
			Subsystem: "http",
			Name:      "backpressure_total",
			Help:      "Total backpressure rejections (429)",
		},
		[]string{"reason"},
	)

	modelState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "breedserve",
			Subsystem: "model",
			Name:      "state",
			Help:      "1 for the current lifecycle state, 0 otherwise",
		},
		[]string{"state"},
	)

	modelAttemptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "breedserve",
			Subsystem: "model",
			Name:      "acquire_failures_total",
			Help:      "Failed artifact acquisition attempts",
		},
	)

	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "breedserve",
			Subsystem: "model",
			Name:      "loads_total",
			Help:      "Completed lifecycle sequences by outcome",
		},
		[]string{"outcome"},
	)

	inferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "breedserve",
			Subsystem: "inference",
			Name:      "duration_seconds",
			Help:      "Inference call duration by operation and outcome",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"op", "outcome"},
	)
)

var allStates = []lifecycle.State{
	lifecycle.StateUninitialized, lifecycle.StateAcquiring, lifecycle.StateValidating,
	lifecycle.StateLoading, lifecycle.StateReady, lifecycle.StateFailed,
}

func init() {
	prometheus.MustRegister(httpRequestsTotal, httpRequestDuration, httpInflight, backpressureTotal,
		modelState, modelAttemptFailures, modelLoadsTotal, inferenceDuration)
	setModelState(lifecycle.StateUninitialized)
}

func setModelState(s lifecycle.State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		modelState.WithLabelValues(string(st)).Set(v)
	}
}

// MetricsPublisher exports lifecycle events as Prometheus metrics.
type MetricsPublisher struct{}

func (MetricsPublisher) Publish(e lifecycle.Event) {
	switch e.Name {
	case lifecycle.EventTransition:
		setModelState(e.To)
	case lifecycle.EventAttemptFailed:
		modelAttemptFailures.Inc()
	case lifecycle.EventReady:
		modelLoadsTotal.WithLabelValues("ready").Inc()
	case lifecycle.EventFailed:
		modelLoadsTotal.WithLabelValues("failed").Inc()
	}
}

// InferenceObserver records inference durations by outcome.
type InferenceObserver struct{}

func (InferenceObserver) ObserveInference(op string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
		if outcome == "" {
			outcome = "error"
		}
	}
	inferenceDuration.WithLabelValues(op, outcome).Observe(d.Seconds())
}

// statusRecorder wraps http.ResponseWriter to capture status code
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware instruments requests for Prometheus
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: 200}
		start := time.Now()
		inflight := httpInflight.WithLabelValues(r.Method)
		inflight.Inc()
		next.ServeHTTP(sr, r)
		inflight.Dec()
		// the route pattern is only known after routing
		path := routePatternOrPath(r)
		statusLabel := strconv.Itoa(sr.status)
		httpRequestsTotal.WithLabelValues(path, r.Method, statusLabel).Inc()
		httpRequestDuration.WithLabelValues(path, r.Method, statusLabel).Observe(time.Since(start).Seconds())
	})
}

// routePatternOrPath returns the chi route pattern if available, otherwise
// falls back to URL path. This avoids high-cardinality label values.
func routePatternOrPath(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// IncrementBackpressure is called when returning 429 to the client
func IncrementBackpressure(reason string) {
	if reason == "" {
		reason = "unspecified"
	}
	backpressureTotal.WithLabelValues(reason).Inc()
}
