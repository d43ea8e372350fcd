package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/warp/gamble-ledger/engine"
)

// Metrics holds the Prometheus collectors exported at /metrics.
type Metrics struct {
	RoundsSettled   prometheus.Counter
	RoundsReversed  prometheus.Counter
	RoundFailures   *prometheus.CounterVec
	ResidueRounds   prometheus.Counter
	Players         prometheus.Gauge
	HTTPRequests    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundsSettled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamble",
			Name:      "rounds_settled_total",
			Help:      "Rounds settled and recorded in the ledger.",
		}),
		RoundsReversed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamble",
			Name:      "rounds_reversed_total",
			Help:      "Rounds undone and removed from the ledger.",
		}),
		RoundFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamble",
			Name:      "round_failures_total",
			Help:      "Rejected settle or reverse calls by class.",
		}, []string{"op", "class"}),
		ResidueRounds: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gamble",
			Name:      "rounds_with_residue_total",
			Help:      "Settled rounds whose remainder did not divide evenly.",
		}),
		Players: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gamble",
			Name:      "players",
			Help:      "Players on the current roster.",
		}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gamble",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "gamble",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.RoundsSettled,
		m.RoundsReversed,
		m.RoundFailures,
		m.ResidueRounds,
		m.Players,
		m.HTTPRequests,
		m.RequestDuration,
	)
	return m
}

// observeFailure classifies err the same way the HTTP status is chosen.
func (m *Metrics) observeFailure(op string, err error) {
	m.RoundFailures.WithLabelValues(op, errorClass(err)).Inc()
}

// Middleware records request counts and latency per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.HTTPRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.RequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

func errorClass(err error) string {
	switch {
	case engine.IsConflict(err):
		return "conflict"
	case engine.IsClientError(err):
		return "client"
	default:
		return "internal"
	}
}
