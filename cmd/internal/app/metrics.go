package app

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so each App (and test) starts from zero.
type Metrics struct {
	reg *prometheus.Registry

	attempts *prometheus.CounterVec
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMetrics registers the accessgate collectors plus Go runtime and process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		attempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessgate_auth_attempts_total",
				Help: "Auth attempt outcomes by audit reason",
			},
			[]string{"reason", "success"},
		),
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accessgate_http_requests_total",
				Help: "HTTP requests by method and status class",
			},
			[]string{"method", "class"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accessgate_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "class"},
		),
	}
}

// ObserveAttempt counts one audit row (otp.AttemptRecorder).
func (m *Metrics) ObserveAttempt(reason string, success bool) {
	if m == nil {
		return
	}
	m.attempts.WithLabelValues(reason, strconv.FormatBool(success)).Inc()
}

func (m *Metrics) observeHTTP(method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	class := statusClass(status)
	m.requests.WithLabelValues(method, class).Inc()
	m.latency.WithLabelValues(method, class).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}
