package observability

import (
	"net/http"
	"strconv"

	"github.com/klyr/promptguard/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	requestsTotal      *prometheus.CounterVec
	blocksTotal        *prometheus.CounterVec
	errorsTotal        *prometheus.CounterVec
	inputBytes         *prometheus.HistogramVec
	evaluationDuration *prometheus.HistogramVec
	requestDuration    *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "promptguard_requests_total", Help: "Total evaluated requests"},
			[]string{"route", "profile", "action", "code"},
		),
		blocksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "promptguard_blocks_total", Help: "Blocking decisions by detector, including shadowed ones"},
			[]string{"profile", "detector", "category", "action"},
		),
		errorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "promptguard_evaluation_errors_total", Help: "Evaluations that failed instead of deciding"},
			[]string{"profile"},
		),
		inputBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptguard_input_bytes",
				Help:    "Size of the inspected corpus in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8),
			},
			[]string{"profile"},
		),
		evaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptguard_evaluation_duration_seconds",
				Help:    "Time spent running detectors",
				Buckets: []float64{.0001, .0005, .001, .0025, .005, .01, .025, .05, .1},
			},
			[]string{"profile"},
		),
		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "promptguard_request_duration_seconds",
				Help:    "Request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "profile"},
		),
	}

	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal,
		m.blocksTotal,
		m.errorsTotal,
		m.inputBytes,
		m.evaluationDuration,
		m.requestDuration,
	)

	return m
}

func (m *Metrics) Handler(reg *prometheus.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func (m *Metrics) Observe(decision logging.Decision) {
	if m == nil {
		return
	}

	route := decision.RouteID
	profile := decision.Profile

	m.requestsTotal.WithLabelValues(route, profile, decision.Action, strconv.Itoa(decision.StatusCode)).Inc()
	m.requestDuration.WithLabelValues(route, profile).Observe(float64(decision.DurationMS) / 1000)
	m.inputBytes.WithLabelValues(profile).Observe(float64(decision.InputBytes))

	if decision.Error != "" {
		m.errorsTotal.WithLabelValues(profile).Inc()
		return
	}
	m.evaluationDuration.WithLabelValues(profile).Observe(decision.EvalMS / 1000)

	if decision.Detector != "" {
		m.blocksTotal.WithLabelValues(profile, decision.Detector, decision.Category, decision.Action).Inc()
	}
}
