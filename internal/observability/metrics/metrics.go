package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// WizardMetrics exposes counters/histograms for the intake wizard. It
// satisfies intake.Observer.
type WizardMetrics struct {
	stepTransitions *prometheus.CounterVec
	submitTotal     *prometheus.CounterVec
	submitLatency   prometheus.Histogram
	captureTotal    *prometheus.CounterVec
	confirmTotal    *prometheus.CounterVec
}

func NewWizardMetrics(reg prometheus.Registerer) *WizardMetrics {
	m := &WizardMetrics{
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealprep",
			Subsystem: "wizard",
			Name:      "step_transitions_total",
			Help:      "Total step changes by origin and destination step",
		}, []string{"from", "to"}),
		submitTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealprep",
			Subsystem: "wizard",
			Name:      "submissions_total",
			Help:      "Total intake submissions by outcome",
		}, []string{"outcome"}),
		submitLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mealprep",
			Subsystem: "wizard",
			Name:      "submission_latency_seconds",
			Help:      "Latency of the submission gateway round trip",
			Buckets:   prometheus.DefBuckets,
		}),
		captureTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealprep",
			Subsystem: "wizard",
			Name:      "capture_attempts_total",
			Help:      "Total payment capture attempts by outcome",
		}, []string{"outcome"}),
		confirmTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealprep",
			Subsystem: "wizard",
			Name:      "confirmations_total",
			Help:      "Total capture confirmations by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepTransitions, m.submitTotal, m.submitLatency, m.captureTotal, m.confirmTotal)
	return m
}

func (m *WizardMetrics) ObserveStep(from, to int) {
	if m == nil {
		return
	}
	m.stepTransitions.WithLabelValues(strconv.Itoa(from), strconv.Itoa(to)).Inc()
}

func (m *WizardMetrics) ObserveSubmit(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.submitTotal.WithLabelValues(outcome).Inc()
	m.submitLatency.Observe(seconds)
}

func (m *WizardMetrics) ObserveCapture(outcome string) {
	if m == nil {
		return
	}
	m.captureTotal.WithLabelValues(outcome).Inc()
}

func (m *WizardMetrics) ObserveConfirmation(outcome string) {
	if m == nil {
		return
	}
	m.confirmTotal.WithLabelValues(outcome).Inc()
}

// HTTPMetrics counts API requests by route pattern.
type HTTPMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
}

func NewHTTPMetrics(reg prometheus.Registerer) *HTTPMetrics {
	m := &HTTPMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealprep",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealprep",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of HTTP requests",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.requestsTotal, m.requestDuration)
	return m
}

func (m *HTTPMetrics) ObserveRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(method, route).Observe(seconds)
}
