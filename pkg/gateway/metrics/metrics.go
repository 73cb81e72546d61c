// Package metrics exposes gateway counters in the Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus collectors. A nil *Metrics records
// nothing.
type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	// HTTP
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Sessions
	SessionsCreatedTotal *prometheus.CounterVec
	FinalizationsTotal   *prometheus.CounterVec
	ParkedTotal          prometheus.Counter

	// Live connections
	LiveConnectionsTotal   *prometheus.CounterVec
	LiveConnectionDuration prometheus.Histogram
}

// New registers every collector on a private registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "interview"
	}

	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by route pattern",
		},
		[]string{"route", "status"},
	)

	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"route"},
	)

	sessionsCreated := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_created_total",
			Help:      "Interview session creation attempts",
		},
		[]string{"result"},
	)

	finalizations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "finalizations_total",
			Help:      "Finalize calls by persist outcome",
		},
		[]string{"outcome"},
	)

	parked := prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "screenings_parked_total",
			Help:      "Screening records parked for replay after a failed write",
		},
	)

	liveTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "live_connections_total",
			Help:      "Websocket connection attempts",
		},
		[]string{"result"},
	)

	liveDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "live_connection_duration_seconds",
			Help:      "Accepted websocket connection lifetime in seconds",
			Buckets:   []float64{1, 10, 30, 60, 120, 300, 600, 1200, 1800},
		},
	)

	registry.MustRegister(
		requestsTotal,
		requestDuration,
		sessionsCreated,
		finalizations,
		parked,
		liveTotal,
		liveDuration,
	)

	return &Metrics{
		namespace:              namespace,
		registry:               registry,
		RequestsTotal:          requestsTotal,
		RequestDuration:        requestDuration,
		SessionsCreatedTotal:   sessionsCreated,
		FinalizationsTotal:     finalizations,
		ParkedTotal:            parked,
		LiveConnectionsTotal:   liveTotal,
		LiveConnectionDuration: liveDuration,
	}
}

// WatchGauge registers a gauge sampled from fn at scrape time.
func (m *Metrics) WatchGauge(name, help string, fn func() int) {
	if m == nil || fn == nil {
		return
	}
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{Namespace: m.namespace, Name: name, Help: help},
		func() float64 { return float64(fn()) },
	))
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordRequest(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordSessionCreated counts one create attempt; result is "ok" or an error
// class such as "not_found" or "engine".
func (m *Metrics) RecordSessionCreated(result string) {
	if m == nil {
		return
	}
	m.SessionsCreatedTotal.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordFinalized(outcome string) {
	if m == nil {
		return
	}
	m.FinalizationsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordParked() {
	if m == nil {
		return
	}
	m.ParkedTotal.Inc()
}

// RecordLiveRejected counts a websocket refused before the bridge started.
func (m *Metrics) RecordLiveRejected() {
	if m == nil {
		return
	}
	m.LiveConnectionsTotal.WithLabelValues("rejected").Inc()
}

func (m *Metrics) RecordLiveConnection(d time.Duration) {
	if m == nil {
		return
	}
	m.LiveConnectionsTotal.WithLabelValues("accepted").Inc()
	m.LiveConnectionDuration.Observe(d.Seconds())
}
