// Package metrics exports Prometheus collectors for the cache store and the
// requests the client sends to the Amari API.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/Keksclan/amari-go/cache"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "amari"

// Metrics holds the client's collectors. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	hits        prometheus.Counter
	misses      prometheus.Counter
	expirations prometheus.Counter
	evictions   prometheus.Counter
	bytes       prometheus.Gauge

	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	breaker  prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		hits: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "hits_total",
			Help: "Cache lookups that returned a live entry.",
		}),
		misses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "misses_total",
			Help: "Cache lookups that found nothing or an expired entry.",
		}),
		expirations: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "expirations_total",
			Help: "Entries removed because their age reached the TTL.",
		}),
		evictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cache", Name: "evictions_total",
			Help: "Entries removed to stay within the byte budget.",
		}),
		bytes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cache", Name: "bytes",
			Help: "Running total of measured entry sizes.",
		}),
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "remote", Name: "requests_total",
			Help: "Requests sent to the Amari API by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "remote", Name: "retries_total",
			Help: "Retried requests by endpoint.",
		}, []string{"endpoint"}),
		breaker: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "remote", Name: "breaker_state",
			Help: "Circuit breaker state: 0 closed, 1 open, 2 half-open.",
		}),
	}
}

func (m *Metrics) Hit() {
	if m != nil {
		m.hits.Inc()
	}
}

func (m *Metrics) Miss() {
	if m != nil {
		m.misses.Inc()
	}
}

func (m *Metrics) Expire() {
	if m != nil {
		m.expirations.Inc()
	}
}

func (m *Metrics) Evict() {
	if m != nil {
		m.evictions.Inc()
	}
}

func (m *Metrics) AddBytes(delta int64) {
	if m != nil {
		m.bytes.Add(float64(delta))
	}
}

// ObserveRequest counts one response from endpoint. Use status 0 for
// requests that failed before a response arrived.
func (m *Metrics) ObserveRequest(endpoint string, status int) {
	if m != nil {
		m.requests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
	}
}

// ObserveRetry counts one retry of endpoint.
func (m *Metrics) ObserveRetry(endpoint string) {
	if m != nil {
		m.retries.WithLabelValues(endpoint).Inc()
	}
}

// SetBreakerState records the numeric breaker state.
func (m *Metrics) SetBreakerState(state int) {
	if m != nil {
		m.breaker.Set(float64(state))
	}
}

// Handler returns an http.Handler serving the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ cache.Observer = (*Metrics)(nil)
