package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPCMetrics records JSON-RPC request activity.
type RPCMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	rpcOnce     sync.Once
	rpcRegistry *RPCMetrics
)

// RPC returns the lazily-initialised RPC metrics registered with the default
// Prometheus registerer.
func RPC() *RPCMetrics {
	rpcOnce.Do(func() {
		rpcRegistry = NewRPCMetrics(prometheus.DefaultRegisterer)
	})
	return rpcRegistry
}

// NewRPCMetrics builds the RPC collectors and registers them with reg.
func NewRPCMetrics(reg prometheus.Registerer) *RPCMetrics {
	m := &RPCMetrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Total JSON-RPC requests segmented by method and outcome.",
		}, []string{"method", "outcome"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "rpc",
			Name:      "errors_total",
			Help:      "Total JSON-RPC errors segmented by method and error code.",
		}, []string{"method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "yetifarm",
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for JSON-RPC handlers.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "yetifarm",
			Subsystem: "rpc",
			Name:      "throttles_total",
			Help:      "Count of requests rejected due to throttling policies.",
		}, []string{"reason"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.errors, m.latency, m.throttles)
	}
	return m
}

// Observe records the outcome of a request. code is the JSON-RPC error code,
// zero on success.
func (m *RPCMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit" so dashboards and alerts remain consistent.
func (m *RPCMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}
