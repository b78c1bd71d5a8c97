package observability

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	nativecommon "yieldrouter/native/common"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	aggregatorMetricsOnce sync.Once
	aggregatorRegistry    *AggregatorMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record
// gateway route activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldrouter",
				Subsystem: "gateway",
				Name:      "requests_total",
				Help:      "Total gateway requests segmented by module and route.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldrouter",
				Subsystem: "gateway",
				Name:      "errors_total",
				Help:      "Total gateway errors segmented by module, route, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "yieldrouter",
				Subsystem: "gateway",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for gateway handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldrouter",
				Subsystem: "gateway",
				Name:      "throttles_total",
				Help:      "Count of requests rejected due to throttling policies.",
			}, []string{"module", "reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a gateway request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter for the supplied module and
// reason. Reasons should be stable strings such as "rate_limit" so dashboards
// and alerts remain consistent.
func (m *moduleMetrics) RecordThrottle(module, reason string) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(module, reason).Inc()
}

// AggregatorMetrics counts engine calls and the value routed through them.
type AggregatorMetrics struct {
	calls  *prometheus.CounterVec
	volume *prometheus.CounterVec
}

// Aggregator returns the singleton metrics registry for the aggregator
// engine.
func Aggregator() *AggregatorMetrics {
	aggregatorMetricsOnce.Do(func() {
		aggregatorRegistry = &AggregatorMetrics{
			calls: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldrouter",
				Subsystem: "aggregator",
				Name:      "calls_total",
				Help:      "Count of aggregator calls segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			volume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "yieldrouter",
				Subsystem: "aggregator",
				Name:      "volume_total",
				Help:      "Token units moved by committed aggregator calls.",
			}, []string{"op"}),
		}
		prometheus.MustRegister(aggregatorRegistry.calls, aggregatorRegistry.volume)
	})
	return aggregatorRegistry
}

// Outcome maps a call error onto a stable label value.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	default:
		return "error"
	}
}

// ObserveCall records the outcome of a single engine call.
func (m *AggregatorMetrics) ObserveCall(op string, err error) {
	if m == nil {
		return
	}
	op = strings.TrimSpace(op)
	if op == "" {
		op = "unknown"
	}
	m.calls.WithLabelValues(op, Outcome(err)).Inc()
}

// AddVolume adds amount to the routed volume of op. Values beyond float64
// precision are approximated.
func (m *AggregatorMetrics) AddVolume(op string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	m.volume.WithLabelValues(op).Add(value)
}
