package observability

import (
	"math"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics

	httpMetricsOnce sync.Once
	httpRegistry    *httpMetrics
)

// LedgerMetrics wraps collectors tracking staking ledger activity.
type LedgerMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	totalStaked prometheus.Gauge
	paused      prometheus.Gauge
	rewardsPaid prometheus.Counter
	outstanding prometheus.Gauge
}

// Ledger exposes the metrics registry for the staking ledger.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "operations_total",
				Help:      "Ledger operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "operation_duration_seconds",
				Help:      "Latency distribution for ledger operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"operation"}),
			totalStaked: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "total_staked",
				Help:      "Number of units currently staked.",
			}),
			paused: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "paused",
				Help:      "Indicates whether new stakes are rejected (1) or admitted (0).",
			}),
			rewardsPaid: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "rewards_paid_total",
				Help:      "Reward-token units paid out to stakers.",
			}),
			outstanding: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "nftstake",
				Subsystem: "ledger",
				Name:      "outstanding_rewards",
				Help:      "Reward-token units allocated to stakers but not yet claimed.",
			}),
		}
		prometheus.MustRegister(
			ledgerRegistry.operations,
			ledgerRegistry.latency,
			ledgerRegistry.totalStaked,
			ledgerRegistry.paused,
			ledgerRegistry.rewardsPaid,
			ledgerRegistry.outstanding,
		)
	})
	return ledgerRegistry
}

// Observe records the outcome and latency of one ledger operation.
func (m *LedgerMetrics) Observe(operation, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	op := labelOrUnknown(operation)
	m.operations.WithLabelValues(op, labelOrUnknown(outcome)).Inc()
	m.latency.WithLabelValues(op).Observe(d.Seconds())
}

// RecordState updates the ledger gauges.
func (m *LedgerMetrics) RecordState(totalStaked uint64, paused bool, outstanding *big.Int) {
	if m == nil {
		return
	}
	m.totalStaked.Set(float64(totalStaked))
	if paused {
		m.paused.Set(1)
	} else {
		m.paused.Set(0)
	}
	m.outstanding.Set(bigToFloat(outstanding))
}

// RecordPayout adds a successful reward payout.
func (m *LedgerMetrics) RecordPayout(amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	m.rewardsPaid.Add(bigToFloat(amount))
}

type httpMetrics struct {
	requests  *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// HTTP returns the lazily-initialised registry for API requests.
func HTTP() *httpMetrics {
	httpMetricsOnce.Do(func() {
		httpRegistry = &httpMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "API requests segmented by route and status code.",
			}, []string{"route", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "nftstake",
				Subsystem: "http",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for API handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"route"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "nftstake",
				Subsystem: "http",
				Name:      "throttles_total",
				Help:      "Requests rejected by the rate limiter.",
			}, []string{"route"}),
		}
		prometheus.MustRegister(httpRegistry.requests, httpRegistry.latency, httpRegistry.throttles)
	})
	return httpRegistry
}

// Observe records a completed request.
func (m *httpMetrics) Observe(route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	label := labelOrUnknown(route)
	m.requests.WithLabelValues(label, strconv.Itoa(status)).Inc()
	m.latency.WithLabelValues(label).Observe(d.Seconds())
}

// RecordThrottle counts a rate-limited request.
func (m *httpMetrics) RecordThrottle(route string) {
	if m == nil {
		return
	}
	m.throttles.WithLabelValues(labelOrUnknown(route)).Inc()
}

func labelOrUnknown(value string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return 0
	}
	return f
}
