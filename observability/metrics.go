package observability

import (
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	loanVolume *prometheus.CounterVec
}

var (
	engineMetricsOnce sync.Once
	engineRegistry    *engineMetrics
)

// EngineMetrics returns the lazily-initialised metrics registry used to
// record vault engine activity through the RPC surface.
func EngineMetrics() *engineMetrics {
	engineMetricsOnce.Do(func() {
		engineRegistry = &engineMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flashvault",
				Subsystem: "engine",
				Name:      "requests_total",
				Help:      "Total engine operations segmented by operation and outcome.",
			}, []string{"op", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "flashvault",
				Subsystem: "engine",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for engine operations.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"op"}),
			loanVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "flashvault",
				Subsystem: "engine",
				Name:      "loan_volume_wei",
				Help:      "Cumulative flash loan principal segmented by asset.",
			}, []string{"asset"}),
		}
		prometheus.MustRegister(
			engineRegistry.requests,
			engineRegistry.latency,
			engineRegistry.loanVolume,
		)
	})
	return engineRegistry
}

// Observe records the outcome and duration of one engine operation.
func (m *engineMetrics) Observe(op string, err error, started time.Time) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.requests.WithLabelValues(op, outcome).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

// AddLoanVolume accumulates borrowed principal for an asset. Values beyond
// float64 range are clamped rather than dropped.
func (m *engineMetrics) AddLoanVolume(asset string, amount *big.Int) {
	if m == nil || amount == nil || amount.Sign() <= 0 {
		return
	}
	value, _ := new(big.Float).SetInt(amount).Float64()
	if math.IsInf(value, 0) {
		value = math.MaxFloat64
	}
	m.loanVolume.WithLabelValues(asset).Add(value)
}
