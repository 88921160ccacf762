package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "amm_client"

// Metrics holds the Prometheus collectors for the client. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	RPCRequests   *prometheus.CounterVec
	RPCLatency    *prometheus.HistogramVec
	BreakerState  *prometheus.GaugeVec
	PoolsTotal    prometheus.Gauge
	PoolsSkipped  prometheus.Counter
	QuotesTotal   *prometheus.CounterVec
	QuoteLatency  prometheus.Histogram
	QuotesDropped prometheus.Counter
	SwapsTotal    *prometheus.CounterVec
	SwapLatency   prometheus.Histogram
	Refreshes     *prometheus.CounterVec
	BusEvents     *prometheus.CounterVec
}

// New registers all collectors on reg. Pass prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RPCRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "JSON-RPC requests by method and result",
			},
			[]string{"method", "result"},
		),
		RPCLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "JSON-RPC request latency including retries",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		BreakerState: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "rpc",
				Name:      "circuit_breaker_state",
				Help:      "Circuit breaker state (0 closed, 1 half-open, 2 open)",
			},
			[]string{"name"},
		),
		PoolsTotal: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "pools",
			Help:      "Pools found by the latest discovery scan",
		}),
		PoolsSkipped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "accounts_skipped_total",
			Help:      "Program accounts skipped because they failed to decode",
		}),
		QuotesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "quote",
				Name:      "requests_total",
				Help:      "Quotes computed by result",
			},
			[]string{"result"},
		),
		QuoteLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "duration_seconds",
			Help:      "Quote latency including the reserve read",
			Buckets:   prometheus.DefBuckets,
		}),
		QuotesDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "quote",
			Name:      "superseded_total",
			Help:      "Debounced quote results discarded because a newer request arrived",
		}),
		SwapsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "swap",
				Name:      "submissions_total",
				Help:      "Swap submissions by outcome",
			},
			[]string{"outcome"},
		),
		SwapLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "swap",
			Name:      "duration_seconds",
			Help:      "Submit-to-outcome latency",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		Refreshes: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "balance",
				Name:      "refreshes_total",
				Help:      "Balance refreshes by result",
			},
			[]string{"result"},
		),
		BusEvents: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "bus",
				Name:      "events_total",
				Help:      "Refresh events published by source",
			},
			[]string{"source"},
		),
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveRPC(method string, err error, d time.Duration) {
	if m == nil {
		return
	}
	m.RPCRequests.WithLabelValues(method, result(err)).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(d.Seconds())
}

func (m *Metrics) SetBreakerState(name string, state float64) {
	if m == nil {
		return
	}
	m.BreakerState.WithLabelValues(name).Set(state)
}

func (m *Metrics) ObserveDiscovery(pools, skipped int) {
	if m == nil {
		return
	}
	m.PoolsTotal.Set(float64(pools))
	m.PoolsSkipped.Add(float64(skipped))
}

func (m *Metrics) ObserveQuote(err error, d time.Duration) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(result(err)).Inc()
	m.QuoteLatency.Observe(d.Seconds())
}

func (m *Metrics) QuoteSuperseded() {
	if m == nil {
		return
	}
	m.QuotesDropped.Inc()
}

func (m *Metrics) ObserveSwap(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.SwapsTotal.WithLabelValues(outcome).Inc()
	m.SwapLatency.Observe(d.Seconds())
}

// ObserveRefresh records a balance refresh; result is "ok", "error" or "skipped".
func (m *Metrics) ObserveRefresh(result string) {
	if m == nil {
		return
	}
	m.Refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveBusEvent(source string) {
	if m == nil {
		return
	}
	m.BusEvents.WithLabelValues(source).Inc()
}
