package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRPC("getMultipleAccounts", nil, 10*time.Millisecond)
	m.ObserveRPC("getMultipleAccounts", errors.New("boom"), 10*time.Millisecond)
	m.ObserveRefresh("skipped")
	m.ObserveDiscovery(3, 2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("getMultipleAccounts", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RPCRequests.WithLabelValues("getMultipleAccounts", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Refreshes.WithLabelValues("skipped")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.PoolsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.PoolsSkipped))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRPC("x", nil, time.Second)
		m.ObserveQuote(nil, time.Second)
		m.QuoteSuperseded()
		m.ObserveSwap("success", time.Second)
		m.ObserveRefresh("ok")
		m.ObserveBusEvent("swap")
		m.SetBreakerState("rpc", 2)
		m.ObserveDiscovery(1, 0)
	})
}
