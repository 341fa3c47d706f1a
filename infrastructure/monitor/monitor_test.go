package monitor

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMonitorCounters(t *testing.T) {
	m := New(DefaultConfig())

	m.RecordOrderRouted(OutcomeSent)
	m.RecordOrderRouted(OutcomeSent)
	m.RecordOrderRouted(OutcomeSimulated)
	m.RecordTickPublished()
	m.RecordTickDropped()
	m.UpdateMidPrice("10Y", 96.255)
	m.RecordExecutionReport("")
	m.UpdateSessionState(2)
	m.RecordBrokerError("brpop")
	m.StreamClientConnected()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.ordersRouted.WithLabelValues(OutcomeSent)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ordersRouted.WithLabelValues(OutcomeSimulated)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ordersRouted.WithLabelValues(OutcomeSendFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksPublished))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ticksDropped))
	assert.Equal(t, 96.255, testutil.ToFloat64(m.midPrice.WithLabelValues("10Y")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.execReports.WithLabelValues("unknown")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sessionState))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.streamClients))
}

func TestNilMonitorIsSafe(t *testing.T) {
	var m *Monitor
	assert.NotPanics(t, func() {
		m.RecordOrderRouted(OutcomeSent)
		m.RecordTickDropped()
		m.UpdateSessionState(1)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(DefaultConfig())
	m.RecordOrderRouted(OutcomeMalformed)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `treasury_engine_orders_routed_total{outcome="malformed"} 1`))
}
