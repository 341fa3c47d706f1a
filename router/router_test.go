package router

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"treasury-terminal/broker"
	"treasury-terminal/fix"
	"treasury-terminal/gateway"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/instrument"
	"treasury-terminal/monitor/logschema"
	"treasury-terminal/order"
	"treasury-terminal/session"
)

type fakeSession struct{ loggedOn bool }

func (f fakeSession) State() session.State {
	if f.loggedOn {
		return session.LoggedOn
	}
	return session.Disconnected
}
func (f fakeSession) IsLoggedOn() bool { return f.loggedOn }
func (f fakeSession) CanSend() bool    { return f.loggedOn }
func (f fakeSession) ID() string       { return "FIX.4.4:CLIENT->BROKER" }

type fakeSender struct {
	mu   sync.Mutex
	sent []*fix.Message
	err  error
}

func (f *fakeSender) Send(msg *fix.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAlerter struct {
	mu       sync.Mutex
	messages []string
	critical []map[string]interface{}
}

func (f *fakeAlerter) SendWarning(message string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeAlerter) SendCritical(message string, fields map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, message)
	f.critical = append(f.critical, fields)
	return nil
}

func (f *fakeAlerter) criticalCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.critical)
}

func newTestRouter(t *testing.T, loggedOn bool, sender gateway.Sender, verbose bool) (*Router, *broker.Memory, *observer.ObservedLogs, *monitor.Monitor) {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	b := broker.NewMemory()
	mon := monitor.New(monitor.DefaultConfig())
	r := New(Config{PollTimeout: 20 * time.Millisecond, Verbose: verbose},
		b, instrument.Default(), fakeSession{loggedOn: loggedOn}, sender, logger.Wrap(zap.New(core)), mon)
	r.now = func() time.Time { return time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC) }
	return r, b, logs, mon
}

func encode(t *testing.T, o order.Order) string {
	t.Helper()
	raw, err := order.EncodeOrder(o)
	require.NoError(t, err)
	return raw
}

// 未登录时 {10Y BUY 10 MARKET} 只记录模拟日志，不转发、不报错
func TestHandleSimulatesWhenNotLoggedOn(t *testing.T) {
	sender := &fakeSender{}
	r, _, logs, mon := newTestRouter(t, false, sender, true)

	payload := `{"clOrdID":"sim-1","symbol":"10Y","side":"BUY","qty":10,"ordType":"MARKET","timestamp":1700000000}`
	assert.Equal(t, OutcomeSimulated, r.Handle(payload))
	assert.Zero(t, sender.count())

	entries := logs.FilterMessageSnippet("SIM MODE: BUY 10 10Y (ID: sim-1)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.NoError(t, logschema.Validate(logschema.EventOrderRouted, entries[0].ContextMap()))

	debug := logs.FilterMessage("SIM MODE payload").All()
	require.Len(t, debug, 1)
	assert.Equal(t, payload, debug[0].ContextMap()["payload"])

	assert.Equal(t, 1.0, testutil.ToFloat64(counterFor(t, mon, OutcomeSimulated)))
}

func TestHandleSimulatesWithoutGateway(t *testing.T) {
	r, _, logs, _ := newTestRouter(t, true, nil, false)
	assert.Equal(t, OutcomeSimulated, r.Handle(`{"clOrdID":"a","symbol":"5Y","side":"sell","qty":3}`))
	assert.Equal(t, 1, logs.FilterMessageSnippet("SIM MODE: SELL 3 5Y").Len())
	assert.Zero(t, logs.FilterMessage("SIM MODE payload").Len(), "payload only logged when verbose")
}

func TestHandleSendsWhenLoggedOn(t *testing.T) {
	sender := &fakeSender{}
	r, _, logs, _ := newTestRouter(t, true, sender, false)

	px := 110.5
	o := order.Order{ClOrdID: "lim-1", Symbol: "TYH6", Side: order.SideSell, Qty: 5, OrdType: order.TypeLimit, Price: &px, Timestamp: 1700000000}
	assert.Equal(t, OutcomeSent, r.Handle(encode(t, o)))

	require.Equal(t, 1, sender.count())
	msg := sender.sent[0]
	assert.Equal(t, fix.MsgTypeNewOrderSingle, msg.MsgType())
	price, _ := msg.Get(fix.TagPrice)
	assert.Equal(t, "110.5", price)
	side, _ := msg.Get(fix.TagSide)
	assert.Equal(t, "2", side)

	entries := logs.FilterMessage("FIX SENT: SELL 5 TYH6 (ID: lim-1)").All()
	require.Len(t, entries, 1)
	assert.Equal(t, string(OutcomeSent), entries[0].ContextMap()["outcome"])
}

func TestHandleSendFailureIsDistinct(t *testing.T) {
	sender := &fakeSender{err: gateway.ErrNotLoggedOn}
	r, _, logs, mon := newTestRouter(t, true, sender, false)
	alerts := &fakeAlerter{}
	r.SetAlerter(alerts)

	assert.Equal(t, OutcomeSendFailed, r.Handle(`{"clOrdID":"f-1","symbol":"2Y","side":"BUY","qty":1}`))
	entries := logs.FilterMessageSnippet("FIX SEND FAILED").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zapcore.WarnLevel, entries[0].Level)
	assert.Zero(t, logs.FilterMessageSnippet("SIM MODE").Len())
	assert.Equal(t, []string{"FIX send failed"}, alerts.messages)
	assert.Equal(t, 1.0, testutil.ToFloat64(counterFor(t, mon, OutcomeSendFailed)))

	audit := logs.FilterMessage("order_event").All()
	require.Len(t, audit, 1)
	fields := audit[0].ContextMap()
	assert.Equal(t, string(OutcomeSendFailed), fields["event"])
	assert.Equal(t, "f-1", fields["clOrdID"])
	assert.NoError(t, logschema.Validate(logschema.EventOrderEvent, fields))
	assert.Equal(t, 0.0, testutil.ToFloat64(counterFor(t, mon, OutcomeSimulated)))
}

func TestHandleCancel(t *testing.T) {
	sender := &fakeSender{}
	r, _, _, _ := newTestRouter(t, true, sender, false)

	c := order.NewCancel("orig-1", "10Y", order.SideBuy, time.Now())
	raw, err := order.EncodeCancel(c)
	require.NoError(t, err)
	assert.Equal(t, OutcomeSent, r.Handle(raw))

	require.Equal(t, 1, sender.count())
	msg := sender.sent[0]
	assert.Equal(t, fix.MsgTypeOrderCancelRequest, msg.MsgType())
	orig, _ := msg.Get(fix.TagOrigClOrdID)
	assert.Equal(t, "orig-1", orig)
	ts, _ := msg.Get(fix.TagTransactTime)
	assert.Equal(t, "20260302-14:30:00", ts)
}

func TestHandleRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Outcome
	}{
		{"非JSON", "not json", OutcomeMalformed},
		{"未知合约", `{"clOrdID":"x","symbol":"ZZZ","side":"BUY","qty":1}`, OutcomeMalformed},
		{"数量非正", `{"clOrdID":"x","symbol":"10Y","side":"BUY","qty":0}`, OutcomeMalformed},
		{"未知方向", `{"clOrdID":"x","symbol":"10Y","side":"HOLD","qty":1}`, OutcomeTranslateFailed},
		{"未知类型", `{"clOrdID":"x","symbol":"10Y","side":"BUY","qty":1,"ordType":"STOP"}`, OutcomeTranslateFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &fakeSender{}
			r, _, logs, _ := newTestRouter(t, true, sender, false)
			assert.Equal(t, tt.want, r.Handle(tt.payload))
			assert.Zero(t, sender.count())
			if tt.want == OutcomeTranslateFailed {
				audit := logs.FilterMessage("order_event").All()
				require.Len(t, audit, 1)
				assert.Equal(t, string(OutcomeTranslateFailed), audit[0].ContextMap()["event"])
			}
		})
	}
}

// 非法载荷被跳过，后续合法载荷仍被处理
func TestRunSkipsMalformedEntry(t *testing.T) {
	sender := &fakeSender{}
	r, b, logs, _ := newTestRouter(t, true, sender, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, b.Push(ctx, broker.KeyOrderQueue, "{{{not json"))
	require.NoError(t, b.Push(ctx, broker.KeyOrderQueue, `{"clOrdID":"ok-1","symbol":"10Y","side":"BUY","qty":10,"ordType":"MARKET"}`))

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("Invalid order payload").Len())
	id, _ := sender.sent[0].Get(fix.TagClOrdID)
	assert.Equal(t, "ok-1", id)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("router did not stop")
	}
}

func TestRunSurvivesBrokerOutage(t *testing.T) {
	sender := &fakeSender{}
	r, b, logs, _ := newTestRouter(t, true, sender, false)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.Fail(errors.New("connection refused"))
	go func() { _ = r.Run(ctx) }()
	require.Eventually(t, func() bool { return logs.FilterMessage("order queue read failed").Len() >= 2 }, time.Second, 5*time.Millisecond)

	b.Fail(nil)
	require.NoError(t, b.Push(ctx, broker.KeyOrderQueue, `{"clOrdID":"late","symbol":"30Y","side":"SELL","qty":2}`))
	require.Eventually(t, func() bool { return sender.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, logs.FilterMessage("order queue recovered").Len())
}

// 底座持续中断超过阈值只发一次 CRITICAL，恢复后重新计时
func TestRunAlertsOnPersistentBrokerOutage(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	b := broker.NewMemory()
	r := New(Config{PollTimeout: 10 * time.Millisecond, OutageAlertAfter: 50 * time.Millisecond},
		b, instrument.Default(), fakeSession{}, nil, logger.Wrap(zap.New(core)), nil)
	alerts := &fakeAlerter{}
	r.SetAlerter(alerts)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.Fail(errors.New("connection refused"))
	go func() { _ = r.Run(ctx) }()
	require.Eventually(t, func() bool { return alerts.criticalCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	// 退避逐步拉长
	waits := logs.FilterMessage("order queue read failed").All()
	require.GreaterOrEqual(t, len(waits), 2)
	first := waits[0].ContextMap()["backoff"].(time.Duration)
	last := waits[len(waits)-1].ContextMap()["backoff"].(time.Duration)
	assert.Greater(t, last, first)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, alerts.criticalCount(), "one alert per outage")
	alerts.mu.Lock()
	assert.Equal(t, broker.KeyOrderQueue, alerts.critical[0]["queue"])
	assert.Equal(t, "connection refused", alerts.critical[0]["error"])
	alerts.mu.Unlock()

	b.Fail(nil)
	require.Eventually(t, func() bool { return logs.FilterMessage("order queue recovered").Len() == 1 }, 2*time.Second, 5*time.Millisecond)
}

func counterFor(t *testing.T, mon *monitor.Monitor, outcome Outcome) prometheus.Counter {
	t.Helper()
	return mon.OrdersRouted().WithLabelValues(string(outcome))
}
