package engine_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/quickfixgo/quickfix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"treasury-terminal/broker"
	"treasury-terminal/execution"
	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/alert"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/instrument"
	"treasury-terminal/internal/engine"
	"treasury-terminal/market"
	"treasury-terminal/router"
	"treasury-terminal/session"
)

// mockGateway 记录启停顺序
type mockGateway struct {
	mu     sync.Mutex
	events *[]string
	err    error
}

func (g *mockGateway) Start(context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	*g.events = append(*g.events, "gateway_start")
	return g.err
}

func (g *mockGateway) Stop() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	*g.events = append(*g.events, "gateway_stop")
	return nil
}

type fixture struct {
	engine *engine.TradingEngine
	broker *broker.Memory
	sess   *session.Session
	alerts *alert.MockChannel
}

func newFixture(t *testing.T, marketData bool) fixture {
	t.Helper()
	b := broker.NewMemory()
	sess := session.New(logger.Nop())
	sess.OnChange(session.StatusPublisher(b, logger.Nop()))

	opts := market.DefaultOptions()
	opts.Interval = 10 * time.Millisecond
	opts.Rand = market.NewRand(1)
	sim := market.NewSimulator(instrument.Default(), b, opts, nil, nil)

	mock := alert.NewMockChannel("mock")
	eng, err := engine.New(engine.Config{MarketData: marketData, StopTimeout: time.Second}, engine.Components{
		Session:      sess,
		Ingestor:     execution.NewIngestor(b, nil, nil),
		Simulator:    sim,
		AlertManager: alert.NewManager([]alert.Channel{mock}, time.Minute),
		Logger:       logger.Nop(),
	})
	require.NoError(t, err)
	return fixture{engine: eng, broker: b, sess: sess, alerts: mock}
}

func TestNewValidatesComponents(t *testing.T) {
	_, err := engine.New(engine.Config{}, engine.Components{})
	assert.Error(t, err)

	_, err = engine.New(engine.Config{MarketData: true}, engine.Components{
		Session:  session.New(nil),
		Ingestor: execution.NewIngestor(broker.NewMemory(), nil, nil),
		Logger:   logger.Nop(),
	})
	assert.Error(t, err, "market data needs a simulator")
}

func TestStartRequiresRouter(t *testing.T) {
	f := newFixture(t, false)
	assert.Error(t, f.engine.Start(context.Background()))
}

func TestEngineRunsLoopsAndStopsGatewayFirst(t *testing.T) {
	f := newFixture(t, true)
	var events []string
	gw := &mockGateway{events: &events}
	r := router.New(router.Config{PollTimeout: 10 * time.Millisecond}, f.broker, instrument.Default(), f.sess, nil, nil, nil)
	f.engine.Attach(r, gw)

	require.NoError(t, f.engine.Start(context.Background()))
	assert.Equal(t, engine.StateRunning, f.engine.GetState())
	assert.NoError(t, f.engine.Health())
	assert.Error(t, f.engine.Start(context.Background()), "double start")

	// 行情循环在跑
	require.Eventually(t, func() bool {
		_, ok, _ := f.broker.Get(context.Background(), broker.KeyLatestPrices)
		return ok
	}, time.Second, 5*time.Millisecond)

	// 路由循环在跑（未登录 -> 模拟模式，出队即消费）
	require.NoError(t, f.broker.Push(context.Background(), broker.KeyOrderQueue, `{"clOrdID":"a","symbol":"10Y","side":"BUY","qty":1}`))
	require.Eventually(t, func() bool { return f.broker.Len(broker.KeyOrderQueue) == 0 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.engine.Stop())
	assert.Equal(t, engine.StateStopped, f.engine.GetState())
	assert.Equal(t, []string{"gateway_start", "gateway_stop"}, events)
	assert.NoError(t, f.engine.Stop(), "stop is idempotent")
}

func TestEngineGatewayStartFailure(t *testing.T) {
	f := newFixture(t, false)
	var events []string
	gw := &mockGateway{events: &events, err: assert.AnError}
	f.engine.Attach(router.New(router.Config{}, f.broker, nil, f.sess, nil, nil, nil), gw)

	assert.ErrorIs(t, f.engine.Start(context.Background()), assert.AnError)
	assert.Equal(t, engine.StateStopped, f.engine.GetState())
}

func TestSessionCallbacksDriveStateAndAlerts(t *testing.T) {
	f := newFixture(t, false)
	id := quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT", TargetCompID: "BROKER"}
	ctx := context.Background()

	f.engine.OnCreate(id)
	f.engine.ToAdmin(fix.NewMessage(fix.MsgTypeLogon).Message, id)
	assert.Equal(t, session.LoggingOn, f.sess.State())
	f.engine.OnLogon(id)
	assert.True(t, f.sess.IsLoggedOn())
	status, _, _ := f.broker.Get(ctx, broker.KeyFIXStatus)
	assert.Equal(t, session.StatusLoggedOn, status)

	// 没有收发 Logout 就结束，视为断线
	f.engine.OnLogout(id)
	assert.Equal(t, session.Disconnected, f.sess.State())
	status, _, _ = f.broker.Get(ctx, broker.KeyFIXStatus)
	assert.Equal(t, session.StatusLoggedOff, status)

	// 非法回调（未发 Logon 就登录成功）被拒绝，不计数
	f.engine.OnLogon(id)
	assert.False(t, f.sess.IsLoggedOn())

	stats := f.engine.GetStatistics()
	assert.Equal(t, int64(1), stats.Logons)
	assert.Equal(t, int64(1), stats.Disconnects)
	assert.Equal(t, int64(0), stats.Logouts)

	alerts := f.alerts.GetAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, alert.LevelInfo, alerts[0].Level)
	assert.Equal(t, alert.LevelError, alerts[1].Level)
	assert.Equal(t, "FIX session disconnected", alerts[1].Message)
	assert.Equal(t, id.String(), alerts[1].Fields["session"])
}

func TestOrderlyLogoutRaisesWarning(t *testing.T) {
	f := newFixture(t, false)
	id := quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT", TargetCompID: "BROKER"}

	f.engine.ToAdmin(fix.NewMessage(fix.MsgTypeLogon).Message, id)
	f.engine.OnLogon(id)
	assert.Nil(t, f.engine.FromAdmin(fix.NewMessage(fix.MsgTypeLogout).Set(fix.TagText, "end of day").Message, id))
	f.engine.OnLogout(id)

	assert.Equal(t, session.Disconnected, f.sess.State())
	stats := f.engine.GetStatistics()
	assert.Equal(t, int64(1), stats.Logouts)
	assert.Equal(t, int64(0), stats.Disconnects)

	alerts := f.alerts.GetAlerts()
	require.Len(t, alerts, 2)
	assert.Equal(t, alert.LevelWarning, alerts[1].Level)
	assert.Equal(t, "FIX session logged out", alerts[1].Message)

	// 重新登录后再断线，按断线计
	f.engine.ToAdmin(fix.NewMessage(fix.MsgTypeLogon).Message, id)
	f.engine.OnLogon(id)
	f.engine.OnLogout(id)
	assert.Equal(t, int64(1), f.engine.GetStatistics().Disconnects)
}

func TestFromAppStoresReport(t *testing.T) {
	f := newFixture(t, false)
	msg := fix.NewMessage(fix.MsgTypeExecutionReport).
		Set(fix.TagClOrdID, "c-1").
		Set(fix.TagExecType, "0").
		Set(fix.TagOrdStatus, "0")
	assert.Nil(t, f.engine.FromApp(msg.Message, quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT", TargetCompID: "BROKER"}))

	reports, err := execution.Recent(context.Background(), f.broker, 5)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "c-1", reports[0].ClOrdID)
	assert.Equal(t, int64(1), f.engine.GetStatistics().AppMessages)
}
