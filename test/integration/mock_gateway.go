package integration

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/quickfixgo/quickfix"
	qfconfig "github.com/quickfixgo/quickfix/config"

	"treasury-terminal/fix"
)

// 对手方的会话标识
const (
	CounterpartyCompID = "BROKER"
	ClientCompID       = "CLIENT"
)

// MockCounterparty 模拟 FIX 对手方（quickfix acceptor），用于集成测试
type MockCounterparty struct {
	port      int
	sessionID quickfix.SessionID

	mu       sync.Mutex
	acceptor *quickfix.Acceptor

	// 配置
	rejectLogon bool
	autoFill    bool
	fillPrice   string

	received []*fix.Message
	notify   chan struct{}
	execSeq  int

	// 统计
	logonCount  int
	orderCount  int
	cancelCount int
}

// NewMockCounterparty 在本地空闲端口启动 acceptor
func NewMockCounterparty() (*MockCounterparty, error) {
	port, err := freePort()
	if err != nil {
		return nil, err
	}
	m := &MockCounterparty{
		port:      port,
		sessionID: quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: CounterpartyCompID, TargetCompID: ClientCompID},
		notify:    make(chan struct{}, 1),
		fillPrice: "100",
	}
	if err := m.start(); err != nil {
		return nil, err
	}
	return m, nil
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (m *MockCounterparty) settings() (*quickfix.Settings, error) {
	settings := quickfix.NewSettings()
	global := settings.GlobalSettings()
	global.Set(qfconfig.SocketAcceptPort, strconv.Itoa(m.port))
	global.Set(qfconfig.ResetOnLogon, "Y")
	global.Set(qfconfig.ResetOnDisconnect, "Y")
	global.Set(qfconfig.LogoutTimeout, "1")

	session := quickfix.NewSessionSettings()
	session.Set(qfconfig.BeginString, m.sessionID.BeginString)
	session.Set(qfconfig.SenderCompID, m.sessionID.SenderCompID)
	session.Set(qfconfig.TargetCompID, m.sessionID.TargetCompID)
	if _, err := settings.AddSession(session); err != nil {
		return nil, err
	}
	return settings, nil
}

func (m *MockCounterparty) start() error {
	settings, err := m.settings()
	if err != nil {
		return err
	}
	acceptor, err := quickfix.NewAcceptor(acceptorApp{m}, quickfix.NewMemoryStoreFactory(), settings, recordingLogFactory{m})
	if err != nil {
		return fmt.Errorf("create acceptor: %w", err)
	}
	if err := acceptor.Start(); err != nil {
		return fmt.Errorf("start acceptor: %w", err)
	}
	m.mu.Lock()
	m.acceptor = acceptor
	m.mu.Unlock()
	return nil
}

func (m *MockCounterparty) stop() {
	m.mu.Lock()
	acceptor := m.acceptor
	m.acceptor = nil
	m.mu.Unlock()
	if acceptor != nil {
		acceptor.Stop()
	}
}

// Addr 监听地址
func (m *MockCounterparty) Addr() (string, int) {
	return "127.0.0.1", m.port
}

// SetRejectLogon 设置是否以 Logout 拒绝登录
func (m *MockCounterparty) SetRejectLogon(reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectLogon = reject
}

// SetAutoFill 收到新订单后自动回一笔全部成交回报
func (m *MockCounterparty) SetAutoFill(fill bool, price string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoFill = fill
	if price != "" {
		m.fillPrice = price
	}
}

// record 记录每一条入站报文，包括会话层消息
func (m *MockCounterparty) record(raw []byte) {
	msg, err := fix.Parse(raw)
	if err != nil {
		return
	}
	m.mu.Lock()
	m.received = append(m.received, msg)
	switch msg.MsgType() {
	case fix.MsgTypeLogon:
		m.logonCount++
	case fix.MsgTypeNewOrderSingle:
		m.orderCount++
	case fix.MsgTypeOrderCancelRequest:
		m.cancelCount++
	}
	m.mu.Unlock()

	select {
	case m.notify <- struct{}{}:
	default:
	}
}

// fillFor 构造一笔全部成交的执行回报
func (m *MockCounterparty) fillFor(o *fix.Message, px string) *fix.Message {
	m.mu.Lock()
	m.execSeq++
	n := m.execSeq
	m.mu.Unlock()

	clOrdID, _ := o.Get(fix.TagClOrdID)
	symbol, _ := o.Get(fix.TagSymbol)
	side, _ := o.Get(fix.TagSide)
	qty, _ := o.Get(fix.TagOrderQty)
	return fix.NewMessage(fix.MsgTypeExecutionReport).
		Set(fix.TagOrderID, fmt.Sprintf("ORD-%d", n)).
		Set(fix.TagClOrdID, clOrdID).
		Set(fix.TagExecID, fmt.Sprintf("EXE-%d", n)).
		Set(fix.TagExecType, "F").
		Set(fix.TagOrdStatus, "2").
		Set(fix.TagSymbol, symbol).
		Set(fix.TagSide, side).
		Set(fix.TagOrderQty, qty).
		Set(fix.TagLastQty, qty).
		Set(fix.TagLastPx, px).
		Set(fix.TagCumQty, qty).
		Set(fix.TagLeavesQty, "0")
}

// SendToClient 通过会话向客户端推送一条消息，序号与头部由 quickfix 填充
func (m *MockCounterparty) SendToClient(msg *fix.Message) error {
	return quickfix.SendToTarget(msg, m.sessionID)
}

// DropConnection 模拟对手方重启：停止 acceptor 后在同一端口重新监听
func (m *MockCounterparty) DropConnection() {
	m.stop()
	_ = m.start()
}

// Received 已收到消息的副本
func (m *MockCounterparty) Received() []*fix.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*fix.Message, len(m.received))
	copy(out, m.received)
	return out
}

// WaitFor 等待直到收到 n 条指定类型的消息
func (m *MockCounterparty) WaitFor(msgType string, n int, timeout time.Duration) ([]*fix.Message, error) {
	deadline := time.After(timeout)
	for {
		var matched []*fix.Message
		for _, msg := range m.Received() {
			if msg.MsgType() == msgType {
				matched = append(matched, msg)
			}
		}
		if len(matched) >= n {
			return matched, nil
		}
		select {
		case <-m.notify:
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			return matched, fmt.Errorf("timeout waiting for %d x 35=%s, got %d", n, msgType, len(matched))
		}
	}
}

// GetStatistics 获取统计信息
func (m *MockCounterparty) GetStatistics() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		"logon_count":    m.logonCount,
		"order_count":    m.orderCount,
		"cancel_count":   m.cancelCount,
		"total_received": len(m.received),
	}
}

// Reset 清空已收消息与统计
func (m *MockCounterparty) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.received = nil
	m.logonCount = 0
	m.orderCount = 0
	m.cancelCount = 0
}

// Close 停止 acceptor，可重复调用
func (m *MockCounterparty) Close() {
	m.stop()
}

// acceptorApp 对手方的业务回调
type acceptorApp struct {
	m *MockCounterparty
}

func (a acceptorApp) OnCreate(quickfix.SessionID)                   {}
func (a acceptorApp) OnLogon(quickfix.SessionID)                    {}
func (a acceptorApp) OnLogout(quickfix.SessionID)                   {}
func (a acceptorApp) ToAdmin(*quickfix.Message, quickfix.SessionID) {}

func (a acceptorApp) ToApp(*quickfix.Message, quickfix.SessionID) error {
	return nil
}

func (a acceptorApp) FromAdmin(msg *quickfix.Message, _ quickfix.SessionID) quickfix.MessageRejectError {
	a.m.mu.Lock()
	reject := a.m.rejectLogon
	a.m.mu.Unlock()
	if reject && fix.Wrap(msg).MsgType() == fix.MsgTypeLogon {
		return quickfix.RejectLogon{Text: "logon rejected"}
	}
	return nil
}

func (a acceptorApp) FromApp(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	in := fix.Wrap(msg)
	if in.MsgType() != fix.MsgTypeNewOrderSingle {
		return nil
	}
	a.m.mu.Lock()
	autoFill, px := a.m.autoFill, a.m.fillPrice
	a.m.mu.Unlock()
	if autoFill {
		_ = quickfix.SendToTarget(a.m.fillFor(in, px), id)
	}
	return nil
}

// recordingLogFactory 借会话日志的入站回调记录原始报文
type recordingLogFactory struct {
	m *MockCounterparty
}

func (f recordingLogFactory) Create() (quickfix.Log, error) {
	return recordingLog{}, nil
}

func (f recordingLogFactory) CreateSessionLog(quickfix.SessionID) (quickfix.Log, error) {
	return recordingLog{m: f.m}, nil
}

type recordingLog struct {
	m *MockCounterparty
}

func (l recordingLog) OnIncoming(raw []byte) {
	if l.m != nil {
		l.m.record(raw)
	}
}

func (l recordingLog) OnOutgoing([]byte)               {}
func (l recordingLog) OnEvent(string)                  {}
func (l recordingLog) OnEventf(string, ...interface{}) {}
