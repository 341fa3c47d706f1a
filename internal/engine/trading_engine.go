package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"treasury-terminal/execution"
	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/alert"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/market"
	"treasury-terminal/router"
	"treasury-terminal/session"
)

// EngineState 引擎状态
type EngineState int

const (
	// StateIdle 空闲状态
	StateIdle EngineState = iota
	// StateRunning 运行状态
	StateRunning
	// StateStopped 停止状态
	StateStopped
)

// String 返回状态名称
func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Gateway 会话网关的生命周期
type Gateway interface {
	Start(ctx context.Context) error
	Stop() error
}

// Config 引擎配置
type Config struct {
	MarketData  bool          // 是否运行行情模拟
	StopTimeout time.Duration // 等待循环退出的上限
}

// Components 引擎依赖组件
type Components struct {
	Session      *session.Session
	Ingestor     *execution.Ingestor
	Simulator    *market.Simulator
	AlertManager *alert.Manager
	Logger       *logger.Logger
}

// TradingEngine 串起会话回调、订单路由、行情模拟三部分。
// 路由与模拟各自独占一个 goroutine，只通过底座共享数据。
type TradingEngine struct {
	config Config

	session   *session.Session
	ingestor  *execution.Ingestor
	simulator *market.Simulator
	router    *router.Router
	gateway   Gateway
	alertMgr  *alert.Manager
	logger    *logger.Logger

	// 状态
	state EngineState
	mu    sync.RWMutex

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// 本次会话是否收发过 Logout
	logoutSeen atomic.Bool

	stats Statistics
}

// Statistics 引擎统计信息
type Statistics struct {
	StartTime   time.Time
	Logons      int64
	Logouts     int64
	Disconnects int64
	AppMessages int64
	mu          sync.RWMutex
}

var _ quickfix.Application = (*TradingEngine)(nil)

// New 创建交易引擎
func New(cfg Config, components Components) (*TradingEngine, error) {
	if err := validateComponents(cfg, components); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 10 * time.Second
	}
	return &TradingEngine{
		config:    cfg,
		session:   components.Session,
		ingestor:  components.Ingestor,
		simulator: components.Simulator,
		alertMgr:  components.AlertManager,
		logger:    components.Logger,
		state:     StateIdle,
	}, nil
}

// Attach 绑定路由与网关。网关以引擎作为回调，因此在 New 之后绑定；gw 为 nil 时只跑模拟模式。
func (e *TradingEngine) Attach(r *router.Router, gw Gateway) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.router = r
	e.gateway = gw
}

// Start 启动路由、行情模拟与网关
func (e *TradingEngine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}
	if e.router == nil {
		e.mu.Unlock()
		return errors.New("router is required")
	}
	loopCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.state = StateRunning
	e.mu.Unlock()

	e.stats.mu.Lock()
	e.stats.StartTime = time.Now()
	e.stats.mu.Unlock()

	e.logger.Info("Trading engine starting",
		zap.Bool("market_data", e.config.MarketData && e.simulator != nil),
		zap.Bool("gateway", e.gateway != nil))

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.router.Run(loopCtx); err != nil {
			e.logger.Error("order router exited", zap.Error(err))
		}
	}()

	if e.config.MarketData && e.simulator != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := e.simulator.Run(loopCtx); err != nil {
				e.logger.Error("market data simulator exited", zap.Error(err))
			}
		}()
	}

	if e.gateway != nil {
		if err := e.gateway.Start(loopCtx); err != nil {
			cancel()
			e.wg.Wait()
			e.mu.Lock()
			e.state = StateStopped
			e.mu.Unlock()
			return fmt.Errorf("failed to start gateway: %w", err)
		}
	} else {
		e.logger.Warn("no FIX gateway configured, orders run in SIM MODE")
	}

	e.logger.Info("Trading engine started")
	return nil
}

// Stop 先停网关，再停两个循环
func (e *TradingEngine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopped
	gw, cancel := e.gateway, e.cancel
	e.mu.Unlock()

	e.logger.Info("Trading engine stopping...")

	if gw != nil {
		if err := gw.Stop(); err != nil {
			e.logger.Error("Failed to stop gateway", zap.Error(err))
		}
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(e.config.StopTimeout):
		e.logger.Warn("Timeout waiting for engine loops to stop")
	}

	e.logger.Info("Trading engine stopped")
	return nil
}

// OnCreate 会话创建
func (e *TradingEngine) OnCreate(sessionID quickfix.SessionID) {
	e.session.OnCreate(sessionID.String())
}

// ToAdmin 出站会话层消息：Logon 推进到 LOGGING_ON，Logout 标记为正常登出
func (e *TradingEngine) ToAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) {
	switch fix.Wrap(msg).MsgType() {
	case fix.MsgTypeLogon:
		e.logger.Debug("Sending Logon message", zap.String("session", sessionID.String()))
		_ = e.session.OnLogonSent(sessionID.String())
	case fix.MsgTypeLogout:
		e.logoutSeen.Store(true)
	}
}

// FromAdmin 入站会话层消息只记日志；序号、心跳与重传由 quickfix 处理
func (e *TradingEngine) FromAdmin(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	in := fix.Wrap(msg)
	if in.MsgType() == fix.MsgTypeLogout {
		e.logoutSeen.Store(true)
	}
	e.logger.Debug("Admin IN", zap.String("session", sessionID.String()), zap.String("msg", in.String()))
	return nil
}

// OnLogon 登录成功
func (e *TradingEngine) OnLogon(sessionID quickfix.SessionID) {
	id := sessionID.String()
	e.logoutSeen.Store(false)
	if err := e.session.OnLogon(id); err != nil {
		return
	}
	e.stats.mu.Lock()
	e.stats.Logons++
	e.stats.mu.Unlock()
	e.logger.Info(fmt.Sprintf("Logon successful: %s", id))
	e.alert(e.alertMgr.SendInfo, "FIX session logged on", id)
}

// OnLogout 会话结束。收发过 Logout 的是正常登出，否则是传输层断开
func (e *TradingEngine) OnLogout(sessionID quickfix.SessionID) {
	id := sessionID.String()
	if e.logoutSeen.Swap(false) {
		if err := e.session.OnLogout(id); err != nil {
			return
		}
		e.stats.mu.Lock()
		e.stats.Logouts++
		e.stats.mu.Unlock()
		e.logger.Warn(fmt.Sprintf("Logout: %s", id))
		e.alert(e.alertMgr.SendWarning, "FIX session logged out", id)
		_ = e.session.OnDisconnect(id)
		return
	}
	if err := e.session.OnDisconnect(id); err != nil {
		return
	}
	e.stats.mu.Lock()
	e.stats.Disconnects++
	e.stats.mu.Unlock()
	e.logger.Error(fmt.Sprintf("Disconnected: %s", id))
	e.alert(e.alertMgr.SendError, "FIX session disconnected", id)
}

// ToApp 出站业务消息
func (e *TradingEngine) ToApp(msg *quickfix.Message, sessionID quickfix.SessionID) error {
	e.logger.Info("App OUT", zap.String("session", sessionID.String()), zap.String("msg", fix.Wrap(msg).String()))
	return nil
}

// FromApp 业务消息交给回报接收器
func (e *TradingEngine) FromApp(msg *quickfix.Message, sessionID quickfix.SessionID) quickfix.MessageRejectError {
	e.stats.mu.Lock()
	e.stats.AppMessages++
	e.stats.mu.Unlock()
	e.ingestor.FromApp(fix.Wrap(msg), sessionID.String())
	return nil
}

func (e *TradingEngine) alert(send func(string, map[string]interface{}) error, message, sessionID string) {
	if e.alertMgr == nil {
		return
	}
	if err := send(message, map[string]interface{}{"session": sessionID}); err != nil {
		e.logger.Warn("Failed to send alert", zap.Error(err))
	}
}

// GetState 获取引擎状态
func (e *TradingEngine) GetState() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// GetStatistics 获取统计信息
func (e *TradingEngine) GetStatistics() Statistics {
	e.stats.mu.RLock()
	defer e.stats.mu.RUnlock()
	return Statistics{
		StartTime:   e.stats.StartTime,
		Logons:      e.stats.Logons,
		Logouts:     e.stats.Logouts,
		Disconnects: e.stats.Disconnects,
		AppMessages: e.stats.AppMessages,
	}
}

// Health 供生命周期管理器检查
func (e *TradingEngine) Health() error {
	if e.GetState() != StateRunning {
		return fmt.Errorf("engine not running (state: %s)", e.GetState())
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(cfg Config, comp Components) error {
	if comp.Session == nil {
		return errors.New("session is required")
	}
	if comp.Ingestor == nil {
		return errors.New("ingestor is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.MarketData && comp.Simulator == nil {
		return errors.New("simulator is required when market data is enabled")
	}
	return nil
}
