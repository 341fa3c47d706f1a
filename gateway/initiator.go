package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/logger"
)

// Options 会话之外的发送参数。
type Options struct {
	MaxMsgsPerSec float64 // 0 表示不限速
	Burst         int
}

// Initiator 把业务 Application 绑定到 quickfix 发起方。
// 会话层（登录、心跳、序号校验、重传与 SequenceReset）全部由 quickfix 处理，
// 这里只补登录凭据、跟踪登录状态并对业务消息限速。
type Initiator struct {
	settings  *quickfix.Settings
	sessionID quickfix.SessionID
	username  string
	password  string

	app     quickfix.Application
	log     *logger.Logger
	limiter RateLimiter

	loggedOn atomic.Bool

	mu        sync.Mutex
	ctx       context.Context
	initiator *quickfix.Initiator
}

var (
	_ Sender               = (*Initiator)(nil)
	_ quickfix.Application = (*Initiator)(nil)
)

func NewInitiator(settings *quickfix.Settings, app quickfix.Application, opts Options, log *logger.Logger) (*Initiator, error) {
	if settings == nil {
		return nil, errors.New("fix settings are required")
	}
	if app == nil {
		return nil, errors.New("fix application is required")
	}
	id, ss, err := singleSession(settings)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	var limiter RateLimiter = noLimit{}
	if opts.MaxMsgsPerSec > 0 {
		limiter = NewTokenBucketLimiter(opts.MaxMsgsPerSec, opts.Burst)
	}
	i := &Initiator{
		settings:  settings,
		sessionID: id,
		app:       app,
		log:       log.Named("fix"),
		limiter:   limiter,
		ctx:       context.Background(),
	}
	if ss.HasSetting(SettingUsername) {
		i.username, _ = ss.Setting(SettingUsername)
		i.password, _ = ss.Setting(SettingPassword)
	}
	return i, nil
}

// SessionID 形如 FIX.4.4:SENDER->TARGET。
func (i *Initiator) SessionID() quickfix.SessionID {
	return i.sessionID
}

// IsLoggedOn 网关自身的登录标记。
func (i *Initiator) IsLoggedOn() bool {
	return i.loggedOn.Load()
}

// Start 启动 quickfix 发起方，断线后按 ReconnectInterval 重连。
func (i *Initiator) Start(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.initiator != nil {
		return errors.New("fix initiator already started")
	}
	qi, err := quickfix.NewInitiator(i, quickfix.NewMemoryStoreFactory(), i.settings, newLogFactory(i.log))
	if err != nil {
		return fmt.Errorf("create fix initiator: %w", err)
	}
	if err := qi.Start(); err != nil {
		return fmt.Errorf("start fix initiator: %w", err)
	}
	i.ctx = ctx
	i.initiator = qi
	i.log.Info("fix initiator started", zap.String("session", i.sessionID.String()))
	return nil
}

// Stop 发送 Logout，等待确认或超时后断开。
func (i *Initiator) Stop() error {
	i.mu.Lock()
	qi := i.initiator
	i.initiator = nil
	i.mu.Unlock()
	if qi == nil {
		return nil
	}
	qi.Stop()
	i.loggedOn.Store(false)
	return nil
}

// Send 发送业务消息；未登录时立即失败，不排队不重试。
func (i *Initiator) Send(msg *fix.Message) error {
	if fix.IsAdmin(msg.MsgType()) {
		return fmt.Errorf("%w: 35=%s", ErrAdminMessage, msg.MsgType())
	}
	if !i.loggedOn.Load() {
		return ErrNotLoggedOn
	}
	i.mu.Lock()
	ctx := i.ctx
	i.mu.Unlock()
	if err := i.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := quickfix.SendToTarget(msg, i.sessionID); err != nil {
		return fmt.Errorf("send %s: %w", msg.MsgType(), err)
	}
	return nil
}

// Health 供生命周期管理器检查。
func (i *Initiator) Health() error {
	if !i.loggedOn.Load() {
		return ErrNotLoggedOn
	}
	return nil
}

func (i *Initiator) OnCreate(id quickfix.SessionID) {
	i.app.OnCreate(id)
}

func (i *Initiator) OnLogon(id quickfix.SessionID) {
	i.loggedOn.Store(true)
	i.app.OnLogon(id)
}

func (i *Initiator) OnLogout(id quickfix.SessionID) {
	i.loggedOn.Store(false)
	i.app.OnLogout(id)
}

// ToAdmin 在 Logon 上补用户名密码。
func (i *Initiator) ToAdmin(msg *quickfix.Message, id quickfix.SessionID) {
	if i.username != "" && fix.Wrap(msg).MsgType() == fix.MsgTypeLogon {
		msg.Body.SetString(quickfix.Tag(fix.TagUsername), i.username)
		msg.Body.SetString(quickfix.Tag(fix.TagPassword), i.password)
	}
	i.app.ToAdmin(msg, id)
}

func (i *Initiator) ToApp(msg *quickfix.Message, id quickfix.SessionID) error {
	return i.app.ToApp(msg, id)
}

func (i *Initiator) FromAdmin(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	return i.app.FromAdmin(msg, id)
}

func (i *Initiator) FromApp(msg *quickfix.Message, id quickfix.SessionID) quickfix.MessageRejectError {
	return i.app.FromApp(msg, id)
}
