// Package session 跟踪 FIX 会话状态。状态只由网关生命周期回调驱动，路由只读。
package session

import (
	"sync"

	"go.uber.org/zap"

	"treasury-terminal/infrastructure/logger"
)

// Listener 状态变化回调，在锁外调用。
type Listener func(id string, from, to State)

// View 路由侧只读视图。
type View interface {
	State() State
	IsLoggedOn() bool
	CanSend() bool
	ID() string
}

// Session 会话状态持有者。
type Session struct {
	mu        sync.RWMutex
	id        string
	state     State
	sm        *StateMachine
	listeners []Listener
	log       *logger.Logger
}

var _ View = (*Session)(nil)

func New(log *logger.Logger) *Session {
	if log == nil {
		log = logger.Nop()
	}
	return &Session{
		state: Disconnected,
		sm:    NewStateMachine(),
		log:   log,
	}
}

// OnChange 注册状态变化监听。
func (s *Session) OnChange(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) IsLoggedOn() bool {
	return s.State() == LoggedOn
}

// CanSend 当前状态是否允许发送业务消息。
func (s *Session) CanSend() bool {
	return s.sm.CanSend(s.State())
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// OnCreate 网关创建会话时调用，只记录会话标识。
func (s *Session) OnCreate(id string) {
	s.mu.Lock()
	s.id = id
	s.mu.Unlock()
	s.log.LogSession("created", id, nil)
}

// OnLogonSent 已发出 Logon。
func (s *Session) OnLogonSent(id string) error {
	return s.transition(id, LoggingOn)
}

// OnLogon 对端确认登录。
func (s *Session) OnLogon(id string) error {
	return s.transition(id, LoggedOn)
}

// OnLogout 登出（任一方发起）。
func (s *Session) OnLogout(id string) error {
	return s.transition(id, LoggedOut)
}

// OnDisconnect 传输层断开。
func (s *Session) OnDisconnect(id string) error {
	return s.transition(id, Disconnected)
}

func (s *Session) transition(id string, to State) error {
	s.mu.Lock()
	from := s.state
	if err := s.sm.ValidateTransition(from, to); err != nil {
		s.mu.Unlock()
		s.log.Warn("session transition rejected",
			zap.String("session", id),
			zap.Stringer("from", from),
			zap.Stringer("to", to),
			zap.Stringers("allowed", s.sm.AllowedTransitions(from)),
			zap.Error(err),
		)
		return err
	}
	if id != "" {
		s.id = id
	}
	s.state = to
	listeners := make([]Listener, len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	if from == to {
		return nil
	}
	s.log.LogSession(to.String(), id, map[string]interface{}{
		"from":        from.String(),
		"description": s.sm.GetStateDescription(to),
	})
	for _, l := range listeners {
		l(id, from, to)
	}
	return nil
}
