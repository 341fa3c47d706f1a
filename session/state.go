package session

import (
	"fmt"
	"sort"
	"sync"
)

// State FIX 会话状态
type State int

const (
	Disconnected State = iota // 未连接
	LoggingOn                 // 已发送 Logon，等待确认
	LoggedOn                  // 已登录，可发送业务消息
	LoggedOut                 // 已登出
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case LoggingOn:
		return "LOGGING_ON"
	case LoggedOn:
		return "LOGGED_ON"
	case LoggedOut:
		return "LOGGED_OUT"
	default:
		return fmt.Sprintf("STATE(%d)", int(s))
	}
}

// StateTransition 状态转换
type StateTransition struct {
	From State
	To   State
}

// StateMachine 会话状态机
type StateMachine struct {
	transitions map[StateTransition]bool
	mu          sync.RWMutex
}

// NewStateMachine 创建新的状态机
func NewStateMachine() *StateMachine {
	sm := &StateMachine{
		transitions: make(map[StateTransition]bool),
	}
	sm.initializeTransitions()
	return sm
}

// initializeTransitions 初始化所有合法的状态转换
func (sm *StateMachine) initializeTransitions() {
	legalTransitions := []StateTransition{
		// 从DISCONNECTED可以转到
		{Disconnected, LoggingOn},

		// 从LOGGING_ON可以转到
		{LoggingOn, LoggedOn},
		{LoggingOn, LoggedOut},    // 对端拒绝登录
		{LoggingOn, Disconnected}, // 登录过程中断线

		// 从LOGGED_ON可以转到
		{LoggedOn, LoggedOut},
		{LoggedOn, Disconnected},

		// 从LOGGED_OUT可以转到
		{LoggedOut, Disconnected},
		{LoggedOut, LoggingOn}, // 同一连接上重新登录
	}

	for _, t := range legalTransitions {
		sm.transitions[t] = true
	}
}

// ValidateTransition 验证状态转换是否合法
func (sm *StateMachine) ValidateTransition(from, to State) error {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	// 相同状态允许（幂等性）
	if from == to {
		return nil
	}

	if !sm.transitions[StateTransition{From: from, To: to}] {
		return fmt.Errorf("illegal session transition: %s -> %s", from, to)
	}
	return nil
}

// AllowedTransitions 返回当前状态所有合法的目标状态，按状态值排序
func (sm *StateMachine) AllowedTransitions(current State) []State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	allowed := make([]State, 0)
	for transition := range sm.transitions {
		if transition.From == current {
			allowed = append(allowed, transition.To)
		}
	}
	sort.Slice(allowed, func(i, j int) bool { return allowed[i] < allowed[j] })
	return allowed
}

// CanSend 判断当前状态下是否可以发送业务消息
func (sm *StateMachine) CanSend(state State) bool {
	return state == LoggedOn
}

// GetStateDescription 获取状态描述
func (sm *StateMachine) GetStateDescription(state State) string {
	descriptions := map[State]string{
		Disconnected: "会话未连接",
		LoggingOn:    "登录中",
		LoggedOn:     "会话已登录",
		LoggedOut:    "会话已登出",
	}

	if desc, ok := descriptions[state]; ok {
		return desc
	}
	return "未知状态"
}
