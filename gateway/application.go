package gateway

import (
	"errors"

	"treasury-terminal/fix"
)

var (
	// ErrNotLoggedOn 会话未登录时无法发送。
	ErrNotLoggedOn = errors.New("fix session not logged on")
	// ErrAdminMessage 会话层消息由 quickfix 会话自己管理，不经 Send 发出。
	ErrAdminMessage = errors.New("session-level message cannot be sent by the application")
)

// Sender 路由使用的发送能力。
type Sender interface {
	Send(msg *fix.Message) error
}
