// Package alert 会话与下单链路的告警：同时写结构化日志和底座 system_logs。
package alert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"treasury-terminal/broker"
	"treasury-terminal/infrastructure/logger"
)

// 告警级别
const (
	LevelInfo     = "INFO"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

// Config 告警配置
type Config struct {
	Enabled          bool          `yaml:"enabled"`
	ThrottleInterval time.Duration `yaml:"throttleInterval"`
	// SystemLogs 为 true 时同时写入底座 system_logs 列表
	SystemLogs bool `yaml:"systemLogs"`
}

// DefaultConfig 默认开启，同一告警 30 秒内只发一次
func DefaultConfig() Config {
	return Config{
		Enabled:          true,
		ThrottleInterval: 30 * time.Second,
		SystemLogs:       true,
	}
}

// NewFromConfig 按配置组装通道；未启用时返回 nil，nil 管理器上的调用都是空操作。
func NewFromConfig(cfg Config, log *logger.Logger, b broker.Broker) *Manager {
	if !cfg.Enabled {
		return nil
	}
	channels := []Channel{NewZapChannel("log", log)}
	if cfg.SystemLogs && b != nil {
		channels = append(channels, NewBrokerChannel("system_logs", b))
	}
	return NewManager(channels, cfg.ThrottleInterval)
}

// Alert 一条告警
type Alert struct {
	Level     string
	Message   string
	Timestamp time.Time
	Fields    map[string]interface{}
}

// Channel 告警出口
type Channel interface {
	Send(alert Alert) error
	Name() string
}

// Manager 把告警扇出到全部通道。
// 同级别同消息在 window 内只发一次，会话抖动时不会刷屏。
type Manager struct {
	channels []Channel
	window   time.Duration
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewManager 创建告警管理器
func NewManager(channels []Channel, window time.Duration) *Manager {
	return &Manager{
		channels: channels,
		window:   window,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Channels 返回通道名称
func (m *Manager) Channels() []string {
	if m == nil {
		return nil
	}
	names := make([]string, 0, len(m.channels))
	for _, ch := range m.channels {
		names = append(names, ch.Name())
	}
	return names
}

func (m *Manager) admit(key string, at time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if last, ok := m.lastSent[key]; ok && at.Sub(last) < m.window {
		return false
	}
	m.lastSent[key] = at
	return true
}

// SendAlert 发送告警。被节流时返回 nil；只有全部通道都失败才返回错误。
func (m *Manager) SendAlert(a Alert) error {
	if m == nil {
		return nil
	}
	now := m.now()
	if a.Timestamp.IsZero() {
		a.Timestamp = now
	}
	if !m.admit(a.Level+":"+a.Message, now) {
		return nil
	}

	var errs []error
	for _, ch := range m.channels {
		if err := ch.Send(a); err != nil {
			errs = append(errs, fmt.Errorf("channel %s: %w", ch.Name(), err))
		}
	}
	if len(m.channels) > 0 && len(errs) == len(m.channels) {
		return errors.Join(errs...)
	}
	return nil
}

func (m *Manager) send(level, message string, fields map[string]interface{}) error {
	return m.SendAlert(Alert{Level: level, Message: message, Fields: fields})
}

// SendInfo 会话登录等常规事件
func (m *Manager) SendInfo(message string, fields map[string]interface{}) error {
	return m.send(LevelInfo, message, fields)
}

// SendWarning 有序登出、单笔发送失败
func (m *Manager) SendWarning(message string, fields map[string]interface{}) error {
	return m.send(LevelWarning, message, fields)
}

// SendError 会话意外断开
func (m *Manager) SendError(message string, fields map[string]interface{}) error {
	return m.send(LevelError, message, fields)
}

// SendCritical 订单队列持续不可用
func (m *Manager) SendCritical(message string, fields map[string]interface{}) error {
	return m.send(LevelCritical, message, fields)
}
