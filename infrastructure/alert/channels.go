package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/infrastructure/logger"
)

// ZapChannel 把告警写入结构化日志
type ZapChannel struct {
	log  *logger.Logger
	name string
}

// NewZapChannel 创建日志告警通道
func NewZapChannel(name string, log *logger.Logger) *ZapChannel {
	if log == nil {
		log = logger.Nop()
	}
	return &ZapChannel{log: log.Named("alert"), name: name}
}

// Send 按级别写日志
func (c *ZapChannel) Send(a Alert) error {
	fields := []zap.Field{
		zap.String("level", a.Level),
		zap.Time("alertTime", a.Timestamp),
	}
	for k, v := range a.Fields {
		fields = append(fields, zap.Any(k, v))
	}
	switch a.Level {
	case LevelCritical, LevelError:
		c.log.Error(a.Message, fields...)
	case LevelWarning:
		c.log.Warn(a.Message, fields...)
	default:
		c.log.Info(a.Message, fields...)
	}
	return nil
}

// Name 返回通道名称
func (c *ZapChannel) Name() string {
	return c.name
}

// BrokerChannel 把告警追加到 system_logs 列表，供终端展示
type BrokerChannel struct {
	b       broker.Broker
	name    string
	timeout time.Duration
}

// NewBrokerChannel 创建底座告警通道
func NewBrokerChannel(name string, b broker.Broker) *BrokerChannel {
	return &BrokerChannel{b: b, name: name, timeout: 2 * time.Second}
}

// systemLogEntry system_logs 中的一条
type systemLogEntry struct {
	Level   string                 `json:"level"`
	Message string                 `json:"message"`
	Ts      string                 `json:"ts"`
	Fields  map[string]interface{} `json:"fields,omitempty"`
}

// Send 序列化后 LPUSH
func (c *BrokerChannel) Send(a Alert) error {
	payload, err := json.Marshal(systemLogEntry{
		Level:   a.Level,
		Message: a.Message,
		Ts:      a.Timestamp.UTC().Format(time.RFC3339Nano),
		Fields:  a.Fields,
	})
	if err != nil {
		return fmt.Errorf("encode alert: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	return c.b.Push(ctx, broker.KeySystemLogs, string(payload))
}

// Name 返回通道名称
func (c *BrokerChannel) Name() string {
	return c.name
}

// MockChannel 模拟告警通道（用于测试）
type MockChannel struct {
	name      string
	alerts    []Alert
	shouldErr bool
	mu        sync.Mutex
}

// NewMockChannel 创建模拟告警通道
func NewMockChannel(name string) *MockChannel {
	return &MockChannel{
		name:   name,
		alerts: make([]Alert, 0),
	}
}

// Send 记录告警（用于测试验证）
func (c *MockChannel) Send(alert Alert) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.shouldErr {
		return fmt.Errorf("mock error")
	}
	c.alerts = append(c.alerts, alert)
	return nil
}

// Name 返回通道名称
func (c *MockChannel) Name() string {
	return c.name
}

// GetAlerts 获取所有接收到的告警
func (c *MockChannel) GetAlerts() []Alert {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Alert, len(c.alerts))
	copy(out, c.alerts)
	return out
}

// SetShouldError 设置是否返回错误
func (c *MockChannel) SetShouldError(shouldErr bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shouldErr = shouldErr
}

// Count 返回接收到的告警数量
func (c *MockChannel) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.alerts)
}
