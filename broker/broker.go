// Package broker 是进程间共享的消息/键值底座（队列、最新值、发布订阅）。
package broker

import (
	"context"
	"errors"
	"time"
)

// 共享键名，与前端终端保持一致。
const (
	KeyOrderQueue       = "outgoing_orders"      // list: 生产者 LPUSH，路由 BRPOP
	KeyMarketData       = "market_data_stream"   // pub/sub: 行情广播
	KeyLatestPrices     = "market_data_snapshot" // string: 最新快照
	KeyExecutionReports = "execution_reports"    // list: 回报，最新在前
	KeyFIXStatus        = "fix_status"           // string: LOGGED_ON / LOGGED_OFF
	KeySystemLogs       = "system_logs"          // list: 告警/系统事件
)

var (
	// ErrUnavailable 底座无法连接。
	ErrUnavailable = errors.New("broker unavailable")
	// ErrClosed 客户端已关闭。
	ErrClosed = errors.New("broker closed")
)

// Broker 抽象底座能力，所有实现必须并发安全。
type Broker interface {
	// Push 从左侧压入列表。
	Push(ctx context.Context, key, value string) error
	// BlockingPop 从右侧弹出，最多等待 timeout；超时返回 ok=false。
	BlockingPop(ctx context.Context, key string, timeout time.Duration) (value string, ok bool, err error)
	// Range 返回列表 [start, stop] 区间（含端点，支持负索引）。
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Publish(ctx context.Context, channel, message string) error
	// Subscribe 订阅频道，ctx 结束或调用 cancel 后通道关闭。
	Subscribe(ctx context.Context, channel string) (<-chan string, func(), error)
	Ping(ctx context.Context) error
	Close() error
}
