package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/infrastructure/logger"
)

// fix_status 键的取值
const (
	StatusLoggedOn  = "LOGGED_ON"
	StatusLoggedOff = "LOGGED_OFF"
)

// StatusPublisher 把登录状态写入共享键，供终端展示。
func StatusPublisher(b broker.Broker, log *logger.Logger) Listener {
	return func(id string, from, to State) {
		var status string
		switch {
		case to == LoggedOn:
			status = StatusLoggedOn
		case to == LoggedOut, to == Disconnected && from == LoggedOn:
			status = StatusLoggedOff
		default:
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := b.Set(ctx, broker.KeyFIXStatus, status); err != nil {
			log.Warn("publish fix status failed", zap.String("status", status), zap.Error(err))
		}
	}
}

// StateGauge 把状态同步到监控指标。
func StateGauge(set func(int)) Listener {
	return func(_ string, _, to State) {
		set(int(to))
	}
}
