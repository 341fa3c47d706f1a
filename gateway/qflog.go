package gateway

import (
	"fmt"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"

	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/logger"
)

// zapLogFactory 把 quickfix 的收发与事件日志接到 zap。报文走 debug，事件走 info。
type zapLogFactory struct {
	log *logger.Logger
}

func newLogFactory(log *logger.Logger) quickfix.LogFactory {
	return zapLogFactory{log: log}
}

func (f zapLogFactory) Create() (quickfix.Log, error) {
	return zapLog{log: f.log}, nil
}

func (f zapLogFactory) CreateSessionLog(sessionID quickfix.SessionID) (quickfix.Log, error) {
	return zapLog{log: f.log.WithFields(map[string]interface{}{"session": sessionID.String()})}, nil
}

type zapLog struct {
	log *logger.Logger
}

func (l zapLog) OnIncoming(raw []byte) {
	l.log.Debug("FIX IN", zap.String("msg", fix.Readable(string(raw))))
}

func (l zapLog) OnOutgoing(raw []byte) {
	l.log.Debug("FIX OUT", zap.String("msg", fix.Readable(string(raw))))
}

func (l zapLog) OnEvent(text string) {
	l.log.Info(text)
}

func (l zapLog) OnEventf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}
