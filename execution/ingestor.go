// Package execution 接收网关送达的业务消息，把执行回报翻译后写入回报列表。
package execution

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/monitor/logschema"
	"treasury-terminal/order"
)

// Ingestor 无去重、无关联，每条回报原样追加。
type Ingestor struct {
	b       broker.Broker
	log     *logger.Logger
	mon     *monitor.Monitor
	timeout time.Duration
}

func NewIngestor(b broker.Broker, log *logger.Logger, mon *monitor.Monitor) *Ingestor {
	if log == nil {
		log = logger.Nop()
	}
	return &Ingestor{
		b:       b,
		log:     log.Named("execution"),
		mon:     mon,
		timeout: 2 * time.Second,
	}
}

// FromApp 网关回调。执行回报写入 execution_reports（最新在前），其它类型只记录。
func (in *Ingestor) FromApp(msg *fix.Message, sessionID string) {
	if msg.MsgType() != fix.MsgTypeExecutionReport {
		in.log.Info("App IN",
			zap.String("event", logschema.EventAppMessage),
			zap.String("session", sessionID),
			zap.String("msgType", msg.MsgType()),
			zap.String("msg", msg.String()),
		)
		return
	}
	if _, err := in.Ingest(context.Background(), msg, sessionID); err != nil {
		in.log.Error("execution report dropped",
			zap.String("session", sessionID),
			zap.String("msg", msg.String()),
			zap.Error(err),
		)
	}
}

// Ingest 翻译、标记、记录并写入一条执行回报。
func (in *Ingestor) Ingest(ctx context.Context, msg *fix.Message, sessionID string) (order.ExecutionReport, error) {
	report, err := fix.ExecutionReport(msg)
	if err != nil {
		return report, err
	}
	report.Kind = order.ReportKindExecution

	in.mon.RecordExecutionReport(report.ExecType)
	in.log.Info("Execution Report",
		zap.String("event", logschema.EventExecutionReport),
		zap.String("session", sessionID),
		zap.String("clOrdID", report.ClOrdID),
		zap.String("orderID", report.OrderID),
		zap.String("execType", report.ExecType),
		zap.String("ordStatus", report.OrdStatus),
		zap.String("symbol", report.Symbol),
		zap.String("side", report.Side),
	)

	payload, err := report.Encode()
	if err != nil {
		return report, err
	}
	ctx, cancel := context.WithTimeout(ctx, in.timeout)
	defer cancel()
	if err := in.b.Push(ctx, broker.KeyExecutionReports, payload); err != nil {
		in.mon.RecordBrokerError("push")
		return report, fmt.Errorf("push execution report: %w", err)
	}
	return report, nil
}

// Recent 读取最近 n 条回报，最新在前；无法解析的条目跳过。
func Recent(ctx context.Context, b broker.Broker, n int64) ([]order.ExecutionReport, error) {
	if n <= 0 {
		n = 20
	}
	raws, err := b.Range(ctx, broker.KeyExecutionReports, 0, n-1)
	if err != nil {
		return nil, fmt.Errorf("read execution reports: %w", err)
	}
	out := make([]order.ExecutionReport, 0, len(raws))
	for _, raw := range raws {
		r, err := order.DecodeReport([]byte(raw))
		if err != nil {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}
