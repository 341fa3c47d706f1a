// Package router 从订单队列取出载荷，会话在线时翻译并发送，否则走模拟模式。
package router

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/fix"
	"treasury-terminal/gateway"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/monitor/logschema"
	"treasury-terminal/order"
	"treasury-terminal/session"
)

// Outcome 单条载荷的路由结果。
type Outcome string

const (
	OutcomeSent            Outcome = monitor.OutcomeSent
	OutcomeSendFailed      Outcome = monitor.OutcomeSendFailed
	OutcomeSimulated       Outcome = monitor.OutcomeSimulated
	OutcomeMalformed       Outcome = monitor.OutcomeMalformed
	OutcomeTranslateFailed Outcome = monitor.OutcomeTranslateFailed
)

// DefaultPollTimeout 阻塞出队的最长等待。
const DefaultPollTimeout = time.Second

// DefaultOutageAlertAfter 底座持续不可用多久后发 CRITICAL 告警。
const DefaultOutageAlertAfter = 30 * time.Second

// Alerter 发送失败与底座中断的告警出口。
type Alerter interface {
	SendWarning(message string, fields map[string]interface{}) error
	SendCritical(message string, fields map[string]interface{}) error
}

// Config 路由配置。
type Config struct {
	PollTimeout      time.Duration
	Verbose          bool
	OutageAlertAfter time.Duration
}

// Router 单 goroutine 顺序处理队列，不重试、不排队。
type Router struct {
	b       broker.Broker
	symbols order.SymbolChecker
	sess    session.View
	sender  gateway.Sender
	log     *logger.Logger
	mon     *monitor.Monitor
	alerts  Alerter
	now     func() time.Time

	pollTimeout      time.Duration
	outageAlertAfter time.Duration
	verbose          atomic.Bool
}

// New sender 为 nil 表示未配置网关，所有订单走模拟模式。
func New(cfg Config, b broker.Broker, symbols order.SymbolChecker, sess session.View, sender gateway.Sender, log *logger.Logger, mon *monitor.Monitor) *Router {
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultPollTimeout
	}
	if cfg.OutageAlertAfter <= 0 {
		cfg.OutageAlertAfter = DefaultOutageAlertAfter
	}
	if log == nil {
		log = logger.Nop()
	}
	r := &Router{
		b:                b,
		symbols:          symbols,
		sess:             sess,
		sender:           sender,
		log:              log.Named("router"),
		mon:              mon,
		now:              time.Now,
		pollTimeout:      cfg.PollTimeout,
		outageAlertAfter: cfg.OutageAlertAfter,
	}
	r.verbose.Store(cfg.Verbose)
	return r
}

// SetAlerter 设置告警出口。
func (r *Router) SetAlerter(a Alerter) {
	r.alerts = a
}

// SetVerbose 运行时切换详细日志（配置热更新）。
func (r *Router) SetVerbose(v bool) {
	r.verbose.Store(v)
}

// Run 循环出队直到 ctx 结束。底座出错时从一个轮询周期开始指数退避，
// 持续中断超过 OutageAlertAfter 发一次 CRITICAL 告警。
func (r *Router) Run(ctx context.Context) error {
	r.log.Info("order router started", zap.String("queue", broker.KeyOrderQueue))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.pollTimeout
	bo.MaxInterval = 10 * r.pollTimeout
	bo.MaxElapsedTime = 0

	var outageSince time.Time
	alerted := false
	for {
		if ctx.Err() != nil {
			r.log.Info("order router stopped")
			return nil
		}
		payload, ok, err := r.b.BlockingPop(ctx, broker.KeyOrderQueue, r.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			if outageSince.IsZero() {
				outageSince = time.Now()
			}
			wait := bo.NextBackOff()
			r.mon.RecordBrokerError("pop")
			r.log.Error("order queue read failed", zap.Duration("backoff", wait), zap.Error(err))
			if down := time.Since(outageSince); !alerted && down >= r.outageAlertAfter {
				alerted = true
				r.alertCritical(down, err)
			}
			select {
			case <-ctx.Done():
			case <-time.After(wait):
			}
			continue
		}
		if !outageSince.IsZero() {
			r.log.Info("order queue recovered", zap.Duration("outage", time.Since(outageSince)))
			outageSince, alerted = time.Time{}, false
			bo.Reset()
		}
		if !ok {
			continue
		}
		r.Handle(payload)
	}
}

func (r *Router) alertCritical(down time.Duration, err error) {
	if r.alerts == nil {
		return
	}
	_ = r.alerts.SendCritical("order queue unavailable", map[string]interface{}{
		"queue":  broker.KeyOrderQueue,
		"outage": down.String(),
		"error":  err.Error(),
	})
}

// Handle 处理一条载荷，任何失败都只记录，不向上抛。
func (r *Router) Handle(payload string) Outcome {
	req, err := order.Decode([]byte(payload), r.symbols)
	if err != nil {
		r.mon.RecordOrderRouted(string(OutcomeMalformed))
		r.log.Error("Invalid order payload",
			zap.String("event", logschema.EventOrderEvent),
			zap.String("clOrdID", ""),
			zap.String("payload", payload),
			zap.Error(err),
		)
		return OutcomeMalformed
	}

	if r.sender == nil || r.sess == nil || !r.sess.CanSend() {
		return r.simulate(req, payload)
	}

	msg, err := r.translate(req)
	if err != nil {
		r.mon.RecordOrderRouted(string(OutcomeTranslateFailed))
		r.log.Error("order translation failed", append(r.fields(req, OutcomeTranslateFailed), zap.Error(err))...)
		r.log.LogOrder(string(OutcomeTranslateFailed), req.ClOrdID(), map[string]interface{}{"error": err.Error()})
		return OutcomeTranslateFailed
	}

	start := time.Now()
	err = r.sender.Send(msg)
	r.mon.RecordSendLatency(time.Since(start).Seconds())
	if err != nil {
		r.mon.RecordOrderRouted(string(OutcomeSendFailed))
		r.log.Warn(fmt.Sprintf("FIX SEND FAILED: %s", r.describe(req)),
			append(r.fields(req, OutcomeSendFailed), zap.Error(err))...)
		r.log.LogOrder(string(OutcomeSendFailed), req.ClOrdID(), map[string]interface{}{
			"session": r.sess.ID(),
			"error":   err.Error(),
		})
		if r.alerts != nil {
			_ = r.alerts.SendWarning("FIX send failed", map[string]interface{}{
				"clOrdID": req.ClOrdID(),
				"error":   err.Error(),
			})
		}
		return OutcomeSendFailed
	}

	r.mon.RecordOrderRouted(string(OutcomeSent))
	r.log.Info(fmt.Sprintf("FIX SENT: %s", r.describe(req)), r.fields(req, OutcomeSent)...)
	return OutcomeSent
}

func (r *Router) simulate(req order.Request, payload string) Outcome {
	r.mon.RecordOrderRouted(string(OutcomeSimulated))
	r.log.Info(fmt.Sprintf("SIM MODE: %s", r.describe(req)), r.fields(req, OutcomeSimulated)...)
	if r.verbose.Load() {
		r.log.Debug("SIM MODE payload", zap.String("payload", payload))
	}
	return OutcomeSimulated
}

func (r *Router) translate(req order.Request) (*fix.Message, error) {
	switch {
	case req.Cancel != nil:
		return fix.OrderCancelRequest(*req.Cancel, r.now())
	case req.Order != nil:
		return fix.NewOrderSingle(*req.Order, r.now())
	}
	return nil, errors.New("empty request")
}

// describe 形如 "BUY 10 10Y (ID: ...)" 或 "CANCEL ... (ID: ...)"。
func (r *Router) describe(req order.Request) string {
	if c := req.Cancel; c != nil {
		return fmt.Sprintf("CANCEL %s %s orig=%s (ID: %s)", c.Side, c.Symbol, c.OrigClOrdID, c.ClOrdID)
	}
	o := req.Order
	return fmt.Sprintf("%s %d %s (ID: %s)", o.Side, o.Qty, o.Symbol, o.ClOrdID)
}

func (r *Router) fields(req order.Request, outcome Outcome) []zap.Field {
	fields := []zap.Field{
		zap.String("event", logschema.EventOrderRouted),
		zap.String("outcome", string(outcome)),
		zap.String("kind", string(req.Kind)),
		zap.String("clOrdID", req.ClOrdID()),
	}
	if c := req.Cancel; c != nil {
		return append(fields,
			zap.String("symbol", c.Symbol),
			zap.String("side", string(c.Side)),
			zap.Int64("qty", 0),
			zap.String("origClOrdID", c.OrigClOrdID),
		)
	}
	o := req.Order
	fields = append(fields,
		zap.String("symbol", o.Symbol),
		zap.String("side", string(o.Side)),
		zap.Int64("qty", o.Qty),
		zap.String("ordType", string(o.OrdType)),
	)
	if o.Price != nil {
		fields = append(fields, zap.Float64("price", *o.Price))
	}
	return fields
}
