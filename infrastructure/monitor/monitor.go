package monitor

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 订单路由结果标签
const (
	OutcomeSent            = "sent"
	OutcomeSendFailed      = "send_failed"
	OutcomeSimulated       = "simulated"
	OutcomeMalformed       = "malformed"
	OutcomeTranslateFailed = "translate_failed"
)

// Monitor Prometheus监控指标收集器。方法对 nil 接收者安全，便于测试中省略。
type Monitor struct {
	registry *prometheus.Registry

	// 订单路由
	ordersRouted *prometheus.CounterVec
	sendLatency  prometheus.Histogram

	// 行情模拟
	ticksPublished prometheus.Counter
	ticksDropped   prometheus.Counter
	midPrice       *prometheus.GaugeVec

	// 回报
	execReports *prometheus.CounterVec

	// 会话与底座
	sessionState  prometheus.Gauge
	brokerErrors  *prometheus.CounterVec
	streamClients prometheus.Gauge
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "treasury",
		Subsystem: "engine",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Monitor{
		registry: reg,

		ordersRouted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "orders_routed_total",
			Help:      "路由处理的订单数（按结果）",
		}, []string{"outcome"}),
		sendLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "order_send_latency_seconds",
			Help:      "FIX 发送耗时分布（秒）",
			Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 1.0},
		}),

		ticksPublished: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "md_ticks_published_total",
			Help:      "已发布的行情批次数",
		}),
		ticksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "md_ticks_dropped_total",
			Help:      "底座不可用而丢弃的行情批次数",
		}),
		midPrice: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "md_mid_price",
			Help:      "最新中间价",
		}, []string{"symbol"}),

		execReports: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "execution_reports_total",
			Help:      "收到的执行回报数（按 ExecType）",
		}, []string{"exec_type"}),

		sessionState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "fix_session_state",
			Help:      "FIX 会话状态（0=Disconnected 1=LoggingOn 2=LoggedOn 3=LoggedOut）",
		}),
		brokerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "broker_errors_total",
			Help:      "底座操作失败次数",
		}, []string{"op"}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "stream_clients",
			Help:      "当前 websocket 行情订阅数",
		}),
	}
}

// RecordOrderRouted 记录一次路由结果
func (m *Monitor) RecordOrderRouted(outcome string) {
	if m == nil {
		return
	}
	m.ordersRouted.WithLabelValues(outcome).Inc()
}

func (m *Monitor) RecordSendLatency(seconds float64) {
	if m == nil {
		return
	}
	m.sendLatency.Observe(seconds)
}

func (m *Monitor) RecordTickPublished() {
	if m == nil {
		return
	}
	m.ticksPublished.Inc()
}

func (m *Monitor) RecordTickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

func (m *Monitor) UpdateMidPrice(symbol string, mid float64) {
	if m == nil {
		return
	}
	m.midPrice.WithLabelValues(symbol).Set(mid)
}

func (m *Monitor) RecordExecutionReport(execType string) {
	if m == nil {
		return
	}
	if execType == "" {
		execType = "unknown"
	}
	m.execReports.WithLabelValues(execType).Inc()
}

func (m *Monitor) UpdateSessionState(state int) {
	if m == nil {
		return
	}
	m.sessionState.Set(float64(state))
}

func (m *Monitor) RecordBrokerError(op string) {
	if m == nil {
		return
	}
	m.brokerErrors.WithLabelValues(op).Inc()
}

func (m *Monitor) StreamClientConnected() {
	if m == nil {
		return
	}
	m.streamClients.Inc()
}

func (m *Monitor) StreamClientDisconnected() {
	if m == nil {
		return
	}
	m.streamClients.Dec()
}

// Handler 返回 /metrics 处理器
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回底层注册表
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}

// OrdersRouted 路由结果计数器，供测试与诊断读取。
func (m *Monitor) OrdersRouted() *prometheus.CounterVec {
	return m.ordersRouted
}
