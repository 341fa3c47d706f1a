package market

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/infrastructure/monitor"
	"treasury-terminal/instrument"
)

// 快照数值精度
const pricePlaces = 5

// MinHalfSpread 半价差下限。买卖价各自按 5 位小数取整，半价差不小于一个最小单位才能保证 bid < ask。
const MinHalfSpread = 0.00001

// Params 单品种随机游走参数。
type Params struct {
	WalkStep   float64 `yaml:"walkStep"`   // 每 tick 公允价扰动上限
	HalfSpread float64 `yaml:"halfSpread"` // 买卖价相对公允价的半价差
}

// DefaultParams 各品种默认参数。
var DefaultParams = map[string]Params{
	"2Y":    {WalkStep: 0.010, HalfSpread: 0.005},
	"3Y":    {WalkStep: 0.010, HalfSpread: 0.005},
	"5Y":    {WalkStep: 0.015, HalfSpread: 0.008},
	"10Y":   {WalkStep: 0.015, HalfSpread: 0.010},
	"30Y":   {WalkStep: 0.020, HalfSpread: 0.015},
	"TUH6":  {WalkStep: 0.020, HalfSpread: 0.008},
	"TYH6":  {WalkStep: 0.025, HalfSpread: 0.010},
	"USH6":  {WalkStep: 0.030, HalfSpread: 0.015},
	"SR3H6": {WalkStep: 0.010, HalfSpread: 0.005},
	"SR3Z6": {WalkStep: 0.010, HalfSpread: 0.005},
}

// fallbackParams 未配置品种使用的参数。
var fallbackParams = Params{WalkStep: 0.01, HalfSpread: 0.005}

// OpenMode 开盘价取值方式。
type OpenMode int

const (
	// OpenFirstMid 以首个发布的中间价作为开盘价。
	OpenFirstMid OpenMode = iota
	// OpenBase 以品种基准价作为开盘价。
	OpenBase
)

// ParseOpenMode 解析配置值 "firstMid" / "base"。
func ParseOpenMode(s string) (OpenMode, error) {
	switch s {
	case "", "firstMid", "first_mid":
		return OpenFirstMid, nil
	case "base":
		return OpenBase, nil
	}
	return OpenFirstMid, fmt.Errorf("unknown session open mode %q", s)
}

// Options 模拟器选项。
type Options struct {
	Interval    time.Duration
	SessionOpen OpenMode
	// SeedAverage 为 true 时把基准价作为均价的第一个样本。
	SeedAverage bool
	Overrides   map[string]Params
	Rand        *rand.Rand
	Now         func() time.Time
}

// DefaultOptions 1 秒节奏，均价带基准价样本。
func DefaultOptions() Options {
	return Options{
		Interval:    time.Second,
		SessionOpen: OpenFirstMid,
		SeedAverage: true,
	}
}

// NewRand 固定种子的随机源。
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

type instrumentState struct {
	id     string
	params Params
	fair   float64
	open   decimal.Decimal
	opened bool
	sum    decimal.Decimal
	count  int64
}

// Simulator 为每个品种生成随机游走行情，写入最新快照键并广播。
// 状态只在 Run 所在的 goroutine 中修改。
type Simulator struct {
	states []*instrumentState
	b      broker.Broker
	opts   Options
	rnd    *rand.Rand
	log    *logger.Logger
	mon    *monitor.Monitor
}

// NewSimulator 按注册表顺序建立每个品种的初始状态。
func NewSimulator(reg *instrument.Registry, b broker.Broker, opts Options, log *logger.Logger, mon *monitor.Monitor) *Simulator {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	rnd := opts.Rand
	if rnd == nil {
		rnd = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if log == nil {
		log = logger.Nop()
	}

	s := &Simulator{b: b, opts: opts, rnd: rnd, log: log.Named("market"), mon: mon}
	for _, inst := range reg.All() {
		p, ok := opts.Overrides[inst.ID]
		if !ok {
			p, ok = DefaultParams[inst.ID]
		}
		if !ok {
			p = fallbackParams
		}
		if p.HalfSpread < MinHalfSpread {
			s.log.Warn("half spread below minimum, clamped",
				zap.String("symbol", inst.ID),
				zap.Float64("halfSpread", p.HalfSpread),
				zap.Float64("min", MinHalfSpread))
			p.HalfSpread = MinHalfSpread
		}
		st := &instrumentState{id: inst.ID, params: p, fair: inst.BasePrice}
		if opts.SessionOpen == OpenBase {
			st.open = round5(decimal.NewFromFloat(inst.BasePrice))
			st.opened = true
		}
		if opts.SeedAverage {
			st.sum = decimal.NewFromFloat(inst.BasePrice)
			st.count = 1
		}
		s.states = append(s.states, st)
	}
	return s
}

func round5(d decimal.Decimal) decimal.Decimal {
	return d.Round(pricePlaces)
}

// Tick 推进一步并返回本次快照，不做任何 I/O。
func (s *Simulator) Tick() Batch {
	ts := unixFloat(s.opts.Now())
	batch := make(Batch, len(s.states))
	for _, st := range s.states {
		st.fair += (s.rnd.Float64()*2 - 1) * st.params.WalkStep

		fair := decimal.NewFromFloat(st.fair)
		hs := decimal.NewFromFloat(st.params.HalfSpread)
		bid := round5(fair.Sub(hs))
		ask := round5(fair.Add(hs))
		mid := round5(bid.Add(ask).Div(decimal.NewFromInt(2)))

		if !st.opened {
			st.open = mid
			st.opened = true
		}
		st.sum = st.sum.Add(mid)
		st.count++
		avg := round5(st.sum.Div(decimal.NewFromInt(st.count)))

		batch[st.id] = Quote{
			Bid:    bid.InexactFloat64(),
			Ask:    ask.InexactFloat64(),
			Mid:    mid.InexactFloat64(),
			Change: round5(mid.Sub(st.open)).InexactFloat64(),
			VWAP:   avg.InexactFloat64(),
			Ts:     ts,
		}
	}
	return batch
}

// Publish 写最新快照键并广播。
func (s *Simulator) Publish(ctx context.Context, b Batch) error {
	payload, err := b.Encode()
	if err != nil {
		return err
	}
	if err := s.b.Set(ctx, broker.KeyLatestPrices, payload); err != nil {
		s.mon.RecordBrokerError("set")
		return fmt.Errorf("store snapshot: %w", err)
	}
	if err := s.b.Publish(ctx, broker.KeyMarketData, payload); err != nil {
		s.mon.RecordBrokerError("publish")
		return fmt.Errorf("broadcast snapshot: %w", err)
	}
	return nil
}

// Step 一次 tick；底座不可用时丢弃本次快照，状态不回滚。
func (s *Simulator) Step(ctx context.Context) (Batch, error) {
	b := s.Tick()
	if err := s.Publish(ctx, b); err != nil {
		s.mon.RecordTickDropped()
		s.log.Warn("market data tick dropped", zap.Error(err))
		return b, err
	}
	s.mon.RecordTickPublished()
	for id, q := range b {
		s.mon.UpdateMidPrice(id, q.Mid)
	}
	return b, nil
}

// Run 按固定节奏运行直到 ctx 结束。
func (s *Simulator) Run(ctx context.Context) error {
	s.log.Info("market data simulator started",
		zap.Int("instruments", len(s.states)),
		zap.Duration("interval", s.opts.Interval),
	)
	ticker := time.NewTicker(s.opts.Interval)
	defer ticker.Stop()
	for {
		_, _ = s.Step(ctx)
		select {
		case <-ctx.Done():
			s.log.Info("market data simulator stopped")
			return nil
		case <-ticker.C:
		}
	}
}
