package benchmark

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/quickfixgo/quickfix"

	"treasury-terminal/broker"
	"treasury-terminal/execution"
	"treasury-terminal/fix"
	"treasury-terminal/infrastructure/alert"
	"treasury-terminal/infrastructure/logger"
	"treasury-terminal/instrument"
	"treasury-terminal/internal/engine"
	"treasury-terminal/market"
	"treasury-terminal/router"
	"treasury-terminal/session"
)

// loggedOn 始终处于登录状态的会话视图
type loggedOn struct{}

func (loggedOn) State() session.State { return session.LoggedOn }
func (loggedOn) IsLoggedOn() bool     { return true }
func (loggedOn) CanSend() bool        { return true }
func (loggedOn) ID() string           { return "FIX.4.4:CLIENT->BROKER" }

// discardSender 丢弃所有消息的发送端
type discardSender struct{}

func (discardSender) Send(*fix.Message) error { return nil }

func payloads(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf(`{"clOrdID":"bench-%d","symbol":"10Y","side":"BUY","qty":10,"ordType":"LIMIT","price":96.265625,"timestamp":1772461800.5}`, i)
	}
	return out
}

// BenchmarkRouterHandleSimMode 未登录时的模拟处理路径
func BenchmarkRouterHandleSimMode(b *testing.B) {
	r := router.New(router.Config{}, broker.NewMemory(), instrument.Default(), session.New(nil), nil, logger.Nop(), nil)
	p := payloads(1)[0]
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = r.Handle(p)
	}
}

// BenchmarkRouterHandleSend 解码、翻译并交给发送端
func BenchmarkRouterHandleSend(b *testing.B) {
	r := router.New(router.Config{}, broker.NewMemory(), instrument.Default(), loggedOn{}, discardSender{}, logger.Nop(), nil)
	ps := payloads(1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if out := r.Handle(ps[i%len(ps)]); out != router.OutcomeSent {
			b.Fatalf("unexpected outcome %s", out)
		}
	}
}

// BenchmarkRouterQueueThroughput 经由内存底座的出队吞吐
func BenchmarkRouterQueueThroughput(b *testing.B) {
	mem := broker.NewMemory()
	r := router.New(router.Config{PollTimeout: 10 * time.Millisecond}, mem, instrument.Default(), loggedOn{}, discardSender{}, logger.Nop(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = r.Run(ctx) }()

	ps := payloads(1024)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = mem.Push(ctx, broker.KeyOrderQueue, ps[i%len(ps)])
	}
	for mem.Len(broker.KeyOrderQueue) > 0 {
		time.Sleep(time.Millisecond)
	}
	b.StopTimer()
}

// BenchmarkSimulatorStep 全部品种一次行情：游走、取整、发布
func BenchmarkSimulatorStep(b *testing.B) {
	opts := market.DefaultOptions()
	opts.Rand = market.NewRand(42)
	sim := market.NewSimulator(instrument.Default(), broker.NewMemory(), opts, logger.Nop(), nil)
	ctx := context.Background()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := sim.Step(ctx); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkEngineFromApp 执行回报入站路径：翻译、记录、写入底座
func BenchmarkEngineFromApp(b *testing.B) {
	mem := broker.NewMemory()
	eng, err := engine.New(engine.Config{}, engine.Components{
		Session:      session.New(nil),
		Ingestor:     execution.NewIngestor(mem, logger.Nop(), nil),
		AlertManager: alert.NewManager(nil, 5*time.Minute),
		Logger:       logger.Nop(),
	})
	if err != nil {
		b.Fatalf("Failed to create engine: %v", err)
	}
	msg := fix.NewMessage(fix.MsgTypeExecutionReport).
		Set(fix.TagClOrdID, "bench").
		Set(fix.TagExecType, "F").
		Set(fix.TagOrdStatus, "2").
		Set(fix.TagSymbol, "10Y").
		Set(fix.TagSide, "1").
		Set(fix.TagLastPx, "96.265625").
		Set(fix.TagLastQty, "10")

	sid := quickfix.SessionID{BeginString: quickfix.BeginStringFIX44, SenderCompID: "CLIENT", TargetCompID: "BROKER"}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		eng.FromApp(msg.Message, sid)
	}
}

// BenchmarkEngineGetStatistics 基准测试获取统计信息
func BenchmarkEngineGetStatistics(b *testing.B) {
	eng, err := engine.New(engine.Config{}, engine.Components{
		Session:  session.New(nil),
		Ingestor: execution.NewIngestor(broker.NewMemory(), nil, nil),
		Logger:   logger.Nop(),
	})
	if err != nil {
		b.Fatalf("Failed to create engine: %v", err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = eng.GetStatistics()
	}
}
