package benchmark

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"treasury-terminal/fix"
	"treasury-terminal/instrument"
	"treasury-terminal/order"
)

// BenchmarkFormat 各报价惯例的显示格式化
func BenchmarkFormat(b *testing.B) {
	price := decimal.RequireFromString("102.203125")
	for _, c := range []instrument.Convention{
		instrument.Decimal3dp,
		instrument.Whole32nds,
		instrument.Half32nds,
		instrument.Eighth32nds,
	} {
		b.Run(c.String(), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				_ = instrument.Format(price, c)
			}
		})
	}
}

// BenchmarkRegistryFormat 经注册表按品种格式化（float 入参）
func BenchmarkRegistryFormat(b *testing.B) {
	reg := instrument.Default()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_ = reg.Format(96.265625, "10Y")
	}
}

// BenchmarkNewOrderSingle 订单翻译并序列化为线路格式
func BenchmarkNewOrderSingle(b *testing.B) {
	px := 96.265625
	o := order.NewOrder("10Y", order.SideBuy, 10, order.TypeLimit, &px, time.Now())
	now := time.Now()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		m, err := fix.NewOrderSingle(o, now)
		if err != nil {
			b.Fatal(err)
		}
		_ = m.Bytes()
	}
}

// BenchmarkParseExecutionReport 入站解析与回报翻译
func BenchmarkParseExecutionReport(b *testing.B) {
	raw := fix.NewMessage(fix.MsgTypeExecutionReport).
		Set(fix.TagSenderCompID, "BROKER").
		Set(fix.TagTargetCompID, "CLIENT").
		Set(fix.TagMsgSeqNum, "7").
		Set(fix.TagSendingTime, "20260302-14:30:00.000").
		Set(fix.TagClOrdID, "c-1").
		Set(fix.TagOrderID, "ORD-1").
		Set(fix.TagExecID, "EXE-1").
		Set(fix.TagExecType, "F").
		Set(fix.TagOrdStatus, "2").
		Set(fix.TagSymbol, "10Y").
		Set(fix.TagSide, "1").
		Set(fix.TagOrderQty, "10").
		Set(fix.TagLastPx, "96.265625").
		Set(fix.TagLastQty, "10").
		Set(fix.TagCumQty, "10").
		Set(fix.TagLeavesQty, "0").
		Bytes()

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m, err := fix.Parse(raw)
		if err != nil {
			b.Fatal(err)
		}
		if _, err := fix.ExecutionReport(m); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkDecodePayload 队列载荷解码与校验
func BenchmarkDecodePayload(b *testing.B) {
	reg := instrument.Default()
	data := []byte(`{"clOrdID":"bench","symbol":"10Y","side":"BUY","qty":10,"ordType":"MARKET","timestamp":1772461800.5}`)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, err := order.Decode(data, reg); err != nil {
			b.Fatal(err)
		}
	}
}
