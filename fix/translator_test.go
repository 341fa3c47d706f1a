package fix

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"treasury-terminal/order"
)

var fixedNow = time.Date(2026, 3, 2, 14, 5, 9, 0, time.UTC)

func get(t *testing.T, m *Message, tag int) string {
	t.Helper()
	v, ok := m.Get(tag)
	require.True(t, ok, "tag %d missing", tag)
	return v
}

func TestNewOrderSingleMarket(t *testing.T) {
	o := order.Order{ClOrdID: "c1", Symbol: "10Y", Side: order.SideBuy, Qty: 10, OrdType: order.TypeMarket, Timestamp: 1772460309}
	m, err := NewOrderSingle(o, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, MsgTypeNewOrderSingle, m.MsgType())
	assert.Equal(t, "c1", get(t, m, TagClOrdID))
	assert.Equal(t, "10Y", get(t, m, TagSymbol))
	assert.Equal(t, "1", get(t, m, TagSide))
	assert.Equal(t, "10", get(t, m, TagOrderQty))
	assert.Equal(t, "1", get(t, m, TagOrdType))
	assert.Equal(t, HandlInstAutomatedPrivate, get(t, m, TagHandlInst))
	assert.Equal(t, time.Unix(1772460309, 0).UTC().Format(TimeFormat), get(t, m, TagTransactTime))
	assert.False(t, m.Has(TagPrice), "market orders carry no price")
}

func TestNewOrderSingleLimit(t *testing.T) {
	price := 110.515625
	o := order.Order{ClOrdID: "c2", Symbol: "TYH6", Side: order.SideSell, Qty: 3, OrdType: order.TypeLimit, Price: &price}
	m, err := NewOrderSingle(o, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, "2", get(t, m, TagSide))
	assert.Equal(t, "2", get(t, m, TagOrdType))
	assert.Equal(t, "110.515625", get(t, m, TagPrice))
	// 缺少时间戳时取 now
	assert.Equal(t, "20260302-14:05:09", get(t, m, TagTransactTime))
}

func TestNewOrderSingleTranslationErrors(t *testing.T) {
	tests := []struct {
		name string
		o    order.Order
	}{
		{"未知方向", order.Order{ClOrdID: "c", Symbol: "10Y", Side: "HOLD", Qty: 1, OrdType: order.TypeMarket}},
		{"未知类型", order.Order{ClOrdID: "c", Symbol: "10Y", Side: order.SideBuy, Qty: 1, OrdType: "STOP"}},
		{"限价缺价格", order.Order{ClOrdID: "c", Symbol: "10Y", Side: order.SideBuy, Qty: 1, OrdType: order.TypeLimit}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrderSingle(tt.o, fixedNow)
			assert.ErrorIs(t, err, ErrTranslation)
		})
	}
}

func TestOrderCancelRequest(t *testing.T) {
	c := order.Cancel{OrigClOrdID: "c1", ClOrdID: "c1-x", Symbol: "10Y", Side: order.SideSell}
	m, err := OrderCancelRequest(c, fixedNow)
	require.NoError(t, err)

	assert.Equal(t, MsgTypeOrderCancelRequest, m.MsgType())
	assert.Equal(t, "c1", get(t, m, TagOrigClOrdID))
	assert.Equal(t, "c1-x", get(t, m, TagClOrdID))
	assert.Equal(t, "2", get(t, m, TagSide))
	assert.Equal(t, "20260302-14:05:09", get(t, m, TagTransactTime))

	_, err = OrderCancelRequest(order.Cancel{Side: "X"}, fixedNow)
	assert.ErrorIs(t, err, ErrTranslation)
}

func TestExecutionReportParsing(t *testing.T) {
	m := NewMessage(MsgTypeExecutionReport)
	m.Set(TagOrderID, "O-1").Set(TagClOrdID, "c1").Set(TagExecID, "E-1")
	m.Set(TagExecType, "F").Set(TagOrdStatus, "2").Set(TagSymbol, "10Y").Set(TagSide, "2")
	m.Set(TagOrderQty, "10").Set(TagLastPx, "96.265625").Set(TagLastQty, "10")
	m.Set(TagCumQty, "10").Set(TagLeavesQty, "0")

	// 经过编码/解码，模拟真实入站
	parsed, err := Parse(m.Bytes())
	require.NoError(t, err)

	r, err := ExecutionReport(parsed)
	require.NoError(t, err)
	assert.Equal(t, "8", r.MsgType)
	assert.Equal(t, "SELL", r.Side)
	assert.Equal(t, "O-1", r.OrderID)
	require.NotNil(t, r.LastPx)
	assert.Equal(t, 96.265625, *r.LastPx)
	require.NotNil(t, r.LeavesQty)
	assert.Equal(t, 0.0, *r.LeavesQty)
	assert.Nil(t, r.Price, "absent price must stay absent")
	assert.Empty(t, r.Text)
}

func TestFieldsOmitsAbsentTags(t *testing.T) {
	m := NewMessage(MsgTypeExecutionReport).Set(TagExecID, "E-2").Set(TagText, "rejected: closed")
	fields, err := Fields(m)
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"msgType": "8", "execID": "E-2", "text": "rejected: closed"}, fields)
}

func TestFieldsKeepsUnknownSide(t *testing.T) {
	fields, err := Fields(NewMessage(MsgTypeExecutionReport).Set(TagSide, "5"))
	require.NoError(t, err)
	assert.Equal(t, "5", fields["side"])
}

func TestFieldsRejectsBadNumber(t *testing.T) {
	_, err := Fields(NewMessage(MsgTypeExecutionReport).Set(TagCumQty, "ten"))
	assert.ErrorIs(t, err, ErrTranslation)
}

// 出站再入站应还原 symbol、side、qty；价格仅在限价单中出现。
func TestOrderRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		side := rapid.SampledFrom([]order.Side{order.SideBuy, order.SideSell}).Draw(t, "side")
		symbol := rapid.SampledFrom([]string{"2Y", "10Y", "TYH6", "SR3Z6"}).Draw(t, "symbol")
		qty := rapid.Int64Range(1, 1_000_000).Draw(t, "qty")
		limit := rapid.Bool().Draw(t, "limit")

		o := order.Order{ClOrdID: "rt", Symbol: symbol, Side: side, Qty: qty, OrdType: order.TypeMarket}
		if limit {
			p := float64(rapid.IntRange(90_000, 130_000).Draw(t, "price")) / 1000
			o.OrdType = order.TypeLimit
			o.Price = &p
		}

		m, err := NewOrderSingle(o, fixedNow)
		if err != nil {
			t.Fatalf("outbound: %v", err)
		}
		parsed, err := Parse(m.Bytes())
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		r, err := ExecutionReport(parsed)
		if err != nil {
			t.Fatalf("inbound: %v", err)
		}

		if r.Symbol != symbol || r.Side != string(side) {
			t.Fatalf("symbol/side mismatch: %+v", r)
		}
		if r.Qty == nil || *r.Qty != float64(qty) {
			t.Fatalf("qty mismatch: %v", r.Qty)
		}
		if limit {
			if r.Price == nil || *r.Price != *o.Price {
				t.Fatalf("price mismatch: %v vs %v", r.Price, *o.Price)
			}
		} else if r.Price != nil {
			t.Fatalf("market order produced price %v", *r.Price)
		}
	})
}
