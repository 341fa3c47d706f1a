package fix

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"treasury-terminal/order"
)

// ErrTranslation 内部对象与协议字段之间缺少映射或转换失败。
var ErrTranslation = errors.New("fix translation failed")

var sideToWire = map[order.Side]string{
	order.SideBuy:  "1",
	order.SideSell: "2",
}

var sideFromWire = map[string]string{
	"1": string(order.SideBuy),
	"2": string(order.SideSell),
}

var ordTypeToWire = map[order.Type]string{
	order.TypeMarket: "1",
	order.TypeLimit:  "2",
}

func wireSide(s order.Side) (string, error) {
	v, ok := sideToWire[s]
	if !ok {
		return "", fmt.Errorf("%w: no wire value for side %q", ErrTranslation, s)
	}
	return v, nil
}

// NewOrderSingle 构造 35=D。TransactTime 取订单时间，缺失时取 now。
func NewOrderSingle(o order.Order, now time.Time) (*Message, error) {
	side, err := wireSide(o.Side)
	if err != nil {
		return nil, err
	}
	ordType, ok := ordTypeToWire[o.OrdType]
	if !ok {
		return nil, fmt.Errorf("%w: no wire value for ordType %q", ErrTranslation, o.OrdType)
	}
	if o.OrdType == order.TypeLimit && o.Price == nil {
		return nil, fmt.Errorf("%w: LIMIT order %s has no price", ErrTranslation, o.ClOrdID)
	}

	ts := o.Time()
	if ts.IsZero() {
		ts = now
	}

	m := NewMessage(MsgTypeNewOrderSingle)
	m.Set(TagClOrdID, o.ClOrdID)
	m.Set(TagSymbol, o.Symbol)
	m.Set(TagSide, side)
	m.Set(TagOrderQty, strconv.FormatInt(o.Qty, 10))
	m.Set(TagOrdType, ordType)
	m.Set(TagHandlInst, HandlInstAutomatedPrivate)
	if o.OrdType == order.TypeLimit {
		m.Set(TagPrice, strconv.FormatFloat(*o.Price, 'f', -1, 64))
	}
	m.Set(TagTransactTime, ts.UTC().Format(TimeFormat))
	return m, nil
}

// OrderCancelRequest 构造 35=F，TransactTime 为 now。
func OrderCancelRequest(c order.Cancel, now time.Time) (*Message, error) {
	side, err := wireSide(c.Side)
	if err != nil {
		return nil, err
	}
	m := NewMessage(MsgTypeOrderCancelRequest)
	m.Set(TagOrigClOrdID, c.OrigClOrdID)
	m.Set(TagClOrdID, c.ClOrdID)
	m.Set(TagSymbol, c.Symbol)
	m.Set(TagSide, side)
	m.Set(TagTransactTime, now.UTC().Format(TimeFormat))
	return m, nil
}

type valueKind int

const (
	kindString valueKind = iota
	kindFloat
)

// inboundField 入站解析表的一行。
type inboundField struct {
	tag  int
	key  string
	kind valueKind
}

// inboundFields 入站解析表，顺序固定。
var inboundFields = []inboundField{
	{TagMsgType, "msgType", kindString},
	{TagClOrdID, "clOrdID", kindString},
	{TagOrderID, "orderID", kindString},
	{TagExecID, "execID", kindString},
	{TagExecType, "execType", kindString},
	{TagOrdStatus, "ordStatus", kindString},
	{TagSymbol, "symbol", kindString},
	{TagSide, "side", kindString},
	{TagOrderQty, "qty", kindFloat},
	{TagPrice, "price", kindFloat},
	{TagLastPx, "lastPx", kindFloat},
	{TagLastQty, "lastQty", kindFloat},
	{TagCumQty, "cumQty", kindFloat},
	{TagLeavesQty, "leavesQty", kindFloat},
	{TagText, "text", kindString},
}

// Fields 把任意消息转成扁平字段表；缺失的 tag 不出现在结果中。
// side 从协议枚举还原为 BUY/SELL，未知值原样保留。
func Fields(m *Message) (map[string]interface{}, error) {
	out := make(map[string]interface{}, len(inboundFields))
	for _, f := range inboundFields {
		raw, ok := m.Get(f.tag)
		if !ok {
			continue
		}
		switch f.kind {
		case kindFloat:
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: tag %d (%s) value %q", ErrTranslation, f.tag, f.key, raw)
			}
			out[f.key] = v
		default:
			out[f.key] = raw
		}
	}
	if side, ok := out["side"].(string); ok {
		if human, ok := sideFromWire[side]; ok {
			out["side"] = human
		}
	}
	return out, nil
}

// ExecutionReport 把入站消息翻译为回报对象，Kind 由调用方标记。
func ExecutionReport(m *Message) (order.ExecutionReport, error) {
	fields, err := Fields(m)
	if err != nil {
		return order.ExecutionReport{}, err
	}
	var r order.ExecutionReport
	str := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}
	num := func(key string) *float64 {
		if v, ok := fields[key].(float64); ok {
			return &v
		}
		return nil
	}
	r.MsgType = str("msgType")
	r.ClOrdID = str("clOrdID")
	r.OrderID = str("orderID")
	r.ExecID = str("execID")
	r.ExecType = str("execType")
	r.OrdStatus = str("ordStatus")
	r.Symbol = str("symbol")
	r.Side = str("side")
	r.Qty = num("qty")
	r.Price = num("price")
	r.LastPx = num("lastPx")
	r.LastQty = num("lastQty")
	r.CumQty = num("cumQty")
	r.LeavesQty = num("leavesQty")
	r.Text = str("text")
	return r, nil
}
