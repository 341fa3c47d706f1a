package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrMalformed 队列载荷不是合法的 JSON 对象或字段类型不对。
	ErrMalformed = errors.New("malformed order payload")
	// ErrInvalid 结构合法但内容不满足约束（数量、价格、合约等）。
	ErrInvalid = errors.New("invalid order payload")
)

// Side 买卖方向。
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ParseSide 大小写不敏感地解析方向。
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case SideBuy:
		return SideBuy, nil
	case SideSell:
		return SideSell, nil
	}
	return "", fmt.Errorf("%w: side %q", ErrInvalid, s)
}

// Type 订单类型。
type Type string

const (
	TypeMarket Type = "MARKET"
	TypeLimit  Type = "LIMIT"
)

func ParseType(s string) (Type, error) {
	switch Type(strings.ToUpper(strings.TrimSpace(s))) {
	case TypeMarket:
		return TypeMarket, nil
	case TypeLimit:
		return TypeLimit, nil
	}
	return "", fmt.Errorf("%w: ordType %q", ErrInvalid, s)
}

// Kind 队列载荷类别，缺省为 order。
type Kind string

const (
	KindOrder  Kind = "order"
	KindCancel Kind = "cancel"
)

// Order 新单请求，生命周期：提交 -> 入队 -> 路由出队一次 -> 发送或模拟。
type Order struct {
	ClOrdID   string   `json:"clOrdID"`
	Symbol    string   `json:"symbol"`
	Side      Side     `json:"side"`
	Qty       int64    `json:"qty"`
	OrdType   Type     `json:"ordType"`
	Price     *float64 `json:"price,omitempty"`
	Timestamp float64  `json:"timestamp"`
}

// Time 返回提交时间；缺失时为零值。
func (o Order) Time() time.Time {
	return unixFloat(o.Timestamp)
}

// Cancel 撤单请求。
type Cancel struct {
	Kind        Kind    `json:"kind"`
	OrigClOrdID string  `json:"origClOrdID"`
	ClOrdID     string  `json:"clOrdID"`
	Symbol      string  `json:"symbol"`
	Side        Side    `json:"side"`
	Timestamp   float64 `json:"timestamp,omitempty"`
}

// Request 出队后的强类型载荷，Order 与 Cancel 二选一。
type Request struct {
	Kind   Kind
	Order  *Order
	Cancel *Cancel
}

// ClOrdID 返回请求的客户端订单号。
func (r Request) ClOrdID() string {
	if r.Cancel != nil {
		return r.Cancel.ClOrdID
	}
	if r.Order != nil {
		return r.Order.ClOrdID
	}
	return ""
}

// SymbolChecker 合约存在性校验，通常由 instrument.Registry 提供。
type SymbolChecker interface {
	Has(id string) bool
}

// NewClOrdID 生成客户端订单号。
func NewClOrdID() string {
	return uuid.NewString()
}

// NewOrder 构造新单；给定价格时强制为 LIMIT。
func NewOrder(symbol string, side Side, qty int64, ordType Type, price *float64, now time.Time) Order {
	if price != nil {
		ordType = TypeLimit
	}
	return Order{
		ClOrdID:   NewClOrdID(),
		Symbol:    symbol,
		Side:      side,
		Qty:       qty,
		OrdType:   ordType,
		Price:     price,
		Timestamp: toUnixFloat(now),
	}
}

// NewCancel 构造撤单请求，生成新的 ClOrdID。
func NewCancel(origClOrdID, symbol string, side Side, now time.Time) Cancel {
	return Cancel{
		Kind:        KindCancel,
		OrigClOrdID: origClOrdID,
		ClOrdID:     NewClOrdID(),
		Symbol:      symbol,
		Side:        side,
		Timestamp:   toUnixFloat(now),
	}
}

// EncodeOrder 序列化为队列载荷（与前端终端格式一致，不带 kind）。
func EncodeOrder(o Order) (string, error) {
	raw, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("encode order: %w", err)
	}
	return string(raw), nil
}

func EncodeCancel(c Cancel) (string, error) {
	c.Kind = KindCancel
	raw, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encode cancel: %w", err)
	}
	return string(raw), nil
}

// wire 接收任意载荷的宽松结构，便于区分类型错误与缺字段。
type wire struct {
	Kind        string   `json:"kind"`
	ClOrdID     string   `json:"clOrdID"`
	OrigClOrdID string   `json:"origClOrdID"`
	Symbol      string   `json:"symbol"`
	Side        string   `json:"side"`
	Qty         *float64 `json:"qty"`
	OrdType     string   `json:"ordType"`
	Price       *float64 `json:"price"`
	Timestamp   *float64 `json:"timestamp"`
}

// Decode 在传输边界把载荷解码为强类型请求。
// 方向与订单类型按原样保留，映射失败由翻译层报告。
func Decode(data []byte, symbols SymbolChecker) (Request, error) {
	var w wire
	if err := json.Unmarshal(data, &w); err != nil {
		return Request{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.ClOrdID == "" {
		return Request{}, fmt.Errorf("%w: clOrdID is required", ErrInvalid)
	}
	if w.Symbol == "" {
		return Request{}, fmt.Errorf("%w: symbol is required", ErrInvalid)
	}
	if symbols != nil && !symbols.Has(w.Symbol) {
		return Request{}, fmt.Errorf("%w: unknown symbol %s", ErrInvalid, w.Symbol)
	}
	if w.Side == "" {
		return Request{}, fmt.Errorf("%w: side is required", ErrInvalid)
	}
	side := Side(strings.ToUpper(w.Side))

	var ts float64
	if w.Timestamp != nil {
		ts = *w.Timestamp
	}

	switch Kind(strings.ToLower(w.Kind)) {
	case "", KindOrder:
	case KindCancel:
		if w.OrigClOrdID == "" {
			return Request{}, fmt.Errorf("%w: origClOrdID is required for cancel", ErrInvalid)
		}
		return Request{Kind: KindCancel, Cancel: &Cancel{
			Kind:        KindCancel,
			OrigClOrdID: w.OrigClOrdID,
			ClOrdID:     w.ClOrdID,
			Symbol:      w.Symbol,
			Side:        side,
			Timestamp:   ts,
		}}, nil
	default:
		return Request{}, fmt.Errorf("%w: unknown kind %q", ErrInvalid, w.Kind)
	}

	if w.Qty == nil {
		return Request{}, fmt.Errorf("%w: qty is required", ErrInvalid)
	}
	q := *w.Qty
	if q <= 0 || q != math.Trunc(q) || q > math.MaxInt64/2 {
		return Request{}, fmt.Errorf("%w: qty must be a positive integer, got %v", ErrInvalid, q)
	}

	ordType := Type(strings.ToUpper(w.OrdType))
	if ordType == "" {
		ordType = TypeMarket
	}
	if w.Price != nil {
		if *w.Price <= 0 {
			return Request{}, fmt.Errorf("%w: price must be > 0", ErrInvalid)
		}
		ordType = TypeLimit
	} else if ordType == TypeLimit {
		return Request{}, fmt.Errorf("%w: LIMIT order requires price", ErrInvalid)
	}

	return Request{Kind: KindOrder, Order: &Order{
		ClOrdID:   w.ClOrdID,
		Symbol:    w.Symbol,
		Side:      side,
		Qty:       int64(q),
		OrdType:   ordType,
		Price:     w.Price,
		Timestamp: ts,
	}}, nil
}

func toUnixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func unixFloat(ts float64) time.Time {
	if ts <= 0 {
		return time.Time{}
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC()
}
