// Package fix 在 quickfix 消息之上提供按 tag 读写的视图，以及内部订单与协议消息的互译。
package fix

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/quickfixgo/quickfix"
)

// SOH 字段分隔符。
const SOH = "\x01"

// BeginStringFIX44 协议版本。
const BeginStringFIX44 = quickfix.BeginStringFIX44

// ErrGarbled 报文无法解析。
var ErrGarbled = errors.New("garbled fix message")

// headerTags 属于标准头部的 tag，写入 Header 而不是 Body。
var headerTags = map[int]bool{
	TagBeginString:     true,
	TagBodyLength:      true,
	TagMsgType:         true,
	TagSenderCompID:    true,
	TagTargetCompID:    true,
	TagMsgSeqNum:       true,
	TagPossDupFlag:     true,
	TagPossResend:      true,
	TagSendingTime:     true,
	TagOrigSendingTime: true,
}

// Message 包装 quickfix.Message，按 tag 号读写，头部字段自动归位。
// 内嵌的 *quickfix.Message 使其可直接交给 quickfix.SendToTarget。
type Message struct {
	*quickfix.Message
}

// NewMessage 创建指定 MsgType 的消息。
func NewMessage(msgType string) *Message {
	m := &Message{Message: quickfix.NewMessage()}
	m.Set(TagMsgType, msgType)
	return m
}

// Wrap 包装会话层回调收到的消息。
func Wrap(m *quickfix.Message) *Message {
	return &Message{Message: m}
}

// Set 设置字段；已存在则覆盖。
func (m *Message) Set(tag int, value string) *Message {
	if headerTags[tag] {
		m.Header.SetString(quickfix.Tag(tag), value)
	} else {
		m.Body.SetString(quickfix.Tag(tag), value)
	}
	return m
}

func (m *Message) sections() []*quickfix.FieldMap {
	return []*quickfix.FieldMap{&m.Header.FieldMap, &m.Body.FieldMap, &m.Trailer.FieldMap}
}

// Get 依次在头部、正文、尾部查找字段。
func (m *Message) Get(tag int) (string, bool) {
	t := quickfix.Tag(tag)
	for _, fm := range m.sections() {
		if !fm.Has(t) {
			continue
		}
		if v, err := fm.GetString(t); err == nil {
			return v, true
		}
	}
	return "", false
}

// Has 判断字段是否存在。
func (m *Message) Has(tag int) bool {
	_, ok := m.Get(tag)
	return ok
}

// MsgType 返回 35 字段，缺失时为空串。
func (m *Message) MsgType() string {
	v, _ := m.Get(TagMsgType)
	return v
}

// Bytes 编码为完整报文；未设置 BeginString 时补 FIX.4.4。
func (m *Message) Bytes() []byte {
	if !m.Header.Has(quickfix.Tag(TagBeginString)) {
		m.Set(TagBeginString, BeginStringFIX44)
	}
	return []byte(m.Message.String())
}

// String 以 "|" 分隔的可读形式，用于日志。
func (m *Message) String() string {
	return Readable(string(m.Bytes()))
}

// Readable 把 SOH 替换为 "|"。
func Readable(raw string) string {
	return strings.ReplaceAll(raw, SOH, "|")
}

// Parse 解析一条完整报文，raw 会被复制。
func Parse(raw []byte) (*Message, error) {
	qm := quickfix.NewMessage()
	if err := quickfix.ParseMessage(qm, bytes.NewBuffer(append([]byte(nil), raw...))); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGarbled, err)
	}
	m := Wrap(qm)
	if m.MsgType() == "" {
		return nil, fmt.Errorf("%w: missing MsgType", ErrGarbled)
	}
	return m, nil
}
