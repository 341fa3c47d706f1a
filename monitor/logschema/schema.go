package logschema

import (
	"fmt"
	"sort"
	"strings"
)

// Schema 定义每个日志事件所需的关键字段，便于集中校验。
type Schema struct {
	Event    string
	Required []string
}

// 事件名
const (
	EventOrderRouted     = "order_routed"
	EventOrderEvent      = "order_event"
	EventSessionEvent    = "session_event"
	EventExecutionReport = "execution_report"
	EventAppMessage      = "app_message"
)

var schemas = map[string]Schema{
	EventOrderRouted: {
		Event:    EventOrderRouted,
		Required: []string{"outcome", "clOrdID", "symbol", "side", "qty"},
	},
	EventOrderEvent: {
		Event:    EventOrderEvent,
		Required: []string{"event", "clOrdID"},
	},
	EventSessionEvent: {
		Event:    EventSessionEvent,
		Required: []string{"event", "session"},
	},
	EventExecutionReport: {
		Event:    EventExecutionReport,
		Required: []string{"session", "clOrdID", "execType", "ordStatus"},
	},
	EventAppMessage: {
		Event:    EventAppMessage,
		Required: []string{"session", "msgType"},
	},
}

// Known 返回所有事件名，便于外部生成文档。
func Known() []string {
	names := make([]string, 0, len(schemas))
	for k := range schemas {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Validate 检查日志字段是否包含 schema 中要求的 key。
func Validate(event string, fields map[string]interface{}) error {
	s, ok := schemas[event]
	if !ok {
		return nil
	}
	var missing []string
	for _, key := range s.Required {
		if _, exists := fields[key]; !exists {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing fields: %s", strings.Join(missing, ","))
	}
	return nil
}
