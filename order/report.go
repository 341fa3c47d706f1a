package order

import (
	"encoding/json"
	"fmt"
)

// ReportKindExecution 执行回报的类别标记，写入 `_type`。
const ReportKindExecution = "ExecutionReport"

// ExecutionReport 入站回报的扁平表示。
// 源消息中缺失的字段保持缺失（字符串为空、数值为 nil），消费者应视为未知而非零。
type ExecutionReport struct {
	MsgType   string   `json:"msgType,omitempty"`
	ClOrdID   string   `json:"clOrdID,omitempty"`
	OrderID   string   `json:"orderID,omitempty"`
	ExecID    string   `json:"execID,omitempty"`
	ExecType  string   `json:"execType,omitempty"`
	OrdStatus string   `json:"ordStatus,omitempty"`
	Symbol    string   `json:"symbol,omitempty"`
	Side      string   `json:"side,omitempty"`
	Qty       *float64 `json:"qty,omitempty"`
	Price     *float64 `json:"price,omitempty"`
	LastPx    *float64 `json:"lastPx,omitempty"`
	LastQty   *float64 `json:"lastQty,omitempty"`
	CumQty    *float64 `json:"cumQty,omitempty"`
	LeavesQty *float64 `json:"leavesQty,omitempty"`
	Text      string   `json:"text,omitempty"`
	Kind      string   `json:"_type,omitempty"`
}

func (r ExecutionReport) Encode() (string, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return "", fmt.Errorf("encode execution report: %w", err)
	}
	return string(raw), nil
}

// DecodeReport 解析 execution_reports 列表中的一条。
func DecodeReport(data []byte) (ExecutionReport, error) {
	var r ExecutionReport
	if err := json.Unmarshal(data, &r); err != nil {
		return r, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return r, nil
}
