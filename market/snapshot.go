package market

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"
)

// Quote 单个品种的一次行情快照，数值保留 5 位小数。
// VWAP 实为已发布中间价的算术平均（按 tick 计权），字段名沿用终端约定。
type Quote struct {
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Mid    float64 `json:"mid"`
	Change float64 `json:"change"`
	VWAP   float64 `json:"vwap"`
	Ts     float64 `json:"ts"` // Unix 秒，带小数
}

// Time 快照时间。
func (q Quote) Time() time.Time {
	sec, frac := math.Modf(q.Ts)
	return time.Unix(int64(sec), int64(frac*1e9))
}

// Spread 买卖价差。
func (q Quote) Spread() float64 {
	return q.Ask - q.Bid
}

// Batch 一次 tick 的全部品种快照，按品种 id 索引。
type Batch map[string]Quote

// Symbols 排序后的品种列表。
func (b Batch) Symbols() []string {
	out := make([]string, 0, len(b))
	for id := range b {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Encode 序列化为存储/广播用的 JSON。
func (b Batch) Encode() (string, error) {
	data, err := json.Marshal(b)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(data), nil
}

// DecodeBatch 解析快照 JSON。
func DecodeBatch(data []byte) (Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return b, nil
}

func unixFloat(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
