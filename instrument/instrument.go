package instrument

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Convention 报价惯例，封闭枚举。
type Convention int

const (
	ConventionUnknown Convention = iota
	Decimal3dp                   // 三位小数
	Whole32nds                   // 整 1/32
	Half32nds                    // 1/64，奇数 64ths 以 "+" 标记
	Eighth32nds                  // 1/256，后缀表示 1/8 个 32nd
)

var conventionNames = map[Convention]string{
	Decimal3dp:  "decimal-3dp",
	Whole32nds:  "whole-32nds",
	Half32nds:   "half-32nds",
	Eighth32nds: "eighth-32nds",
}

func (c Convention) String() string {
	if name, ok := conventionNames[c]; ok {
		return name
	}
	return fmt.Sprintf("convention(%d)", int(c))
}

// Valid 判断是否为已知惯例。
func (c Convention) Valid() bool {
	_, ok := conventionNames[c]
	return ok
}

// parts 返回每个 32nd 被细分的份数；十进制惯例返回 0。
func (c Convention) parts() int64 {
	switch c {
	case Whole32nds:
		return 1
	case Half32nds:
		return 2
	case Eighth32nds:
		return 8
	default:
		return 0
	}
}

// TickSize 返回惯例对应的最小报价单位。
func (c Convention) TickSize() decimal.Decimal {
	if p := c.parts(); p > 0 {
		return decimal.NewFromInt(1).Div(decimal.NewFromInt(32 * p))
	}
	return decimal.RequireFromString("0.005")
}

// ParseConvention 解析配置中的惯例名称（大小写不敏感）。
func ParseConvention(s string) (Convention, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for c, n := range conventionNames {
		if n == name {
			return c, nil
		}
	}
	return ConventionUnknown, fmt.Errorf("unknown quoting convention %q", s)
}

// Category 区分现券与期货。
type Category string

const (
	CategoryCash   Category = "TNOTE"
	CategoryFuture Category = "FUT"
)

// Instrument 静态合约定义，进程启动后不可变。
type Instrument struct {
	ID          string
	Label       string
	Description string
	BasePrice   float64
	Convention  Convention
	TickSize    decimal.Decimal
	Category    Category
}

func cash(id, desc string, base float64, c Convention) Instrument {
	return Instrument{ID: id, Label: id, Description: desc, BasePrice: base, Convention: c, TickSize: c.TickSize(), Category: CategoryCash}
}

func future(id, label, desc string, base float64, c Convention) Instrument {
	return Instrument{ID: id, Label: label, Description: desc, BasePrice: base, Convention: c, TickSize: c.TickSize(), Category: CategoryFuture}
}

// DefaultCatalogue 返回终端默认的合约列表（顺序即展示顺序）。
func DefaultCatalogue() []Instrument {
	return []Instrument{
		cash("2Y", "T 3 ½ 01/31/28", 99.875, Eighth32nds),
		cash("3Y", "T 4 ¼ 02/15/27", 99.10, Eighth32nds),
		cash("5Y", "T 4 ⅛ 01/31/30", 98.50, Eighth32nds),
		cash("10Y", "T 3 ⅞ 12/15/33", 96.25, Half32nds),
		cash("30Y", "T 4 ¼ 05/15/54", 95.80, Whole32nds),
		future("TUH6", "TU", "2Y NOTE FUT MAR26", 102.12, Eighth32nds),
		future("TYH6", "TY", "10Y NOTE MAR26", 110.15, Half32nds),
		future("USH6", "US", "30Y BOND MAR26", 119.05, Whole32nds),
		future("SR3H6", "SFR H6", "3M SOFR MAR26", 96.50, Decimal3dp),
		future("SR3Z6", "SFR Z6", "3M SOFR DEC26", 96.35, Decimal3dp),
	}
}
