package instrument

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrBadPrice 价格字符串无法按惯例解析。
var ErrBadPrice = errors.New("bad price")

// eighthSuffix 1/8 个 32nd 的显示后缀，4/8 记为 "+"。
var eighthSuffix = [8]string{"", "1", "2", "3", "+", "5", "6", "7"}

// Format 将价格渲染为市场惯用的显示字符串。
// 所有 32nds 惯例均四舍五入（不截断），进位到 32 时 handle 加一、分数归零。
func Format(price decimal.Decimal, c Convention) string {
	switch c {
	case Decimal3dp:
		return price.StringFixed(3)
	case Whole32nds, Half32nds, Eighth32nds:
		return format32(price, c)
	default:
		return fallback(price)
	}
}

func fallback(price decimal.Decimal) string {
	return price.StringFixed(3)
}

func format32(price decimal.Decimal, c Convention) string {
	parts := c.parts()
	denom := 32 * parts

	handle := price.Floor()
	units := price.Sub(handle).Mul(decimal.NewFromInt(denom)).Round(0).IntPart()
	h := handle.IntPart()
	if units >= denom {
		h++
		units = 0
	}
	thirtySeconds := units / parts
	rem := units % parts

	var suffix string
	switch c {
	case Half32nds:
		if rem == 1 {
			suffix = "+"
		}
	case Eighth32nds:
		suffix = eighthSuffix[rem]
	}
	return fmt.Sprintf("%d-%02d%s", h, thirtySeconds, suffix)
}

// Parse 将显示字符串还原为价格，是 Format 的逆运算。
func Parse(s string, c Convention) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if c == Decimal3dp || !c.Valid() {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("%w: %q", ErrBadPrice, s)
		}
		return d, nil
	}

	handleStr, frac, ok := strings.Cut(s, "-")
	if !ok || len(frac) < 2 {
		return decimal.Zero, fmt.Errorf("%w: %q is not handle-32nds", ErrBadPrice, s)
	}
	handle, err := strconv.ParseInt(handleStr, 10, 64)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: handle %q", ErrBadPrice, handleStr)
	}
	n32, err := strconv.ParseInt(frac[:2], 10, 64)
	if err != nil || n32 < 0 || n32 > 31 {
		return decimal.Zero, fmt.Errorf("%w: 32nds %q", ErrBadPrice, frac[:2])
	}

	parts := c.parts()
	rem, err := parseSuffix(frac[2:], c)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", err, s)
	}
	units := n32*parts + rem
	return decimal.NewFromInt(handle).Add(
		decimal.NewFromInt(units).Div(decimal.NewFromInt(32 * parts)),
	), nil
}

func parseSuffix(suffix string, c Convention) (int64, error) {
	switch c {
	case Whole32nds:
		if suffix == "" {
			return 0, nil
		}
	case Half32nds:
		switch suffix {
		case "":
			return 0, nil
		case "+":
			return 1, nil
		}
	case Eighth32nds:
		if suffix == "+" {
			return 4, nil
		}
		if suffix == "" {
			return 0, nil
		}
		if len(suffix) == 1 && suffix[0] >= '1' && suffix[0] <= '7' {
			return int64(suffix[0] - '0'), nil
		}
	}
	return 0, fmt.Errorf("%w: suffix %q not valid for %s", ErrBadPrice, suffix, c)
}
