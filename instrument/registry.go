package instrument

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Registry 合约注册表，构造后只读，可被多个 goroutine 并发读取。
type Registry struct {
	byID  map[string]Instrument
	order []string
}

// NewRegistry 校验并构建注册表；id 必须唯一。
func NewRegistry(items []Instrument) (*Registry, error) {
	if len(items) == 0 {
		return nil, errors.New("instrument catalogue is empty")
	}
	r := &Registry{
		byID:  make(map[string]Instrument, len(items)),
		order: make([]string, 0, len(items)),
	}
	for _, inst := range items {
		if inst.ID == "" {
			return nil, errors.New("instrument id is required")
		}
		if _, dup := r.byID[inst.ID]; dup {
			return nil, fmt.Errorf("duplicate instrument id %s", inst.ID)
		}
		if !inst.Convention.Valid() {
			return nil, fmt.Errorf("instrument %s has invalid convention %s", inst.ID, inst.Convention)
		}
		if inst.BasePrice <= 0 {
			return nil, fmt.Errorf("instrument %s basePrice must be > 0", inst.ID)
		}
		if inst.TickSize.IsZero() {
			inst.TickSize = inst.Convention.TickSize()
		}
		if inst.Label == "" {
			inst.Label = inst.ID
		}
		r.byID[inst.ID] = inst
		r.order = append(r.order, inst.ID)
	}
	return r, nil
}

// Default 使用默认合约列表构建注册表。
func Default() *Registry {
	r, err := NewRegistry(DefaultCatalogue())
	if err != nil {
		panic(err)
	}
	return r
}

// WithConventions 返回覆盖了报价惯例的新注册表，原注册表不变。
func (r *Registry) WithConventions(overrides map[string]Convention) (*Registry, error) {
	items := r.All()
	for i, inst := range items {
		c, ok := overrides[inst.ID]
		if !ok {
			continue
		}
		inst.Convention = c
		inst.TickSize = c.TickSize()
		items[i] = inst
	}
	for id := range overrides {
		if !r.Has(id) {
			return nil, fmt.Errorf("convention override for unknown instrument %s", id)
		}
	}
	return NewRegistry(items)
}

func (r *Registry) Get(id string) (Instrument, bool) {
	inst, ok := r.byID[id]
	return inst, ok
}

func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// IDs 按目录顺序返回全部 id。
func (r *Registry) IDs() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All 按目录顺序返回全部合约的副本。
func (r *Registry) All() []Instrument {
	out := make([]Instrument, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

func (r *Registry) Len() int { return len(r.order) }

// Format 按合约的报价惯例格式化价格；未知合约回退到三位小数。
func (r *Registry) Format(price float64, id string) string {
	d := decimal.NewFromFloat(price)
	inst, ok := r.byID[id]
	if !ok {
		return fallback(d)
	}
	return Format(d, inst.Convention)
}

// ParsePrice 解析用户输入的价格。含 "-" 的按合约的 32nds 惯例解析，否则按十进制。
func (r *Registry) ParsePrice(s, id string) (decimal.Decimal, error) {
	inst, ok := r.byID[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("unknown instrument %s", id)
	}
	s = strings.TrimSpace(s)
	if inst.Convention.parts() > 0 && strings.Contains(s, "-") {
		return Parse(s, inst.Convention)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrBadPrice, s)
	}
	return d, nil
}
