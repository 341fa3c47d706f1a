package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"treasury-terminal/broker"
	"treasury-terminal/instrument"
	"treasury-terminal/order"
)

type orderFlags struct {
	side      string
	qty       int64
	symbol    string
	price     string
	ordType   string
	redisHost string
	config    string
}

func newOrderCmd() *cobra.Command {
	var fl orderFlags
	cmd := &cobra.Command{
		Use:   "order",
		Short: "Submit one order to the outgoing queue",
		Example: `  fixengine order --side buy --qty 10 --symbol 10Y
  fixengine order --side sell --qty 5 --symbol TYH6 --price 110-16+`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry(fl.config)
			if err != nil {
				return err
			}
			o, err := buildOrder(reg, fl, time.Now())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			b, err := dialBroker(ctx, fl.redisHost)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := submitOrder(ctx, b, o); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Order submitted: %s %d %s (%s) ID=%s\n",
				o.Side, o.Qty, o.Symbol, o.OrdType, o.ClOrdID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.side, "side", "", "BUY 或 SELL（大小写不敏感）")
	f.Int64Var(&fl.qty, "qty", 0, "数量（正整数）")
	f.StringVar(&fl.symbol, "symbol", "", "合约代码，例如 10Y、TYH6")
	f.StringVar(&fl.price, "price", "", "限价，支持小数或 32nds 写法（如 110-16+），给定时为 LIMIT")
	f.StringVar(&fl.ordType, "type", string(order.TypeMarket), "MARKET 或 LIMIT")
	f.StringVar(&fl.redisHost, "redis-host", defaultRedisHost(), "Redis 地址（host 或 host:port）")
	f.StringVar(&fl.config, "config", "", "配置文件路径（YAML），用于报价惯例覆盖")
	_ = cmd.MarkFlagRequired("side")
	_ = cmd.MarkFlagRequired("qty")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

// buildOrder 校验参数并构造订单；价格按合约报价惯例解析
func buildOrder(reg *instrument.Registry, fl orderFlags, now time.Time) (order.Order, error) {
	symbol := strings.ToUpper(strings.TrimSpace(fl.symbol))
	if !reg.Has(symbol) {
		return order.Order{}, fmt.Errorf("unknown symbol %q (known: %s)", fl.symbol, strings.Join(reg.IDs(), ", "))
	}
	side, err := order.ParseSide(fl.side)
	if err != nil {
		return order.Order{}, err
	}
	if fl.qty <= 0 {
		return order.Order{}, errors.New("qty must be a positive integer")
	}
	ordType, err := order.ParseType(fl.ordType)
	if err != nil {
		return order.Order{}, err
	}
	var price *float64
	if fl.price != "" {
		d, err := reg.ParsePrice(fl.price, symbol)
		if err != nil {
			return order.Order{}, fmt.Errorf("price: %w", err)
		}
		px := d.InexactFloat64()
		price = &px
	}
	if ordType == order.TypeLimit && price == nil {
		return order.Order{}, errors.New("LIMIT orders require --price")
	}
	return order.NewOrder(symbol, side, fl.qty, ordType, price, now), nil
}

func submitOrder(ctx context.Context, b broker.Broker, o order.Order) error {
	payload, err := order.EncodeOrder(o)
	if err != nil {
		return err
	}
	if err := b.Push(ctx, broker.KeyOrderQueue, payload); err != nil {
		return fmt.Errorf("enqueue order: %w", err)
	}
	return nil
}
