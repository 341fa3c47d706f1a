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

func newCancelCmd() *cobra.Command {
	var orig, symbol, side, redisHost, configPath string
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Submit a cancel request for a previously sent order",
		RunE: func(cmd *cobra.Command, _ []string) error {
			reg, err := loadRegistry(configPath)
			if err != nil {
				return err
			}
			c, err := buildCancel(reg, orig, symbol, side, time.Now())
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			defer cancel()
			b, err := dialBroker(ctx, redisHost)
			if err != nil {
				return err
			}
			defer b.Close()
			payload, err := order.EncodeCancel(c)
			if err != nil {
				return err
			}
			if err := b.Push(ctx, broker.KeyOrderQueue, payload); err != nil {
				return fmt.Errorf("enqueue cancel: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cancel submitted: %s %s orig=%s ID=%s\n",
				c.Side, c.Symbol, c.OrigClOrdID, c.ClOrdID)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&orig, "orig", "", "原订单 ClOrdID")
	f.StringVar(&symbol, "symbol", "", "合约代码")
	f.StringVar(&side, "side", "", "原订单方向")
	f.StringVar(&redisHost, "redis-host", defaultRedisHost(), "Redis 地址（host 或 host:port）")
	f.StringVar(&configPath, "config", "", "配置文件路径（YAML）")
	_ = cmd.MarkFlagRequired("orig")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("side")
	return cmd
}

func buildCancel(reg *instrument.Registry, orig, symbol, side string, now time.Time) (order.Cancel, error) {
	orig = strings.TrimSpace(orig)
	if orig == "" {
		return order.Cancel{}, errors.New("--orig is required")
	}
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !reg.Has(symbol) {
		return order.Cancel{}, fmt.Errorf("unknown symbol %q", symbol)
	}
	s, err := order.ParseSide(side)
	if err != nil {
		return order.Cancel{}, err
	}
	return order.NewCancel(orig, symbol, s, now), nil
}
