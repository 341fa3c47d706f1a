package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"treasury-terminal/broker"
	"treasury-terminal/instrument"
	"treasury-terminal/market"
)

const clearScreen = "\033[H\033[2J"

type pricesFlags struct {
	symbol    string
	format    string
	redisHost string
	once      bool
	interval  time.Duration
	config    string
}

func newPricesCmd() *cobra.Command {
	var fl pricesFlags
	cmd := &cobra.Command{
		Use:   "prices",
		Short: "Show the latest simulated market data",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if fl.format != "table" && fl.format != "json" {
				return fmt.Errorf("unknown format %q (table|json)", fl.format)
			}
			reg, err := loadRegistry(fl.config)
			if err != nil {
				return err
			}
			dialCtx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
			b, err := dialBroker(dialCtx, fl.redisHost)
			cancel()
			if err != nil {
				return err
			}
			defer b.Close()
			return watchPrices(cmd.Context(), b, reg, fl, cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&fl.symbol, "symbol", "", "只显示该合约")
	f.StringVar(&fl.format, "format", "table", "table 或 json")
	f.StringVar(&fl.redisHost, "redis-host", defaultRedisHost(), "Redis 地址（host 或 host:port）")
	f.BoolVar(&fl.once, "once", false, "输出一次后退出")
	f.DurationVar(&fl.interval, "interval", time.Second, "刷新间隔")
	f.StringVar(&fl.config, "config", "", "配置文件路径（YAML），用于报价惯例覆盖")
	return cmd
}

// watchPrices 轮询快照键并输出；once 时只输出一次
func watchPrices(ctx context.Context, b broker.Broker, reg *instrument.Registry, fl pricesFlags, w io.Writer) error {
	if fl.interval <= 0 {
		fl.interval = time.Second
	}
	symbol := strings.ToUpper(fl.symbol)
	ticker := time.NewTicker(fl.interval)
	defer ticker.Stop()
	for {
		raw, ok, err := b.Get(ctx, broker.KeyLatestPrices)
		if err != nil {
			return fmt.Errorf("read market data: %w", err)
		}
		if !fl.once && fl.format == "table" {
			fmt.Fprint(w, clearScreen)
		}
		if !ok {
			fmt.Fprintln(w, "Waiting for market data...")
		} else {
			batch, err := market.DecodeBatch([]byte(raw))
			if err != nil {
				return err
			}
			if symbol != "" {
				q, found := batch[symbol]
				batch = market.Batch{}
				if found {
					batch[symbol] = q
				}
			}
			if fl.format == "json" {
				if err := renderJSON(w, batch); err != nil {
					return err
				}
			} else {
				renderTable(w, batch, reg)
			}
		}
		if fl.once {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// renderTable 表格输出，按目录顺序排列，最后一列为市场惯例报价。
// 快照中目录以外的品种排在最后。
func renderTable(w io.Writer, batch market.Batch, reg *instrument.Registry) {
	fmt.Fprintf(w, "%-8s %12s %12s %12s %10s %12s %10s\n",
		"Symbol", "Bid", "Ask", "Mid", "Change", "VWAP", "Display")
	fmt.Fprintln(w, strings.Repeat("-", 84))
	ids := make([]string, 0, len(batch))
	for _, id := range reg.IDs() {
		if _, ok := batch[id]; ok {
			ids = append(ids, id)
		}
	}
	for _, id := range batch.Symbols() {
		if !reg.Has(id) {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		q := batch[id]
		fmt.Fprintf(w, "%-8s %12.5f %12.5f %12.5f %+10.5f %12.5f %10s\n",
			id, q.Bid, q.Ask, q.Mid, q.Change, q.VWAP, reg.Format(q.Mid, id))
	}
}

func renderJSON(w io.Writer, batch market.Batch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(batch)
}
