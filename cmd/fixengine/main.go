// Command fixengine 运行交易引擎，并提供下单、撤单、行情与回报查询的命令行入口。
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"treasury-terminal/broker"
	"treasury-terminal/config"
	"treasury-terminal/instrument"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "fixengine",
		Short:         "Treasury trading engine: FIX order routing and simulated market data",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(
		newStartCmd(),
		newOrderCmd(),
		newCancelCmd(),
		newPricesCmd(),
		newReportsCmd(),
	)
	return root
}

// defaultRedisHost 取 REDIS_HOST，缺省 localhost
func defaultRedisHost() string {
	if v := os.Getenv("REDIS_HOST"); v != "" {
		return v
	}
	return "localhost"
}

// redisAddr 只给主机名时补默认端口
func redisAddr(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(host, "6379")
}

// dialBroker 一次性命令使用；不可达时返回错误，命令以非零状态退出
func dialBroker(ctx context.Context, host string) (broker.Broker, error) {
	b, err := broker.DialRedis(ctx, broker.RedisOptions{
		Addr:        redisAddr(host),
		DialTimeout: 3 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return b, nil
}

// loadRegistry 与 start 使用同一份配置，使报价惯例覆盖在命令行里同样生效
func loadRegistry(configPath string) (*instrument.Registry, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, err
	}
	conventions, err := cfg.MarketData.ParsedConventions()
	if err != nil {
		return nil, err
	}
	return instrument.Default().WithConventions(conventions)
}
