package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"treasury-terminal/internal/container"
)

func newStartCmd() *cobra.Command {
	var (
		opts      container.Options
		redisHost string
	)
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Run the order router, market data simulator and FIX gateway",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("redis-host") {
				opts.BrokerAddr = redisAddr(redisHost)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runStart(ctx, opts)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.ConfigPath, "config", "", "配置文件路径（YAML），留空使用默认值")
	f.StringVar(&redisHost, "redis-host", defaultRedisHost(), "Redis 地址（host 或 host:port）")
	f.StringVar(&opts.FIXConfigPath, "fix-config", "", "QuickFIX 会话配置文件（.cfg），设置后忽略 fix 段")
	f.BoolVar(&opts.NoMarketData, "no-market-data", false, "不运行行情模拟")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "输出调试日志与完整载荷")
	return cmd
}

// runStart 构建并启动容器，阻塞到 ctx 结束后按序停止
func runStart(ctx context.Context, opts container.Options) error {
	c, err := container.New(opts)
	if err != nil {
		return err
	}
	if err := c.Build(ctx); err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		_ = c.Stop()
		return err
	}
	log := c.Logger()
	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Warn("sd_notify READY failed", zap.Error(err))
	} else if sent {
		log.Info("notified systemd: READY")
	}

	<-ctx.Done()
	log.Info("shutdown signal received")
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	return c.Stop()
}
