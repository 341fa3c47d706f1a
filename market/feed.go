package market

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"treasury-terminal/broker"
	"treasury-terminal/infrastructure/logger"
)

// Feed 把底座上的行情广播转入本地 Service。
type Feed struct {
	b   broker.Broker
	svc *Service
	log *logger.Logger
	now func() time.Time
}

func NewFeed(b broker.Broker, svc *Service, log *logger.Logger) *Feed {
	if log == nil {
		log = logger.Nop()
	}
	return &Feed{b: b, svc: svc, log: log.Named("feed"), now: time.Now}
}

// Prime 用最新快照键填充 Service，键不存在时不做处理。
func (f *Feed) Prime(ctx context.Context) error {
	raw, ok, err := f.b.Get(ctx, broker.KeyLatestPrices)
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	if !ok {
		return nil
	}
	batch, err := DecodeBatch([]byte(raw))
	if err != nil {
		return err
	}
	f.svc.OnBatch(batch, f.now())
	return nil
}

// Run 订阅行情频道直到 ctx 结束。
func (f *Feed) Run(ctx context.Context) error {
	if err := f.Prime(ctx); err != nil {
		f.log.Warn("prime snapshot failed", zap.Error(err))
	}
	ch, cancel, err := f.b.Subscribe(ctx, broker.KeyMarketData)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", broker.KeyMarketData, err)
	}
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			batch, err := DecodeBatch([]byte(raw))
			if err != nil {
				f.log.Warn("bad snapshot on stream", zap.Error(err))
				continue
			}
			f.svc.OnBatch(batch, f.now())
		}
	}
}
