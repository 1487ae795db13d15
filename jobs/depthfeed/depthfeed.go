// Package depthfeed publishes periodic depth snapshots to the
// market-data topic. Display and monitoring only; it never feeds back
// into matching.
package depthfeed

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"fenrir/infra/kafka"
	"fenrir/service"
)

type Config struct {
	Brokers  []string
	Topic    string
	Symbol   string
	Levels   int
	Interval time.Duration
}

type Feed struct {
	engine   *service.Engine
	producer *kafka.Producer
	symbol   string
	levels   int
	interval time.Duration
	log      *zap.Logger
}

func New(engine *service.Engine, cfg Config, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	return &Feed{
		engine:   engine,
		producer: kafka.NewProducer(cfg.Brokers, cfg.Topic),
		symbol:   cfg.Symbol,
		levels:   cfg.Levels,
		interval: interval,
		log:      log.Named("depthfeed"),
	}
}

func (f *Feed) Start(ctx context.Context) {
	f.log.Info("started", zap.String("symbol", f.symbol))

	go func() {
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				f.publishOnce(ctx)
			}
		}
	}()
}

func (f *Feed) publishOnce(ctx context.Context) {
	snap := f.engine.Depth(f.levels)
	payload, err := json.Marshal(snap)
	if err != nil {
		f.log.Error("encode depth snapshot", zap.Error(err))
		return
	}
	if err := f.producer.Send(ctx, []byte(f.symbol), payload); err != nil {
		f.log.Warn("publish depth snapshot", zap.Error(err))
	}
}

func (f *Feed) Close() error {
	return f.producer.Close()
}
