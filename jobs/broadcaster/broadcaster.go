// Package broadcaster drains the outbox to the Kafka trades topic.
package broadcaster

import (
	"context"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"fenrir/infra/outbox"
)

type Config struct {
	Brokers  []string
	Topic    string
	Interval time.Duration
}

// Broadcaster republishes pending outbox events until the broker
// acknowledges them. At-least-once: consumers must dedupe by seq.
type Broadcaster struct {
	out      *outbox.Outbox
	producer sarama.SyncProducer
	topic    string
	interval time.Duration
	log      *zap.Logger
}

func New(out *outbox.Outbox, cfg Config, log *zap.Logger) (*Broadcaster, error) {
	scfg := sarama.NewConfig()
	scfg.Producer.Return.Successes = true
	scfg.Producer.RequiredAcks = sarama.WaitForAll
	scfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, scfg)
	if err != nil {
		return nil, err
	}

	if log == nil {
		log = zap.NewNop()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &Broadcaster{
		out:      out,
		producer: producer,
		topic:    cfg.Topic,
		interval: interval,
		log:      log.Named("broadcaster"),
	}, nil
}

func (b *Broadcaster) Start(ctx context.Context) {
	b.log.Info("started", zap.String("topic", b.topic))

	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.drainOnce()
				if err := b.out.GC(); err != nil {
					b.log.Warn("outbox gc failed", zap.Error(err))
				}
			}
		}
	}()
}

// maxAttempts parks an event as FAILED instead of retrying forever.
const maxAttempts = 20

func (b *Broadcaster) drainOnce() {
	_ = b.out.ScanPending(func(seq uint64, st outbox.StateRecord, rec *outbox.Record) error {
		if st.Retries >= maxAttempts {
			b.log.Error("giving up on event", zap.Uint64("seq", seq), zap.Uint32("retries", st.Retries))
			return b.out.MarkFailed(seq)
		}

		if err := b.out.MarkSent(seq); err != nil {
			return err
		}

		msg := &sarama.ProducerMessage{
			Topic: b.topic,
			Key:   sarama.StringEncoder(strconv.FormatUint(seq, 10)),
			Value: sarama.ByteEncoder(rec.Data),
		}
		if _, _, err := b.producer.SendMessage(msg); err != nil {
			b.log.Warn("publish failed, will retry",
				zap.Uint64("seq", seq),
				zap.Error(err),
			)
			return nil // retry on next tick
		}

		return b.out.MarkAcked(seq)
	})
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
