package realtime

import (
	"context"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBroker propagates change markers over Redis pub/sub so that
// independent processes sharing the store observe each other's writes.
type RedisBroker struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisBroker builds the broker.
func NewRedisBroker(client *redis.Client, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroker{client: client, logger: logger}
}

// Notify publishes a change marker. The payload carries no state; it
// only wakes subscribers up to re-read.
func (b *RedisBroker) Notify(ctx context.Context, channel string) {
	if err := b.client.Publish(ctx, channel, "1").Err(); err != nil {
		b.logger.Warn("realtime notify failed",
			zap.String("channel", channel), zap.Error(err))
	}
}

// Subscribe registers deliver on the channel. The returned subscription
// must be cancelled to release the underlying pub/sub connection.
func (b *RedisBroker) Subscribe(ctx context.Context, channel string, deliver Deliver) (*Subscription, error) {
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	subCtx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case _, ok := <-ch:
				if !ok {
					return
				}
				deliver(subCtx)
			}
		}
	}()

	return NewSubscription(func() {
		cancel()
		_ = pubsub.Close()
	}), nil
}
