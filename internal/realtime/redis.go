package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, msg Message) error
}

// RedisBroker carries user topics over Redis pub/sub so that every API
// process can serve any user's live session.
type RedisBroker struct {
	rdb        *redis.Client
	hub        *Hub
	logger     *zap.Logger
	newBackOff func() backoff.BackOff
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, logger *zap.Logger) *RedisBroker {
	return &RedisBroker{rdb: rdb, hub: hub, logger: logger, newBackOff: defaultBackOff}
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

func (b *RedisBroker) Publish(ctx context.Context, topic string, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	if err := b.rdb.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Run relays every user topic to the local hub until ctx is cancelled. Failed
// or dropped subscriptions are retried with backoff.
func (b *RedisBroker) Run(ctx context.Context) error {
	bo := b.newBackOff()
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, b.session(ctx, bo)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			b.logger.Warn("realtime.broker_retrying", zap.Duration("retry_in", next), zap.Error(err))
		}),
	)
	if ctx.Err() != nil {
		b.logger.Info("realtime.broker_stopping")
		return nil
	}
	return err
}

// session subscribes and relays until ctx ends or the subscription drops.
func (b *RedisBroker) session(ctx context.Context, bo backoff.BackOff) error {
	pubsub := b.rdb.PSubscribe(ctx, userTopicPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	bo.Reset()
	b.logger.Info("realtime.broker_started", zap.String("pattern", userTopicPattern))

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m, ok := <-ch:
			if !ok {
				return errors.New("subscription closed")
			}
			b.handle(m)
		}
	}
}

func (b *RedisBroker) handle(m *redis.Message) {
	var msg Message
	if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
		b.logger.Error("realtime.decode_failed", zap.String("topic", m.Channel), zap.Error(err))
		return
	}
	b.hub.Dispatch(m.Channel, msg)
}
