package redispubsub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/clipstream/realtime-backend/internal/core/errors"
	"github.com/clipstream/realtime-backend/internal/core/ports"
)

// Config tunes the reconnect backoff for the subscription loop.
type Config struct {
	ReconnectMin time.Duration
	ReconnectMax time.Duration
}

// DefaultConfig returns the default backoff schedule.
func DefaultConfig() Config {
	return Config{
		ReconnectMin: 1 * time.Second,
		ReconnectMax: 30 * time.Second,
	}
}

// Broker bridges dispatched events across sibling instances through Redis
// pub/sub. When Redis is unreachable each instance keeps delivering to its
// own local connections; cross-instance delivery is lost, not the feature.
type Broker struct {
	rdb    *redis.Client
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	cancel []context.CancelFunc
}

var _ ports.Broker = (*Broker)(nil)

// NewBroker connects to Redis and verifies the connection.
func NewBroker(ctx context.Context, redisURL string, cfg Config, logger *slog.Logger) (*Broker, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}

	return &Broker{
		rdb:    rdb,
		cfg:    cfg,
		logger: logger.With("component", "redis_broker"),
	}, nil
}

// Publish pushes a payload to the shared channel. A failure here means
// the event is delivered locally only; the caller logs and moves on.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.ErrBrokerClosed
	}
	b.mu.Unlock()

	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return err
	}
	return nil
}

// Subscribe starts a background consumer for the channel. The consumer
// reconnects on failure with exponential backoff until the context is
// cancelled or the broker closed.
func (b *Broker) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.ErrBrokerClosed
	}
	subCtx, cancel := context.WithCancel(ctx)
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	go b.consumeLoop(subCtx, channel, handler)
	return nil
}

// consumeLoop runs one subscription, re-establishing it on failure.
func (b *Broker) consumeLoop(ctx context.Context, channel string, handler func(payload []byte)) {
	bo := newBackoff(b.cfg.ReconnectMin, b.cfg.ReconnectMax)

	for {
		if ctx.Err() != nil {
			return
		}

		err := b.consume(ctx, channel, handler, bo.reset)
		if ctx.Err() != nil {
			return
		}

		delay := bo.next()
		b.logger.Warn("subscription lost, running local-only until reconnect",
			"channel", channel,
			"retry_in", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// backoff escalates the retry delay on consecutive failures. A confirmed
// subscription resets it, so a drop after hours of healthy consumption
// retries at the minimum again instead of the last escalated interval.
type backoff struct {
	min, max time.Duration
	cur      time.Duration
}

func newBackoff(min, max time.Duration) *backoff {
	return &backoff{min: min, max: max, cur: min}
}

func (b *backoff) next() time.Duration {
	d := b.cur
	b.cur *= 2
	if b.cur > b.max {
		b.cur = b.max
	}
	return d
}

func (b *backoff) reset() {
	b.cur = b.min
}

// consume blocks on one subscription until it fails or the context ends.
// onSubscribed fires once the subscription is confirmed.
func (b *Broker) consume(ctx context.Context, channel string, handler func(payload []byte), onSubscribed func()) error {
	pubsub := b.rdb.Subscribe(ctx, channel)
	defer pubsub.Close()

	// Wait for subscription confirmation before consuming.
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}

	onSubscribed()
	b.logger.Info("subscribed to fan-out channel", "channel", channel)

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return apperrors.ErrBrokerUnavailable
			}
			handler([]byte(msg.Payload))
		}
	}
}

// Ping reports whether Redis is reachable, for health checks.
func (b *Broker) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Close cancels all subscriptions and closes the Redis connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	cancels := b.cancel
	b.cancel = nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return b.rdb.Close()
}
