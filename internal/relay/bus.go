package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Bus forwards events between server nodes so a member connected to one node
// can receive events raised on another.
type Bus interface {
	Publish(ctx context.Context, env Envelope) error
	StartForwarder(ctx context.Context, onMsg func(env Envelope)) error
	Close() error
}

// RedisBus implements Bus with Redis pub/sub. Pub/sub is fire-and-forget,
// which matches the relay's best-effort delivery.
type RedisBus struct {
	logger  *slog.Logger
	rdb     *goredis.Client
	channel string
}

// NewRedisBus connects to addr and verifies the connection with PING.
func NewRedisBus(addr, channel string, logger *slog.Logger) (*RedisBus, error) {
	if addr == "" {
		return nil, fmt.Errorf("relay: redis address required")
	}
	if channel == "" {
		channel = "skillswap:relay"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("relay: redis ping: %w", err)
	}

	return &RedisBus{
		logger:  logger.With(slog.String("component", "relay_bus")),
		rdb:     rdb,
		channel: channel,
	}, nil
}

// Publish sends env to every subscribed node.
func (b *RedisBus) Publish(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("relay: encoding envelope: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes to the channel and calls onMsg for each envelope
// until ctx is cancelled. It returns once the subscription is confirmed.
func (b *RedisBus) StartForwarder(ctx context.Context, onMsg func(env Envelope)) error {
	if onMsg == nil {
		return fmt.Errorf("relay: onMsg callback required")
	}

	sub := b.rdb.Subscribe(ctx, b.channel)

	// Receive blocks until Redis confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("relay: redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var env Envelope
				if err := json.Unmarshal([]byte(m.Payload), &env); err != nil {
					b.logger.Warn("bad relay payload", slog.String("error", err.Error()))
					continue
				}
				onMsg(env)
			}
		}
	}()

	return nil
}

// Close releases the Redis connection pool.
func (b *RedisBus) Close() error {
	return b.rdb.Close()
}
