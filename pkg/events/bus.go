package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// DeliverFunc hands a published event to the local connections of a room.
type DeliverFunc func(room string, event []byte)

// Bus fans room events out to every relay replica, including the publisher.
type Bus interface {
	// Start begins delivering published events to deliver. Called once.
	Start(ctx context.Context, deliver DeliverFunc) error
	Publish(ctx context.Context, room string, event []byte) error
	Close(ctx context.Context) error
}

// envelope is the wire form used by the distributed buses.
type envelope struct {
	Room  string          `json:"room"`
	Event json.RawMessage `json:"event"`
}

func decodeEnvelope(raw []byte) (envelope, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, fmt.Errorf("failed to decode bus envelope: %w", err)
	}
	if env.Room == "" {
		return env, fmt.Errorf("bus envelope without room")
	}
	return env, nil
}

// LocalBus delivers in-process, synchronously, in publish order.
// It is the single-replica bus.
type LocalBus struct {
	deliver DeliverFunc
}

// NewLocalBus creates a LocalBus.
func NewLocalBus() *LocalBus {
	return &LocalBus{}
}

// Start records deliver.
func (b *LocalBus) Start(_ context.Context, deliver DeliverFunc) error {
	b.deliver = deliver
	return nil
}

// Publish delivers event before returning.
func (b *LocalBus) Publish(_ context.Context, room string, event []byte) error {
	if b.deliver == nil {
		return fmt.Errorf("local bus not started")
	}
	b.deliver(room, event)
	return nil
}

// Close is a no-op.
func (b *LocalBus) Close(context.Context) error { return nil }

// DefaultRedisChannel is the Redis pub/sub channel carrying relay envelopes.
const DefaultRedisChannel = "lexi:relay"

// RedisBus distributes room events over one Redis pub/sub channel.
// Redis preserves publish order per connection, so events published by one
// replica on one room arrive everywhere in the same order.
type RedisBus struct {
	rdb     *goredis.Client
	channel string
	sub     *goredis.PubSub
	done    chan struct{}
	logger  *slog.Logger
}

// NewRedisBus creates a bus on rdb after checking the server answers.
// The client is owned by the caller.
func NewRedisBus(ctx context.Context, rdb *goredis.Client, channel string) (*RedisBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = DefaultRedisChannel
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisBus{
		rdb:     rdb,
		channel: channel,
		logger:  slog.Default().With("component", "redis-bus", "channel", channel),
	}, nil
}

// Start subscribes and forwards every envelope to deliver until ctx ends or
// Close is called.
func (b *RedisBus) Start(ctx context.Context, deliver DeliverFunc) error {
	if deliver == nil {
		return fmt.Errorf("deliver callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	// ensures the subscription is live before the first Publish
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.sub = sub
	b.done = make(chan struct{})

	go func() {
		defer close(b.done)
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				env, err := decodeEnvelope([]byte(m.Payload))
				if err != nil {
					b.logger.Warn("Dropping bad relay payload", "error", err)
					continue
				}
				deliver(env.Room, env.Event)
			}
		}
	}()

	b.logger.Info("Redis relay bus started")
	return nil
}

// Publish sends event to every replica subscribed to the channel.
func (b *RedisBus) Publish(ctx context.Context, room string, event []byte) error {
	raw, err := json.Marshal(envelope{Room: room, Event: event})
	if err != nil {
		return fmt.Errorf("failed to encode bus envelope: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// Close stops the forwarder.
func (b *RedisBus) Close(context.Context) error {
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	<-b.done
	return err
}
