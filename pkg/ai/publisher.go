package ai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CommandPublisher delivers command payloads to a pub/sub topic.
type CommandPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Close() error
}

// RedisPublisher publishes commands with Redis PUBLISH.
type RedisPublisher struct {
	rdb *goredis.Client
}

// NewRedisPublisher wraps rdb after checking the server answers.
func NewRedisPublisher(ctx context.Context, rdb *goredis.Client) (*RedisPublisher, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisPublisher{rdb: rdb}, nil
}

// Publish sends payload on topic. Delivery is at most once.
func (p *RedisPublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	receivers, err := p.rdb.Publish(ctx, topic, payload).Result()
	if err != nil {
		return err
	}
	if receivers == 0 {
		slog.Warn("Command published with no subscribers", "topic", topic)
	}
	return nil
}

// Close is a no-op; the client is owned by the caller.
func (p *RedisPublisher) Close() error { return nil }

// LogPublisher only logs commands. Used when no broker is configured.
type LogPublisher struct {
	logger *slog.Logger
}

// NewLogPublisher creates a LogPublisher.
func NewLogPublisher() *LogPublisher {
	return &LogPublisher{logger: slog.Default().With("component", "log-publisher")}
}

// Publish logs the command.
func (p *LogPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.logger.Info("Command not delivered, no broker configured",
		"topic", topic,
		"bytes", len(payload))
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
