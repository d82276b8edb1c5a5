package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PoolHealth is the outcome of a database probe: ping latency plus the
// connection pool usage at that moment.
type PoolHealth struct {
	LatencyMS int64 `json:"latency_ms"`
	Open      int   `json:"open"`
	InUse     int   `json:"in_use"`
	Idle      int   `json:"idle"`
	MaxOpen   int   `json:"max_open"`
	WaitCount int64 `json:"wait_count"`
	WaitMS    int64 `json:"wait_ms"`
}

// Health pings db and reports its pool usage.
func Health(ctx context.Context, db *sql.DB) (*PoolHealth, error) {
	start := time.Now()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping: %w", err)
	}
	latency := time.Since(start)

	stats := db.Stats()
	return &PoolHealth{
		LatencyMS: latency.Milliseconds(),
		Open:      stats.OpenConnections,
		InUse:     stats.InUse,
		Idle:      stats.Idle,
		MaxOpen:   stats.MaxOpenConnections,
		WaitCount: stats.WaitCount,
		WaitMS:    stats.WaitDuration.Milliseconds(),
	}, nil
}
