package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DefaultNotifyChannel is the PostgreSQL NOTIFY channel carrying relay envelopes.
const DefaultNotifyChannel = "lexi_relay"

// notifyLimit keeps payloads under PostgreSQL's 8000-byte NOTIFY limit.
const notifyLimit = 7900

// PGNotifyBus distributes room events with pg_notify and receives them on a
// dedicated LISTEN connection. Oversized events are replaced by a truncation
// marker telling clients to re-fetch the chat.
type PGNotifyBus struct {
	db         *sql.DB
	connString string
	channel    string
	listener   *NotifyListener
}

// NewPGNotifyBus creates a bus publishing through db and listening on a
// separate connection opened from connString.
func NewPGNotifyBus(db *sql.DB, connString, channel string) *PGNotifyBus {
	if channel == "" {
		channel = DefaultNotifyChannel
	}
	return &PGNotifyBus{db: db, connString: connString, channel: channel}
}

// Start opens the LISTEN connection and forwards notifications to deliver.
func (b *PGNotifyBus) Start(ctx context.Context, deliver DeliverFunc) error {
	if deliver == nil {
		return fmt.Errorf("deliver callback required")
	}
	b.listener = NewNotifyListener(b.connString, func(_ string, payload string) {
		env, err := decodeEnvelope([]byte(payload))
		if err != nil {
			slog.Warn("Dropping bad NOTIFY payload", "channel", b.channel, "error", err)
			return
		}
		deliver(env.Room, env.Event)
	})
	if err := b.listener.Start(ctx); err != nil {
		return err
	}
	if err := b.listener.Subscribe(ctx, b.channel); err != nil {
		b.listener.Stop(ctx)
		return err
	}
	return nil
}

// Publish broadcasts event via NOTIFY. Nothing is persisted.
func (b *PGNotifyBus) Publish(ctx context.Context, room string, event []byte) error {
	payload, err := notifyPayload(room, event)
	if err != nil {
		return err
	}
	if _, err := b.db.ExecContext(ctx, "SELECT pg_notify($1, $2)", b.channel, payload); err != nil {
		return fmt.Errorf("pg_notify failed: %w", err)
	}
	return nil
}

// Close stops the listener.
func (b *PGNotifyBus) Close(ctx context.Context) error {
	if b.listener != nil {
		b.listener.Stop(ctx)
	}
	return nil
}

// notifyPayload wraps event for a room, truncating it when the result would
// exceed the NOTIFY limit.
func notifyPayload(room string, event []byte) (string, error) {
	raw, err := json.Marshal(envelope{Room: room, Event: event})
	if err != nil {
		return "", fmt.Errorf("failed to encode bus envelope: %w", err)
	}
	if len(raw) <= notifyLimit {
		return string(raw), nil
	}

	truncated, err := truncatedEvent(event)
	if err != nil {
		return "", err
	}
	raw, err = json.Marshal(envelope{Room: room, Event: truncated})
	if err != nil {
		return "", fmt.Errorf("failed to encode truncated envelope: %w", err)
	}
	return string(raw), nil
}

// truncatedEvent keeps only the routing fields a client needs to re-fetch
// the chat the event was about.
func truncatedEvent(event []byte) ([]byte, error) {
	var routing struct {
		Type   string `json:"type"`
		ChatID string `json:"chat_id,omitempty"`
	}
	if err := json.Unmarshal(event, &routing); err != nil {
		return nil, fmt.Errorf("failed to extract routing fields for truncation: %w", err)
	}
	out, err := json.Marshal(map[string]any{
		"type":      routing.Type,
		"chat_id":   routing.ChatID,
		"truncated": true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal truncated payload: %w", err)
	}
	return out, nil
}
