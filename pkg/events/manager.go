package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/codeready-toolchain/lexi/pkg/metrics"
)

const (
	// DefaultWriteTimeout bounds one write to one connection.
	DefaultWriteTimeout = 10 * time.Second

	readLimit      = 1 << 20
	publishTimeout = 5 * time.Second
)

// ActionHandler executes client actions the manager does not handle itself.
// A returned error is reported to the sending connection only.
type ActionHandler interface {
	HandleAction(ctx context.Context, conn *Connection, msg ClientMessage) error
}

// ConnectionManager owns the process-local relay state: open connections,
// the user behind each one, and room membership. Events published through
// it travel over the configured Bus and come back through Deliver.
type ConnectionManager struct {
	mu          sync.RWMutex
	connections map[string]*Connection // connection id → connection
	userConns   map[string]int         // user id → open connections

	roomMu sync.RWMutex
	rooms  map[string]map[string]bool // chat id → connection ids

	bus          Bus
	actions      ActionHandler
	writeTimeout time.Duration
}

// Connection is one authenticated WebSocket.
type Connection struct {
	ID     string
	UserID string
	Conn   *websocket.Conn
	rooms  map[string]bool // guarded by ConnectionManager.roomMu
	ctx    context.Context
	cancel context.CancelFunc
}

// NewConnectionManager creates a manager delivering through a LocalBus.
func NewConnectionManager(writeTimeout time.Duration) *ConnectionManager {
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}
	m := &ConnectionManager{
		connections:  make(map[string]*Connection),
		userConns:    make(map[string]int),
		rooms:        make(map[string]map[string]bool),
		writeTimeout: writeTimeout,
	}
	local := NewLocalBus()
	_ = local.Start(context.Background(), m.Deliver)
	m.bus = local
	return m
}

// UseBus starts bus and routes every later publish through it.
// Call before serving connections.
func (m *ConnectionManager) UseBus(ctx context.Context, bus Bus) error {
	if err := bus.Start(ctx, m.Deliver); err != nil {
		return fmt.Errorf("failed to start relay bus: %w", err)
	}
	m.bus = bus
	return nil
}

// SetActionHandler installs the handler for room and chat actions.
func (m *ConnectionManager) SetActionHandler(h ActionHandler) {
	m.actions = h
}

// Close stops the bus.
func (m *ConnectionManager) Close(ctx context.Context) error {
	return m.bus.Close(ctx)
}

// HandleConnection serves one authenticated connection until it closes.
func (m *ConnectionManager) HandleConnection(parentCtx context.Context, conn *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()
	conn.SetReadLimit(readLimit)

	c := &Connection{
		ID:     uuid.New().String(),
		UserID: userID,
		Conn:   conn,
		rooms:  make(map[string]bool),
		ctx:    ctx,
		cancel: cancel,
	}

	first := m.registerConnection(c)
	defer m.unregisterConnection(c)

	m.sendJSON(c, ConnectionEstablishedPayload{
		Type:         EventTypeConnectionEstablished,
		ConnectionID: c.ID,
		UserID:       userID,
	})
	if first {
		m.BroadcastPresence(ctx, userID, true)
	}

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			m.sendError(c, "", "invalid message format")
			continue
		}
		m.handleClientMessage(ctx, c, msg)
	}
}

// Publish sends a typed event to a room through the bus. Failures are logged
// and never returned; relay delivery is best-effort.
func (m *ConnectionManager) Publish(ctx context.Context, room, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal relay event", "type", eventType, "error", err)
		return
	}
	metrics.Broadcasts.WithLabelValues(eventType).Inc()
	if err := m.bus.Publish(ctx, room, data); err != nil {
		slog.Warn("Failed to publish relay event", "room", room, "type", eventType, "error", err)
	}
}

// Deliver writes event to every local connection in room. GlobalRoom
// addresses every connection.
func (m *ConnectionManager) Deliver(room string, event []byte) {
	for _, c := range m.members(room) {
		if err := m.sendRaw(c, event); err != nil {
			metrics.BroadcastFailures.Inc()
			slog.Warn("Failed to deliver to connection",
				"connection_id", c.ID, "room", room, "error", err)
		}
	}
}

// BroadcastPresence announces that userID came online or went offline.
func (m *ConnectionManager) BroadcastPresence(ctx context.Context, userID string, online bool) {
	eventType := EventTypeUserOffline
	if online {
		eventType = EventTypeUserOnline
	}
	m.Publish(ctx, GlobalRoom, eventType, PresencePayload{Type: eventType, UserID: userID})
}

// Join adds the connection to a chat room.
func (m *ConnectionManager) Join(c *Connection, chatID string) error {
	if chatID == "" || chatID == GlobalRoom {
		return fmt.Errorf("invalid chat id %q", chatID)
	}
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	if m.rooms[chatID] == nil {
		m.rooms[chatID] = make(map[string]bool)
	}
	m.rooms[chatID][c.ID] = true
	c.rooms[chatID] = true
	return nil
}

// Leave removes the connection from a chat room. Leaving a room the
// connection is not in is a no-op.
func (m *ConnectionManager) Leave(c *Connection, chatID string) {
	m.roomMu.Lock()
	defer m.roomMu.Unlock()
	m.leaveLocked(c, chatID)
}

// InRoom reports whether the connection has joined chatID.
func (m *ConnectionManager) InRoom(c *Connection, chatID string) bool {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	return c.rooms[chatID]
}

// ActiveConnections returns the number of open connections.
func (m *ConnectionManager) ActiveConnections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// IsOnline reports whether userID has at least one open connection here.
func (m *ConnectionManager) IsOnline(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.userConns[userID] > 0
}

func (m *ConnectionManager) roomSize(chatID string) int {
	m.roomMu.RLock()
	defer m.roomMu.RUnlock()
	return len(m.rooms[chatID])
}

func (m *ConnectionManager) handleClientMessage(ctx context.Context, c *Connection, msg ClientMessage) {
	switch msg.Action {
	case ActionPing:
		m.sendJSON(c, map[string]string{"type": EventTypePong})
	case ActionLeaveChat:
		m.Leave(c, msg.ChatID)
	default:
		if m.actions == nil {
			m.sendError(c, msg.Action, "unknown action: "+msg.Action)
			return
		}
		if err := m.actions.HandleAction(ctx, c, msg); err != nil {
			m.sendError(c, msg.Action, err.Error())
		}
	}
}

func (m *ConnectionManager) members(room string) []*Connection {
	if room == GlobalRoom {
		m.mu.RLock()
		defer m.mu.RUnlock()
		out := make([]*Connection, 0, len(m.connections))
		for _, c := range m.connections {
			out = append(out, c)
		}
		return out
	}

	m.roomMu.RLock()
	ids := make([]string, 0, len(m.rooms[room]))
	for id := range m.rooms[room] {
		ids = append(ids, id)
	}
	m.roomMu.RUnlock()

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Connection, 0, len(ids))
	for _, id := range ids {
		if c, ok := m.connections[id]; ok {
			out = append(out, c)
		}
	}
	return out
}

// registerConnection reports whether c is the user's first open connection.
func (m *ConnectionManager) registerConnection(c *Connection) bool {
	m.mu.Lock()
	m.connections[c.ID] = c
	m.userConns[c.UserID]++
	first := m.userConns[c.UserID] == 1
	m.mu.Unlock()

	metrics.WSConnections.Inc()
	if first {
		metrics.OnlineUsers.Inc()
	}
	slog.Debug("WebSocket connected", "connection_id", c.ID, "user_id", c.UserID)
	return first
}

func (m *ConnectionManager) unregisterConnection(c *Connection) {
	m.roomMu.Lock()
	for chatID := range c.rooms {
		m.leaveLocked(c, chatID)
	}
	m.roomMu.Unlock()

	m.mu.Lock()
	delete(m.connections, c.ID)
	m.userConns[c.UserID]--
	last := m.userConns[c.UserID] <= 0
	if last {
		delete(m.userConns, c.UserID)
	}
	m.mu.Unlock()

	metrics.WSConnections.Dec()
	c.cancel()
	_ = c.Conn.Close(websocket.StatusNormalClosure, "")

	if last {
		metrics.OnlineUsers.Dec()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		m.BroadcastPresence(ctx, c.UserID, false)
	}
	slog.Debug("WebSocket disconnected", "connection_id", c.ID, "user_id", c.UserID)
}

func (m *ConnectionManager) leaveLocked(c *Connection, chatID string) {
	delete(c.rooms, chatID)
	if members := m.rooms[chatID]; members != nil {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(m.rooms, chatID)
		}
	}
}

func (m *ConnectionManager) sendError(c *Connection, action, message string) {
	m.sendJSON(c, ErrorPayload{Type: EventTypeError, Action: action, Message: message})
}

func (m *ConnectionManager) sendJSON(c *Connection, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal WebSocket message", "error", err)
		return
	}
	if err := m.sendRaw(c, data); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("Failed to send WebSocket message", "connection_id", c.ID, "error", err)
	}
}

func (m *ConnectionManager) sendRaw(c *Connection, data []byte) error {
	writeCtx, cancel := context.WithTimeout(c.ctx, m.writeTimeout)
	defer cancel()
	return c.Conn.Write(writeCtx, websocket.MessageText, data)
}
