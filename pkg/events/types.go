// Package events is the real-time relay: WebSocket connections, chat rooms,
// presence tracking and the room bus used to fan events out across replicas.
//
// Rooms are chat ids. A connection only receives a room's events after a
// successful join_chat, and everything published on GlobalRoom reaches every
// open connection (presence and embedding status). Room state lives in
// process memory and is rebuilt from connect/join calls; clients catch up by
// re-fetching chat state over HTTP, never by relay replay.
package events

// Server → client event types.
const (
	EventTypeConnectionEstablished = "connection.established"
	EventTypeChatJoined            = "chat.joined"
	EventTypeMessageReceived       = "message.received"
	EventTypeTypingStatus          = "typing.status"
	EventTypeAITyping              = "ai.typing"
	EventTypeUserOnline            = "user.online"
	EventTypeUserOffline           = "user.offline"
	EventTypeRepositoryChanged     = "repository.changed"
	EventTypeParticipantAdded      = "participant.added"
	EventTypeEmbeddingStatus       = "embedding.status_changed"
	EventTypeError                 = "error"
	EventTypePong                  = "pong"
)

// Client → server actions.
const (
	ActionJoinChat          = "join_chat"
	ActionLeaveChat         = "leave_chat"
	ActionSendMessage       = "send_message"
	ActionTyping            = "typing"
	ActionParticipantAdded  = "participant_added"
	ActionRepositoryChanged = "repository_changed"
	ActionAITyping          = "ai_typing"
	ActionPing              = "ping"
)

// GlobalRoom addresses every open connection.
const GlobalRoom = "*"

// ClientMessage is the JSON structure for client → server WebSocket messages.
type ClientMessage struct {
	Action         string               `json:"action"`
	ChatID         string               `json:"chat_id,omitempty"`
	IsTyping       bool                 `json:"is_typing,omitempty"`
	ParticipantID  string               `json:"participant_id,omitempty"`
	RepositoryName string               `json:"repository_name,omitempty"`
	Message        *SendMessageEnvelope `json:"message,omitempty"`
}
