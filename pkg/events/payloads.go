package events

import (
	"github.com/codeready-toolchain/lexi/pkg/models"
)

// SendMessageEnvelope is the message carried by a send_message action.
type SendMessageEnvelope = models.SendMessageRequest

// ConnectionEstablishedPayload is sent once to a connection after it registers.
type ConnectionEstablishedPayload struct {
	Type         string `json:"type"` // always EventTypeConnectionEstablished
	ConnectionID string `json:"connection_id"`
	UserID       string `json:"user_id"`
}

// ChatJoinedPayload confirms a join_chat to the joining connection only.
type ChatJoinedPayload struct {
	Type   string `json:"type"` // always EventTypeChatJoined
	ChatID string `json:"chat_id"`
}

// MessageReceivedPayload is the payload for message.received events.
// Published to the chat's room whenever a message is appended.
type MessageReceivedPayload struct {
	Type    string             `json:"type"` // always EventTypeMessageReceived
	ChatID  string             `json:"chat_id"`
	Message models.ChatMessage `json:"message"`
}

// TypingStatusPayload is the payload for typing.status events.
type TypingStatusPayload struct {
	Type     string `json:"type"` // always EventTypeTypingStatus
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

// AITypingPayload is the payload for ai.typing events.
type AITypingPayload struct {
	Type     string `json:"type"` // always EventTypeAITyping
	ChatID   string `json:"chat_id"`
	IsTyping bool   `json:"is_typing"`
}

// PresencePayload is the payload for user.online and user.offline events.
// Published to GlobalRoom.
type PresencePayload struct {
	Type   string `json:"type"`
	UserID string `json:"user_id"`
}

// RepositoryChangedPayload is the payload for repository.changed events.
type RepositoryChangedPayload struct {
	Type           string `json:"type"` // always EventTypeRepositoryChanged
	ChatID         string `json:"chat_id"`
	RepositoryName string `json:"repository_name"`
	UserID         string `json:"user_id"`
}

// ParticipantAddedPayload is the payload for participant.added events.
type ParticipantAddedPayload struct {
	Type          string `json:"type"` // always EventTypeParticipantAdded
	ChatID        string `json:"chat_id"`
	ParticipantID string `json:"participant_id"`
}

// EmbeddingStatusPayload is the payload for embedding.status_changed events.
// Published to GlobalRoom so repository pickers refresh everywhere.
type EmbeddingStatusPayload struct {
	Type           string                 `json:"type"` // always EventTypeEmbeddingStatus
	RepositoryName string                 `json:"repository_name"`
	Status         models.EmbeddingStatus `json:"status"`
	Message        string                 `json:"message"`
	Timestamp      string                 `json:"timestamp"` // RFC3339Nano
}

// ErrorPayload reports a rejected client action to the sending connection only.
type ErrorPayload struct {
	Type    string `json:"type"` // always EventTypeError
	Action  string `json:"action,omitempty"`
	Message string `json:"message"`
}
