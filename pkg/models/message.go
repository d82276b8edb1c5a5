package models

import "time"

// MessageType tags a chat message.
type MessageType string

const (
	MessageTypeText             MessageType = "text"
	MessageTypeAI               MessageType = "ai"
	MessageTypeRepositoryChange MessageType = "repository_change"
)

// Sentinel sender ids for messages not authored by a user.
const (
	SenderSystem = "System"
	SenderAI     = "ai"
)

// ChatMessage is one entry of a chat transcript. Messages are immutable once
// appended; the only mutation is deletion by the sender.
type ChatMessage struct {
	ID        string      `json:"id"`
	ChatID    string      `json:"chatId"`
	Sender    string      `json:"sender"`
	Content   string      `json:"content"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
}

// SendMessageRequest is the body of POST /api/chats/:chatId/messages and the
// payload of the send_message realtime action.
type SendMessageRequest struct {
	ID             string      `json:"id,omitempty"`
	Content        string      `json:"content"`
	Sender         string      `json:"sender"`
	Type           MessageType `json:"type,omitempty"`
	RepositoryName *string     `json:"repositoryName,omitempty"`
}
