// Package models contains request/response models and business domain types.
package models

import (
	"slices"
	"time"
)

// Chat is the state held by a chat entity.
//
// IsPinned is a per-viewer projection merged in by the chat service from the
// viewer's chat index. It is never persisted on the chat entity.
type Chat struct {
	ID                   string        `json:"id"`
	Name                 string        `json:"name"`
	OwnerID              string        `json:"ownerId"`
	ParticipantIDs       []string      `json:"participantIds"`
	Messages             []ChatMessage `json:"messages"`
	LastModified         time.Time     `json:"lastModified"`
	Timestamp            time.Time     `json:"timestamp"`
	CurrentRepository    *string       `json:"currentRepository,omitempty"`
	LastRepositoryChange *time.Time    `json:"lastRepositoryChange,omitempty"`
	IsDisabled           bool          `json:"isDisabled"`
	IsPinned             bool          `json:"isPinned"`
}

// Touch refreshes LastModified.
func (c *Chat) Touch(now time.Time) {
	c.LastModified = now
}

// HasParticipant reports whether userID is in the participant list.
func (c *Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.ParticipantIDs, userID)
}

// IsOwner reports whether userID owns the chat.
func (c *Chat) IsOwner(userID string) bool {
	return c.OwnerID == userID
}

// FindMessage returns the index of the message with the given id, or -1.
func (c *Chat) FindMessage(messageID string) int {
	return slices.IndexFunc(c.Messages, func(m ChatMessage) bool { return m.ID == messageID })
}

// WithPinned returns a shallow copy of the chat carrying the viewer's pinned flag.
func (c Chat) WithPinned(pinned bool) Chat {
	c.IsPinned = pinned
	return c
}

// CreateChatRequest is the body of POST /api/chats.
type CreateChatRequest struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	ParticipantIDs []string `json:"participantIds"`
}

// RenameChatRequest is the body of PUT /api/chats/:chatId/rename.
type RenameChatRequest struct {
	Name string `json:"name"`
}

// PinChatRequest is the body of PUT /api/chats/:chatId/pin.
type PinChatRequest struct {
	IsPinned bool `json:"isPinned"`
}

// UpdateRepositoryRequest is the body of PUT /api/chats/:chatId/repository.
type UpdateRepositoryRequest struct {
	RepositoryName string `json:"repositoryName"`
}
