package api

import (
	"github.com/codeready-toolchain/lexi/pkg/database"
	"github.com/codeready-toolchain/lexi/pkg/models"
)

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status            string                 `json:"status"`
	Version           string                 `json:"version"`
	Checks            map[string]HealthCheck `json:"checks"`
	ActiveConnections int                    `json:"active_connections"`
}

// HealthCheck is the outcome of one component probe.
type HealthCheck struct {
	Status  string               `json:"status"`
	Message string               `json:"message,omitempty"`
	Pool    *database.PoolHealth `json:"pool,omitempty"`
}

// ChatRepositoryResponse is returned by GET /api/chats/:chatId/repository.
type ChatRepositoryResponse struct {
	ChatID         string `json:"chatId"`
	RepositoryName string `json:"repositoryName"`
}

// PinResponse is returned by PUT /api/chats/:chatId/pin.
type PinResponse struct {
	ChatID   string `json:"chatId"`
	IsPinned bool   `json:"isPinned"`
	Changed  bool   `json:"changed"`
}

// ParticipantResponse is returned by the participant routes.
type ParticipantResponse struct {
	ChatID        string `json:"chatId"`
	ParticipantID string `json:"participantId"`
	Changed       bool   `json:"changed"`
}

// RepositoryStatusResponse is returned by GET /api/repositories/:name/status.
type RepositoryStatusResponse struct {
	RepositoryName string                 `json:"repositoryName"`
	Status         models.EmbeddingStatus `json:"status"`
}

// EmbedResponse is returned by POST /api/repositories/embed.
type EmbedResponse struct {
	RepositoryName string `json:"repositoryName"`
	Started        bool   `json:"started"`
}

// SyncResponse is returned by the repository sync trigger.
type SyncResponse struct {
	Count int `json:"count"`
}

// ResetResponse is returned by the embedding status reset trigger.
type ResetResponse struct {
	Reset []string `json:"reset"`
}
