// Package ai is the gateway to the external AI backend: history-based
// queries over HTTP and fire-and-forget embedding commands over pub/sub.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/metrics"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/version"
)

const (
	// DefaultQueryTimeout bounds one AI backend query.
	DefaultQueryTimeout = 120 * time.Second

	// DefaultEmbedTopic is the pub/sub topic embedding commands are published on.
	DefaultEmbedTopic = "LEXI_CMD_WORKFLOWS"

	// DefaultMaxResponseBytes caps the query answer read into memory.
	DefaultMaxResponseBytes = 10 << 20

	// NoResponseOutput is returned when the backend answered without any ai message.
	NoResponseOutput = "No response generated from AI agent."

	serviceName = "ai-backend"
)

// HistoryProvider returns a chat transcript visible to a user.
type HistoryProvider interface {
	GetChatMessages(ctx context.Context, userID, chatID string) ([]models.ChatMessage, error)
}

// Config configures the gateway.
type Config struct {
	// QueryURL is the base URL of the query backend; requests go to QueryURL + "/qry".
	QueryURL         string
	Timeout          time.Duration
	EmbedTopic       string
	MaxResponseBytes int64
}

// Gateway talks to the AI backend.
type Gateway struct {
	httpClient *http.Client
	cfg        Config
	history    HistoryProvider
	publisher  CommandPublisher
	logger     *slog.Logger
}

// NewGateway creates a gateway.
func NewGateway(cfg Config, history HistoryProvider, publisher CommandPublisher) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQueryTimeout
	}
	if cfg.EmbedTopic == "" {
		cfg.EmbedTopic = DefaultEmbedTopic
	}
	if cfg.MaxResponseBytes <= 0 {
		cfg.MaxResponseBytes = DefaultMaxResponseBytes
	}
	cfg.QueryURL = strings.TrimRight(cfg.QueryURL, "/")
	return &Gateway{
		httpClient: &http.Client{},
		cfg:        cfg,
		history:    history,
		publisher:  publisher,
		logger:     slog.Default().With("component", "ai-gateway"),
	}
}

// QueryAgent sends the chat's history to the backend and returns the last
// ai message of the answer. A deadline hit yields services.ErrUpstreamTimeout
// and a non-2xx answer a *services.UpstreamError.
func (g *Gateway) QueryAgent(ctx context.Context, userID string, req models.QueryAgentRequest) (*models.AgentResult, error) {
	if req.ChatID == "" {
		return nil, services.NewValidationError("chatId", "required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages, err := g.history.GetChatMessages(ctx, userID, req.ChatID)
	if err != nil {
		return nil, fmt.Errorf("failed to load chat history: %w", err)
	}
	history := MapHistory(messages)
	if len(history) == 0 && req.Query != "" {
		history = append(history, models.AgentMessage{Type: models.RoleHuman, Content: req.Query})
	}

	qry := models.QryRequest{
		QryMetadata: models.QryMetadata{RepoName: req.RepoName},
		QryData:     models.QryData{MessageHistory: history},
	}

	start := time.Now()
	resp, err := g.postQuery(ctx, qry)
	metrics.AIQueryDuration.WithLabelValues(outcome(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		g.logger.Error("AI query failed",
			"chat_id", req.ChatID,
			"repository", req.RepoName,
			"messages", len(history),
			"error", err)
		return nil, err
	}

	return &models.AgentResult{Output: LastAIMessage(resp.Output)}, nil
}

// EmbedRepository publishes an embedding command and returns without
// waiting for the run.
func (g *Gateway) EmbedRepository(ctx context.Context, cmd models.CmdRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}
	if err := g.publisher.Publish(ctx, g.cfg.EmbedTopic, payload); err != nil {
		metrics.EmbeddingCommands.WithLabelValues(metrics.OutcomeError).Inc()
		return fmt.Errorf("failed to publish embedding command: %w", err)
	}
	metrics.EmbeddingCommands.WithLabelValues(metrics.OutcomeSuccess).Inc()
	g.logger.Info("Embedding command published",
		"repository", cmd.CmdMetadata.RepoName,
		"topic", g.cfg.EmbedTopic)
	return nil
}

func (g *Gateway) postQuery(ctx context.Context, qry models.QryRequest) (*models.QryResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	body, err := json.Marshal(qry)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.QueryURL+"/qry", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("User-Agent", version.Full())

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("query after %s: %w", g.cfg.Timeout, services.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("query AI backend: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, g.cfg.MaxResponseBytes+1))
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("read answer after %s: %w", g.cfg.Timeout, services.ErrUpstreamTimeout)
		}
		return nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(raw)) > g.cfg.MaxResponseBytes {
		return nil, fmt.Errorf("answer exceeds %d bytes", g.cfg.MaxResponseBytes)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &services.UpstreamError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Body:       string(raw),
		}
	}

	var out models.QryResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode AI backend answer: %w", err)
	}
	return &out, nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess
	case errors.Is(err, services.ErrUpstreamTimeout):
		return metrics.OutcomeTimeout
	}
	return metrics.OutcomeError
}
