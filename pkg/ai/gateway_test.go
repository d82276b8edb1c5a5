package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
	"github.com/codeready-toolchain/lexi/pkg/version"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticHistory struct {
	messages []models.ChatMessage
	err      error
}

func (h staticHistory) GetChatMessages(context.Context, string, string) ([]models.ChatMessage, error) {
	return h.messages, h.err
}

type recordingPublisher struct {
	mu       sync.Mutex
	topics   []string
	payloads [][]byte
	err      error
}

func (p *recordingPublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.topics = append(p.topics, topic)
	p.payloads = append(p.payloads, payload)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func TestGateway_QueryAgent(t *testing.T) {
	history := staticHistory{messages: []models.ChatMessage{
		{Sender: "u", Content: "hello", Type: models.MessageTypeText},
		{Sender: models.SenderSystem, Content: "lexi-api", Type: models.MessageTypeRepositoryChange},
		{Sender: models.SenderAI, Content: "hi there", Type: models.MessageTypeAI},
		{Sender: "u", Content: "what does main do?", Type: models.MessageTypeText},
	}}

	var got models.QryRequest
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(models.QryResponse{Output: []models.AgentMessage{
			{Type: models.RoleHuman, Content: "what does main do?"},
			{Type: models.RoleAI, Content: "draft"},
			{Type: models.RoleAI, Content: "It starts the server."},
			{Type: "tool", Content: "trace"},
		}})
	}))
	defer server.Close()

	gw := NewGateway(Config{QueryURL: server.URL + "/"}, history, &recordingPublisher{})
	result, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c", RepoName: "lexi-api"})
	require.NoError(t, err)

	assert.Equal(t, "It starts the server.", result.Output)
	assert.Equal(t, "/qry", gotPath)
	assert.Equal(t, "lexi-api", got.QryMetadata.RepoName)
	assert.Equal(t, []models.AgentMessage{
		{Type: models.RoleHuman, Content: "hello"},
		{Type: models.RoleAI, Content: "hi there"},
		{Type: models.RoleHuman, Content: "what does main do?"},
	}, got.QryData.MessageHistory)
}

func TestGateway_QueryAgent_NoAIMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"output":[{"type":"human","content":"x"}]}`))
	}))
	defer server.Close()

	gw := NewGateway(Config{QueryURL: server.URL}, staticHistory{}, &recordingPublisher{})
	result, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c", Query: "x"})
	require.NoError(t, err)
	assert.Equal(t, NoResponseOutput, result.Output)
}

func TestGateway_QueryAgent_Errors(t *testing.T) {
	t.Run("non success status", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte("model overloaded"))
		}))
		defer server.Close()

		gw := NewGateway(Config{QueryURL: server.URL}, staticHistory{}, &recordingPublisher{})
		_, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c"})

		var ue *services.UpstreamError
		require.ErrorAs(t, err, &ue)
		assert.Equal(t, http.StatusBadGateway, ue.StatusCode)
		assert.Equal(t, "model overloaded", ue.Body)
	})

	t.Run("oversized answer", func(t *testing.T) {
		var userAgent string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userAgent = r.Header.Get("User-Agent")
			_, _ = w.Write([]byte(`{"output":[{"type":"ai","content":"` + strings.Repeat("x", 256) + `"}]}`))
		}))
		defer server.Close()

		gw := NewGateway(Config{QueryURL: server.URL, MaxResponseBytes: 64}, staticHistory{}, &recordingPublisher{})
		result, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c"})
		assert.Nil(t, result)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 64 bytes")
		assert.Equal(t, version.Full(), userAgent)
	})

	t.Run("timeout", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		}))
		defer server.Close()

		gw := NewGateway(Config{QueryURL: server.URL, Timeout: 50 * time.Millisecond}, staticHistory{}, &recordingPublisher{})
		result, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c"})
		assert.Nil(t, result)
		assert.ErrorIs(t, err, services.ErrUpstreamTimeout)
	})

	t.Run("history failure", func(t *testing.T) {
		gw := NewGateway(Config{QueryURL: "http://unused"}, staticHistory{err: services.ErrForbidden}, &recordingPublisher{})
		_, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{ChatID: "c"})
		assert.ErrorIs(t, err, services.ErrForbidden)
	})

	t.Run("chat id required", func(t *testing.T) {
		gw := NewGateway(Config{QueryURL: "http://unused"}, staticHistory{}, &recordingPublisher{})
		_, err := gw.QueryAgent(context.Background(), "u", models.QueryAgentRequest{})
		assert.True(t, services.IsValidationError(err))
	})
}

func TestGateway_EmbedRepository(t *testing.T) {
	pub := &recordingPublisher{}
	gw := NewGateway(Config{}, staticHistory{}, pub)

	cmd := models.CmdRequest{
		CmdType:     models.CmdTypeEmbedRepo,
		CmdMetadata: models.CmdMetadata{RepoName: "lexi-api"},
		CmdData:     map[string]any{},
		CmdResult:   map[string]any{},
	}
	require.NoError(t, gw.EmbedRepository(context.Background(), cmd))

	require.Len(t, pub.topics, 1)
	assert.Equal(t, DefaultEmbedTopic, pub.topics[0])
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(pub.payloads[0], &decoded))
	assert.Equal(t, "embed_repo", decoded["cmd_type"])
	assert.Equal(t, "lexi-api", decoded["cmd_metadata"].(map[string]any)["repo_name"])

	pub.err = errors.New("broker down")
	assert.Error(t, gw.EmbedRepository(context.Background(), cmd))
}
