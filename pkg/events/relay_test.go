package events

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/lexi/pkg/ai"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
)

func TestShouldTriggerAI(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		participants int
		want         bool
	}{
		{name: "solo chat", content: "hello", participants: 1, want: true},
		{name: "one to one", content: "hello", participants: 2, want: true},
		{name: "group without mention", content: "hello", participants: 3, want: false},
		{name: "group with mention", content: "@lxi hello", participants: 3, want: true},
		{name: "mention is case insensitive", content: "hey @LXI", participants: 5, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ShouldTriggerAI(tt.content, tt.participants, ai.NewMention(DefaultMentionToken)))
		})
	}
}

func (tr *testRelay) transcript(t *testing.T, chatID string) []models.ChatMessage {
	t.Helper()
	msgs, err := tr.chats.GetChatMessages(context.Background(), "owner", chatID)
	require.NoError(t, err)
	return msgs
}

func typingEvents(bus *recordingBus, isTyping bool) int {
	n := 0
	for _, p := range bus.ofType(EventTypeAITyping) {
		if p.event["is_typing"] == isTyping {
			n++
		}
	}
	return n
}

func countContent(msgs []models.ChatMessage, content string) int {
	n := 0
	for _, m := range msgs {
		if m.Content == content {
			n++
		}
	}
	return n
}

func send(sender, content string) models.SendMessageRequest {
	return models.SendMessageRequest{Sender: sender, Content: content}
}

func TestRelay_SendUserMessage_RejectsImpersonation(t *testing.T) {
	tr := newTestRelay(t, nil)
	tr.createChat(t, "c1", "p1")

	_, err := tr.relay.SendUserMessage(context.Background(), "p1", "c1", send("owner", "hi"), nil)
	assert.ErrorIs(t, err, services.ErrForbidden)
	assert.Empty(t, tr.transcript(t, "c1"))
}

func TestRelay_SendUserMessage_RejectsServerOnlyTypes(t *testing.T) {
	tr := newTestRelay(t, nil)
	tr.createChat(t, "c1", "p1")

	for _, typ := range []models.MessageType{models.MessageTypeAI, models.MessageTypeRepositoryChange, "sticker"} {
		t.Run(string(typ), func(t *testing.T) {
			req := send("owner", "trust me")
			req.Type = typ
			_, err := tr.relay.SendUserMessage(context.Background(), "owner", "c1", req, nil)
			require.Error(t, err)
			assert.True(t, services.IsValidationError(err))
		})
	}
	tr.relay.Wait()
	assert.Empty(t, tr.transcript(t, "c1"))
	assert.Empty(t, tr.agent.requests())

	req := send("owner", "plain")
	req.Type = models.MessageTypeText
	saved, err := tr.relay.SendUserMessage(context.Background(), "owner", "c1", req, nil)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, saved.Type)
	tr.relay.Wait()
	assert.Len(t, tr.agent.requests(), 1)
}

func TestRelay_SendUserMessage_OneToOneTriggersAI(t *testing.T) {
	tr := newTestRelay(t, nil)
	tr.createChat(t, "c1", "p1")
	_, err := tr.chats.UpdateChatRepository(context.Background(), "owner", "c1", "lexi-api")
	require.NoError(t, err)

	saved, err := tr.relay.SendUserMessage(context.Background(), "owner", "c1", send("owner", "what does main do?"), nil)
	require.NoError(t, err)
	assert.Equal(t, models.MessageTypeText, saved.Type)
	tr.relay.Wait()

	reqs := tr.agent.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "lexi-api", reqs[0].RepoName)
	assert.Equal(t, "c1", reqs[0].ChatID)

	msgs := tr.transcript(t, "c1")
	last := msgs[len(msgs)-1]
	assert.Equal(t, models.SenderAI, last.Sender)
	assert.Equal(t, models.MessageTypeAI, last.Type)
	assert.Equal(t, "answer", last.Content)

	assert.Equal(t, 1, typingEvents(tr.bus, true))
	assert.Equal(t, 1, typingEvents(tr.bus, false))
	// the human message and the reply, each broadcast once
	assert.Len(t, tr.bus.ofType(EventTypeMessageReceived), 2)
}

func TestRelay_SendUserMessage_GroupChat(t *testing.T) {
	tr := newTestRelay(t, nil)
	tr.createChat(t, "c1", "p1", "p2")

	t.Run("without mention stays quiet", func(t *testing.T) {
		_, err := tr.relay.SendUserMessage(context.Background(), "p1", "c1", send("p1", "hello all"), nil)
		require.NoError(t, err)
		tr.relay.Wait()
		assert.Empty(t, tr.agent.requests())
		assert.Empty(t, tr.bus.ofType(EventTypeAITyping))
	})

	t.Run("mention triggers with explicit repository", func(t *testing.T) {
		repo := "lexi-ui"
		_, err := tr.relay.SendUserMessage(context.Background(), "p1", "c1", send("p1", "@lxi hello"), &repo)
		require.NoError(t, err)
		tr.relay.Wait()

		reqs := tr.agent.requests()
		require.Len(t, reqs, 1)
		assert.Equal(t, "hello", reqs[0].Query)
		assert.Equal(t, "lexi-ui", reqs[0].RepoName)
		assert.Equal(t, 1, countContent(tr.transcript(t, "c1"), "answer"))
	})
}

func TestRelay_AIFailureAppendsOneApology(t *testing.T) {
	tests := []struct {
		name  string
		agent *fakeAgent
	}{
		{name: "upstream error", agent: &fakeAgent{err: fmt.Errorf("query: %w", services.ErrUpstreamTimeout)}},
		{name: "panic", agent: &fakeAgent{panics: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestRelay(t, tt.agent)
			tr.createChat(t, "c1")

			_, err := tr.relay.SendUserMessage(context.Background(), "owner", "c1", send("owner", "hi"), nil)
			require.NoError(t, err)
			tr.relay.Wait()

			assert.Equal(t, 1, countContent(tr.transcript(t, "c1"), ApologyMessage))
			assert.Equal(t, 1, typingEvents(tr.bus, false))
		})
	}
}

func TestRelay_AIBackendTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer backend.Close()

	// The gateway reads history through the same chat service the relay writes to.
	var gw *ai.Gateway
	tr := newTestRelay(t, agentFunc(func(ctx context.Context, userID string, req models.QueryAgentRequest) (*models.AgentResult, error) {
		return gw.QueryAgent(ctx, userID, req)
	}))
	gw = ai.NewGateway(ai.Config{QueryURL: backend.URL, Timeout: 50 * time.Millisecond}, tr.chats, ai.NewLogPublisher())
	tr.createChat(t, "c1", "p1")

	_, err := gw.QueryAgent(context.Background(), "owner", models.QueryAgentRequest{ChatID: "c1", Query: "direct"})
	assert.ErrorIs(t, err, services.ErrUpstreamTimeout)

	_, err = tr.relay.SendUserMessage(context.Background(), "owner", "c1", send("owner", "are you there?"), nil)
	require.NoError(t, err)
	tr.relay.Wait()

	msgs := tr.transcript(t, "c1")
	assert.Equal(t, 1, countContent(msgs, ApologyMessage))
	assert.Equal(t, models.SenderAI, msgs[len(msgs)-1].Sender)
	assert.Equal(t, 1, typingEvents(tr.bus, true))
	assert.Equal(t, 1, typingEvents(tr.bus, false))
}

type agentFunc func(ctx context.Context, userID string, req models.QueryAgentRequest) (*models.AgentResult, error)

func (f agentFunc) QueryAgent(ctx context.Context, userID string, req models.QueryAgentRequest) (*models.AgentResult, error) {
	return f(ctx, userID, req)
}

func TestRelay_NotifyParticipantAdded(t *testing.T) {
	tr := newTestRelay(t, nil)
	tr.relay.NotifyParticipantAdded(context.Background(), "c1", "p2")

	events := tr.bus.ofType(EventTypeParticipantAdded)
	require.Len(t, events, 1)
	assert.Equal(t, "c1", events[0].room)
	assert.Equal(t, "p2", events[0].event["participant_id"])
}
