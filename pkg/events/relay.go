package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeready-toolchain/lexi/pkg/ai"
	"github.com/codeready-toolchain/lexi/pkg/metrics"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/services"
)

const (
	// DefaultMentionToken addresses the assistant in group chats.
	DefaultMentionToken = "@lxi"

	// ApologyMessage is appended when an automatic AI reply fails.
	ApologyMessage = "Sorry, I'm having trouble processing your request right now. Please try again."

	// maxDirectParticipants is the largest chat in which every message is
	// answered without a mention.
	maxDirectParticipants = 2
)

// ChatBackend is the part of the chat service the relay depends on.
type ChatBackend interface {
	GetChatByID(ctx context.Context, userID, chatID string) (*models.Chat, error)
	AddChatMessage(ctx context.Context, userID, chatID string, msg models.ChatMessage) (*models.ChatMessage, error)
	GetCurrentRepository(ctx context.Context, chatID string) (string, error)
}

// AgentQuerier answers a chat with the AI backend.
type AgentQuerier interface {
	QueryAgent(ctx context.Context, userID string, req models.QueryAgentRequest) (*models.AgentResult, error)
}

// RelayConfig configures the relay.
type RelayConfig struct {
	WriteTimeout time.Duration
	MentionToken string
}

// Relay is the real-time hub: it serves connections, executes chat actions
// and runs automatic AI replies as detached tasks. It implements
// services.ChatNotifier and services.StatusNotifier.
type Relay struct {
	*ConnectionManager

	chats   ChatBackend
	agent   AgentQuerier
	mention ai.Mention
	now     func() time.Time

	tasks  sync.WaitGroup
	logger *slog.Logger
}

// NewRelay creates a relay delivering through a LocalBus. Call UseBus to
// distribute across replicas.
func NewRelay(cfg RelayConfig, chats ChatBackend, agent AgentQuerier) *Relay {
	if cfg.MentionToken == "" {
		cfg.MentionToken = DefaultMentionToken
	}
	r := &Relay{
		ConnectionManager: NewConnectionManager(cfg.WriteTimeout),
		chats:             chats,
		agent:             agent,
		mention:           ai.NewMention(cfg.MentionToken),
		now:               time.Now,
		logger:            slog.Default().With("component", "relay"),
	}
	r.SetActionHandler(r)
	return r
}

// ShouldTriggerAI reports whether a human message gets an automatic reply:
// always in a 1:1 chat, otherwise only when the message carries the mention.
func ShouldTriggerAI(content string, participants int, mention ai.Mention) bool {
	if participants <= maxDirectParticipants {
		return true
	}
	return mention.In(content)
}

// HandleAction executes the chat actions of a connection.
func (r *Relay) HandleAction(ctx context.Context, c *Connection, msg ClientMessage) error {
	if msg.ChatID == "" {
		return services.NewValidationError("chat_id", "required")
	}

	switch msg.Action {
	case ActionJoinChat:
		if _, err := r.chats.GetChatByID(ctx, c.UserID, msg.ChatID); err != nil {
			return err
		}
		if err := r.Join(c, msg.ChatID); err != nil {
			return err
		}
		r.sendJSON(c, ChatJoinedPayload{Type: EventTypeChatJoined, ChatID: msg.ChatID})
		return nil
	case ActionSendMessage:
		if msg.Message == nil {
			return services.NewValidationError("message", "required")
		}
		repo := msg.Message.RepositoryName
		if msg.RepositoryName != "" {
			repo = &msg.RepositoryName
		}
		_, err := r.SendUserMessage(ctx, c.UserID, msg.ChatID, *msg.Message, repo)
		return err
	}

	// Remaining actions only re-broadcast to a room the caller already joined.
	if !r.InRoom(c, msg.ChatID) {
		return fmt.Errorf("not joined to chat %s: %w", msg.ChatID, services.ErrForbidden)
	}
	switch msg.Action {
	case ActionTyping:
		r.NotifyTyping(ctx, msg.ChatID, c.UserID, msg.IsTyping)
	case ActionAITyping:
		r.NotifyAITyping(ctx, msg.ChatID, msg.IsTyping)
	case ActionParticipantAdded:
		if msg.ParticipantID == "" {
			return services.NewValidationError("participant_id", "required")
		}
		r.NotifyParticipantAdded(ctx, msg.ChatID, msg.ParticipantID)
	case ActionRepositoryChanged:
		if msg.RepositoryName == "" {
			return services.NewValidationError("repository_name", "required")
		}
		r.NotifyRepositoryChanged(ctx, msg.ChatID, msg.RepositoryName, c.UserID)
	default:
		return fmt.Errorf("unknown action: %s", msg.Action)
	}
	return nil
}

// SendUserMessage persists a human message authored by userID (which
// broadcasts it to the room) and, when the trigger policy says so, starts a
// detached AI reply. The caller never waits for the AI.
func (r *Relay) SendUserMessage(ctx context.Context, userID, chatID string, req models.SendMessageRequest, repoName *string) (*models.ChatMessage, error) {
	if userID == "" || req.Sender != userID {
		return nil, fmt.Errorf("cannot send a message as %q: %w", req.Sender, services.ErrForbidden)
	}
	// ai and repository_change messages are written by the server only
	if req.Type != "" && req.Type != models.MessageTypeText {
		return nil, services.NewValidationError("type", fmt.Sprintf("must be %q", models.MessageTypeText))
	}

	saved, err := r.chats.AddChatMessage(ctx, userID, chatID, models.ChatMessage{
		ID:      req.ID,
		Sender:  userID,
		Content: req.Content,
		Type:    req.Type,
	})
	if err != nil {
		return nil, err
	}

	chat, err := r.chats.GetChatByID(ctx, userID, chatID)
	if err != nil {
		return saved, fmt.Errorf("failed to load chat for AI trigger: %w", err)
	}
	if !ShouldTriggerAI(saved.Content, len(chat.ParticipantIDs), r.mention) {
		return saved, nil
	}

	r.NotifyAITyping(ctx, chatID, true)
	r.tasks.Add(1)
	go r.reply(userID, chatID, saved.Content, repoName)
	return saved, nil
}

// Wait blocks until every detached AI task has finished.
func (r *Relay) Wait() {
	r.tasks.Wait()
}

// reply runs one automatic AI answer. It never panics out, appends at most
// one apology, and always switches the typing indicator off.
func (r *Relay) reply(userID, chatID, content string, repoName *string) {
	defer r.tasks.Done()
	ctx := context.Background()
	defer r.NotifyAITyping(ctx, chatID, false)

	outcome := metrics.OutcomeError
	defer func() { metrics.AITasks.WithLabelValues(outcome).Inc() }()

	apologized := false
	apologize := func() {
		if apologized {
			return
		}
		apologized = true
		r.appendAI(ctx, userID, chatID, ApologyMessage)
	}
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("AI reply panicked", "chat_id", chatID, "panic", p)
			apologize()
		}
	}()

	result, err := r.askAgent(ctx, userID, chatID, content, repoName)
	if err != nil {
		if errors.Is(err, services.ErrUpstreamTimeout) {
			outcome = metrics.OutcomeTimeout
		}
		r.logger.Error("AI reply failed", "chat_id", chatID, "user_id", userID, "error", err)
		apologize()
		return
	}
	if result.Output == "" {
		outcome = metrics.OutcomeSuccess
		return
	}
	if err := r.appendAI(ctx, userID, chatID, result.Output); err != nil {
		apologize()
		return
	}
	outcome = metrics.OutcomeSuccess
}

func (r *Relay) askAgent(ctx context.Context, userID, chatID, content string, repoName *string) (*models.AgentResult, error) {
	repo := ""
	if repoName != nil && *repoName != "" {
		repo = *repoName
	} else {
		current, err := r.chats.GetCurrentRepository(ctx, chatID)
		switch {
		case err == nil:
			repo = current
		case !errors.Is(err, services.ErrNotFound):
			return nil, fmt.Errorf("failed to resolve repository: %w", err)
		}
	}

	return r.agent.QueryAgent(ctx, userID, models.QueryAgentRequest{
		ChatID:   chatID,
		RepoName: repo,
		Query:    r.mention.Strip(content),
	})
}

func (r *Relay) appendAI(ctx context.Context, userID, chatID, content string) error {
	_, err := r.chats.AddChatMessage(ctx, userID, chatID, models.ChatMessage{
		ID:        uuid.New().String(),
		Sender:    models.SenderAI,
		Content:   content,
		Timestamp: r.now().UTC(),
		Type:      models.MessageTypeAI,
	})
	if err != nil {
		r.logger.Error("Failed to append AI message", "chat_id", chatID, "error", err)
	}
	return err
}

// BroadcastMessage publishes an appended message to the chat's room.
func (r *Relay) BroadcastMessage(ctx context.Context, chatID string, msg models.ChatMessage) {
	r.Publish(ctx, chatID, EventTypeMessageReceived, MessageReceivedPayload{
		Type:    EventTypeMessageReceived,
		ChatID:  chatID,
		Message: msg,
	})
}

// NotifyTyping publishes a user's typing indicator.
func (r *Relay) NotifyTyping(ctx context.Context, chatID, userID string, isTyping bool) {
	r.Publish(ctx, chatID, EventTypeTypingStatus, TypingStatusPayload{
		Type:     EventTypeTypingStatus,
		ChatID:   chatID,
		UserID:   userID,
		IsTyping: isTyping,
	})
}

// NotifyAITyping publishes the assistant's typing indicator.
func (r *Relay) NotifyAITyping(ctx context.Context, chatID string, isTyping bool) {
	r.Publish(ctx, chatID, EventTypeAITyping, AITypingPayload{
		Type:     EventTypeAITyping,
		ChatID:   chatID,
		IsTyping: isTyping,
	})
}

// NotifyRepositoryChanged publishes a repository selection change.
func (r *Relay) NotifyRepositoryChanged(ctx context.Context, chatID, repoName, userID string) {
	r.Publish(ctx, chatID, EventTypeRepositoryChanged, RepositoryChangedPayload{
		Type:           EventTypeRepositoryChanged,
		ChatID:         chatID,
		RepositoryName: repoName,
		UserID:         userID,
	})
}

// NotifyParticipantAdded publishes a new participant to the chat's room.
func (r *Relay) NotifyParticipantAdded(ctx context.Context, chatID, participantID string) {
	r.Publish(ctx, chatID, EventTypeParticipantAdded, ParticipantAddedPayload{
		Type:          EventTypeParticipantAdded,
		ChatID:        chatID,
		ParticipantID: participantID,
	})
}

// BroadcastEmbeddingStatus publishes a repository status change to everyone.
func (r *Relay) BroadcastEmbeddingStatus(ctx context.Context, repoName string, status models.EmbeddingStatus, message string) {
	r.Publish(ctx, GlobalRoom, EventTypeEmbeddingStatus, EmbeddingStatusPayload{
		Type:           EventTypeEmbeddingStatus,
		RepositoryName: repoName,
		Status:         status,
		Message:        message,
		Timestamp:      r.now().UTC().Format(time.RFC3339Nano),
	})
}

var (
	_ services.ChatNotifier   = (*Relay)(nil)
	_ services.StatusNotifier = (*Relay)(nil)
)
