// Package services contains business logic service layer implementations.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// chatReadConcurrency bounds the fan-out of GetUserChats.
const chatReadConcurrency = 8

// ChatNotifier pushes chat events to the chat's realtime room.
// Delivery is best-effort; implementations log failures instead of returning them.
type ChatNotifier interface {
	BroadcastMessage(ctx context.Context, chatID string, msg models.ChatMessage)
	NotifyRepositoryChanged(ctx context.Context, chatID, repoName, userID string)
}

type nopChatNotifier struct{}

func (nopChatNotifier) BroadcastMessage(context.Context, string, models.ChatMessage) {}
func (nopChatNotifier) NotifyRepositoryChanged(context.Context, string, string, string) {}

// ChatService coordinates chat and user entities.
//
// Operations touching a chat and one or more users run as independent
// single-entity steps. Nothing is rolled back when a later step fails.
type ChatService struct {
	rt       *actor.Runtime
	notifier ChatNotifier
	now      func() time.Time
}

// NewChatService creates a new ChatService
func NewChatService(rt *actor.Runtime) *ChatService {
	return &ChatService{
		rt:       rt,
		notifier: nopChatNotifier{},
		now:      time.Now,
	}
}

// SetNotifier wires the realtime relay. Called once during startup, before
// requests are served.
func (s *ChatService) SetNotifier(n ChatNotifier) {
	if n == nil {
		n = nopChatNotifier{}
	}
	s.notifier = n
}

// GetUserChats returns every chat in the user's index with the user's pinned
// flag merged in. A user without an entity has no chats yet. Index entries
// whose chat no longer exists are skipped.
func (s *ChatService) GetUserChats(httpCtx context.Context, userID string) ([]models.Chat, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	found, user, err := s.rt.User(userID).TryGet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return []models.Chat{}, nil
	}

	results := make([]*models.Chat, len(user.Chats))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(chatReadConcurrency)
	for i, summary := range user.Chats {
		g.Go(func() error {
			ok, chat, err := s.rt.Chat(summary.ChatID).TryGet(gctx)
			if err != nil {
				return fmt.Errorf("failed to get chat %s: %w", summary.ChatID, err)
			}
			if !ok {
				slog.Warn("Skipping stale chat index entry",
					"user_id", userID,
					"chat_id", summary.ChatID)
				return nil
			}
			merged := chat.WithPinned(summary.IsPinned)
			results[i] = &merged
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	chats := make([]models.Chat, 0, len(results))
	for _, c := range results {
		if c != nil {
			chats = append(chats, *c)
		}
	}
	return chats, nil
}

// GetChatByID returns a chat the user takes part in, with the user's pinned flag.
func (s *ChatService) GetChatByID(httpCtx context.Context, userID, chatID string) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) && !chat.IsOwner(userID) {
		return nil, fmt.Errorf("user %s is not a participant of chat %s: %w", userID, chatID, ErrForbidden)
	}

	found, user, err := s.rt.User(userID).TryGet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	merged := chat.WithPinned(found && user.IsPinned(chatID))
	return &merged, nil
}

// CreateChat stores a new chat owned by userID and indexes it for every
// initial participant. The owner's user entity is created when missing.
func (s *ChatService) CreateChat(httpCtx context.Context, userID string, chat models.Chat) (*models.Chat, error) {
	if userID == "" {
		return nil, NewValidationError("user_id", "required")
	}
	if strings.TrimSpace(chat.Name) == "" {
		return nil, NewValidationError("name", "required")
	}
	if chat.OwnerID == "" {
		chat.OwnerID = userID
	}
	if chat.OwnerID != userID {
		return nil, fmt.Errorf("owner must be the authenticated user: %w", ErrForbidden)
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if chat.ID == "" {
		chat.ID = uuid.New().String()
	}
	now := s.now()
	chat.Timestamp = now
	chat.LastModified = now
	chat.IsPinned = false
	if chat.Messages == nil {
		chat.Messages = []models.ChatMessage{}
	}
	participants := []string{userID}
	for _, p := range chat.ParticipantIDs {
		if p != "" && !slices.Contains(participants, p) {
			participants = append(participants, p)
		}
	}
	chat.ParticipantIDs = participants

	for _, p := range participants[1:] {
		found, _, err := s.rt.User(p).TryGet(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get participant: %w", err)
		}
		if !found {
			return nil, fmt.Errorf("user %s: %w", p, ErrNotFound)
		}
	}

	created, err := s.rt.Chat(chat.ID).Mutate(ctx, func(_ *models.Chat, found bool) (*models.Chat, error) {
		if found {
			return nil, fmt.Errorf("chat %s: %w", chat.ID, ErrAlreadyExists)
		}
		return &chat, nil
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}

	if _, err := s.rt.User(userID).Mutate(ctx, func(u *models.User, found bool) (*models.User, error) {
		if !found {
			u = &models.User{User: models.UserInfo{ID: userID}}
		}
		u.AddChat(chat.ID)
		return u, nil
	}); err != nil {
		return nil, fmt.Errorf("failed to index chat for owner: %w", err)
	}

	for _, p := range participants[1:] {
		if err := s.indexChat(ctx, p, chat.ID); err != nil {
			return nil, err
		}
	}

	return created, nil
}

// GetChatMessages returns the transcript of a chat the user takes part in.
func (s *ChatService) GetChatMessages(httpCtx context.Context, userID, chatID string) ([]models.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, fmt.Errorf("user %s is not a participant of chat %s: %w", userID, chatID, ErrForbidden)
	}
	return chat.Messages, nil
}

// TryGetChatMessage returns nil when the chat or message does not exist or
// the user is not a participant.
func (s *ChatService) TryGetChatMessage(httpCtx context.Context, userID, chatID, messageID string) (*models.ChatMessage, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	found, chat, err := s.rt.Chat(chatID).TryGet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	if !found || !chat.HasParticipant(userID) {
		return nil, nil
	}
	i := chat.FindMessage(messageID)
	if i < 0 {
		return nil, nil
	}
	msg := chat.Messages[i]
	return &msg, nil
}

// AddChatMessage appends msg to the transcript on behalf of userID and
// broadcasts it to the chat's room. Missing id, timestamp and type are filled.
func (s *ChatService) AddChatMessage(httpCtx context.Context, userID, chatID string, msg models.ChatMessage) (*models.ChatMessage, error) {
	if msg.Content == "" {
		return nil, NewValidationError("content", "required")
	}
	if msg.Sender == "" {
		return nil, NewValidationError("sender", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	if msg.Type == "" {
		msg.Type = models.MessageTypeText
	}
	msg.ChatID = chatID

	_, err := s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		if !c.HasParticipant(userID) {
			return fmt.Errorf("user %s is not a participant of chat %s: %w", userID, chatID, ErrForbidden)
		}
		if c.FindMessage(msg.ID) >= 0 {
			return fmt.Errorf("message %s already exists: %w", msg.ID, ErrConflict)
		}
		c.Messages = append(c.Messages, msg)
		c.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, wrapEntityErr("add message", err)
	}

	s.notifier.BroadcastMessage(ctx, chatID, msg)
	return &msg, nil
}

// DeleteChatMessage removes a message authored by userID. Returns false when
// the message does not exist.
func (s *ChatService) DeleteChatMessage(httpCtx context.Context, userID, chatID, messageID string) (bool, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	deleted := false
	_, err := s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		i := c.FindMessage(messageID)
		if i < 0 {
			return actor.ErrNoChange
		}
		if c.Messages[i].Sender != userID {
			return fmt.Errorf("only the sender may delete message %s: %w", messageID, ErrForbidden)
		}
		c.Messages = slices.Delete(c.Messages, i, i+1)
		c.Touch(s.now())
		deleted = true
		return nil
	})
	if err != nil {
		return false, wrapEntityErr("delete message", err)
	}
	return deleted, nil
}

// DeleteChat removes the chat from every participant's index, then deletes
// the chat entity. Owner only. A failure part way through leaves the
// participants handled so far already cleaned up.
func (s *ChatService) DeleteChat(httpCtx context.Context, userID, chatID string) error {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return err
	}
	if !chat.IsOwner(userID) {
		return fmt.Errorf("only the owner may delete chat %s: %w", chatID, ErrForbidden)
	}

	for _, p := range chat.ParticipantIDs {
		if err := s.unindexChat(ctx, p, chatID); err != nil {
			return err
		}
	}
	if !chat.HasParticipant(chat.OwnerID) {
		if err := s.unindexChat(ctx, chat.OwnerID, chatID); err != nil {
			return err
		}
	}

	if err := s.rt.Chat(chatID).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	return nil
}

// RenameChat changes the chat name. Owner only.
func (s *ChatService) RenameChat(httpCtx context.Context, userID, chatID, name string) (*models.Chat, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		if !c.IsOwner(userID) {
			return fmt.Errorf("only the owner may rename chat %s: %w", chatID, ErrForbidden)
		}
		c.Name = name
		c.Touch(s.now())
		return nil
	})
	if err != nil {
		return nil, wrapEntityErr("rename chat", err)
	}
	return chat, nil
}

// PinChat sets the pinned flag on the user's own index entry. The chat
// entity is not touched. Returns false when the chat is not in the index.
func (s *ChatService) PinChat(httpCtx context.Context, userID, chatID string, pinned bool) (bool, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	changed := false
	_, err := s.rt.User(userID).Update(ctx, func(u *models.User) error {
		i := u.FindChat(chatID)
		if i < 0 {
			return actor.ErrNoChange
		}
		u.Chats[i].IsPinned = pinned
		changed = true
		return nil
	})
	if err != nil {
		return false, wrapEntityErr("pin chat", err)
	}
	return changed, nil
}

// AddParticipant adds participantID to the chat and to their chat index.
// Owner only. Returns false when the participant is already present.
func (s *ChatService) AddParticipant(httpCtx context.Context, userID, chatID, participantID string) (bool, error) {
	if participantID == "" {
		return false, NewValidationError("participant_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	found, _, err := s.rt.User(participantID).TryGet(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get participant: %w", err)
	}
	if !found {
		return false, fmt.Errorf("user %s: %w", participantID, ErrNotFound)
	}

	added := false
	_, err = s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		if !c.IsOwner(userID) {
			return fmt.Errorf("only the owner may add participants to chat %s: %w", chatID, ErrForbidden)
		}
		if c.HasParticipant(participantID) {
			return actor.ErrNoChange
		}
		c.ParticipantIDs = append(c.ParticipantIDs, participantID)
		c.Touch(s.now())
		added = true
		return nil
	})
	if err != nil {
		return false, wrapEntityErr("add participant", err)
	}
	if !added {
		return false, nil
	}

	if err := s.indexChat(ctx, participantID, chatID); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveParticipant removes participantID from the chat and from their chat
// index. Owner only; the owner cannot be removed. Returns false when the
// participant is not present.
func (s *ChatService) RemoveParticipant(httpCtx context.Context, userID, chatID, participantID string) (bool, error) {
	if participantID == "" {
		return false, NewValidationError("participant_id", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	removed := false
	_, err := s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		if !c.IsOwner(userID) {
			return fmt.Errorf("only the owner may remove participants from chat %s: %w", chatID, ErrForbidden)
		}
		if c.IsOwner(participantID) {
			return fmt.Errorf("the owner cannot leave chat %s, delete it instead: %w", chatID, ErrForbidden)
		}
		if !c.HasParticipant(participantID) {
			return actor.ErrNoChange
		}
		c.ParticipantIDs = slices.DeleteFunc(c.ParticipantIDs, func(p string) bool { return p == participantID })
		c.Touch(s.now())
		removed = true
		return nil
	})
	if err != nil {
		return false, wrapEntityErr("remove participant", err)
	}
	if !removed {
		return false, nil
	}

	if err := s.unindexChat(ctx, participantID, chatID); err != nil {
		return false, err
	}
	return true, nil
}

// UpdateChatRepository selects the repository the chat talks about, records
// a repository_change system message and notifies the room. Participants only.
func (s *ChatService) UpdateChatRepository(httpCtx context.Context, userID, chatID, repoName string) (*models.Chat, error) {
	repoName = strings.TrimSpace(repoName)
	if repoName == "" {
		return nil, NewValidationError("repository_name", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.rt.Chat(chatID).Update(ctx, func(c *models.Chat) error {
		if !c.HasParticipant(userID) {
			return fmt.Errorf("user %s is not a participant of chat %s: %w", userID, chatID, ErrForbidden)
		}
		now := s.now()
		c.CurrentRepository = &repoName
		c.LastRepositoryChange = &now
		c.Messages = append(c.Messages, models.ChatMessage{
			ID:        uuid.New().String(),
			ChatID:    chatID,
			Sender:    models.SenderSystem,
			Content:   repoName,
			Timestamp: now,
			Type:      models.MessageTypeRepositoryChange,
		})
		c.Touch(now)
		return nil
	})
	if err != nil {
		return nil, wrapEntityErr("update chat repository", err)
	}

	s.notifier.NotifyRepositoryChanged(ctx, chatID, repoName, userID)
	return chat, nil
}

// GetCurrentRepository returns the repository selected for the chat, or
// ErrNotFound when none was ever selected.
func (s *ChatService) GetCurrentRepository(httpCtx context.Context, chatID string) (string, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	chat, err := s.getChat(ctx, chatID)
	if err != nil {
		return "", err
	}
	if chat.CurrentRepository == nil || *chat.CurrentRepository == "" {
		return "", fmt.Errorf("chat %s has no repository: %w", chatID, ErrNotFound)
	}
	return *chat.CurrentRepository, nil
}

func (s *ChatService) getChat(ctx context.Context, chatID string) (*models.Chat, error) {
	chat, err := s.rt.Chat(chatID).GetOrThrow(ctx)
	if err != nil {
		return nil, wrapEntityErr("get chat", err)
	}
	return chat, nil
}

// indexChat adds chatID to an existing user's index.
func (s *ChatService) indexChat(ctx context.Context, userID, chatID string) error {
	_, err := s.rt.User(userID).Update(ctx, func(u *models.User) error {
		if !u.AddChat(chatID) {
			return actor.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return wrapEntityErr("index chat for "+userID, err)
	}
	return nil
}

// unindexChat drops chatID from a user's index.
func (s *ChatService) unindexChat(ctx context.Context, userID, chatID string) error {
	_, err := s.rt.User(userID).Update(ctx, func(u *models.User) error {
		if !u.RemoveChat(chatID) {
			return actor.ErrNoChange
		}
		return nil
	})
	if err != nil {
		return wrapEntityErr("remove chat from index of "+userID, err)
	}
	return nil
}

// wrapEntityErr maps actor not-found onto ErrNotFound and passes service
// errors through unchanged.
func wrapEntityErr(op string, err error) error {
	switch {
	case errors.Is(err, actor.ErrStateNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrConflict),
		errors.Is(err, ErrAlreadyExists), errors.Is(err, ErrNotFound),
		IsValidationError(err):
		return err
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
