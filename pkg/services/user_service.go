package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/actor"
	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
)

// profileKind is the key namespace of the searchable user profile records.
const profileKind = "users"

// UserService manages user entities and the profile records used for
// listing and search.
type UserService struct {
	rt *actor.Runtime
}

// NewUserService creates a new UserService
func NewUserService(rt *actor.Runtime) *UserService {
	return &UserService{rt: rt}
}

// CreateUser initializes the user entity and writes the profile record. An
// existing chat index is kept; only the profile is replaced.
func (s *UserService) CreateUser(httpCtx context.Context, info models.UserInfo) (*models.User, error) {
	if err := validateUserInfo(info); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user, err := s.rt.User(info.ID).Mutate(ctx, func(u *models.User, found bool) (*models.User, error) {
		if !found {
			u = &models.User{Chats: []models.ChatSummary{}}
		}
		u.User = info
		return u, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if err := s.putProfile(ctx, info); err != nil {
		return nil, err
	}
	return user, nil
}

// EnsureUser returns the existing user entity, creating it on first sight.
func (s *UserService) EnsureUser(httpCtx context.Context, info models.UserInfo) (*models.User, error) {
	if info.ID == "" {
		return nil, NewValidationError("id", "required")
	}

	found, user, err := s.rt.User(info.ID).TryGet(httpCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if found {
		return user, nil
	}
	return s.CreateUser(httpCtx, info)
}

// GetUser returns the user entity, or ErrNotFound.
func (s *UserService) GetUser(httpCtx context.Context, userID string) (*models.User, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user, err := s.rt.User(userID).GetOrThrow(ctx)
	if err != nil {
		return nil, wrapEntityErr("get user", err)
	}
	return user, nil
}

// TryGetUserByID returns the user's profile or nil when unknown.
func (s *UserService) TryGetUserByID(httpCtx context.Context, userID string) (*models.UserInfo, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	found, user, err := s.rt.User(userID).TryGet(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &user.User, nil
}

// UpdateUser replaces the profile of an existing user. The id is fixed.
func (s *UserService) UpdateUser(httpCtx context.Context, userID string, info models.UserInfo) (*models.UserInfo, error) {
	info.ID = userID
	if err := validateUserInfo(info); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	user, err := s.rt.User(userID).Update(ctx, func(u *models.User) error {
		u.User = info
		return nil
	})
	if err != nil {
		return nil, wrapEntityErr("update user", err)
	}
	if err := s.putProfile(ctx, info); err != nil {
		return nil, err
	}
	return &user.User, nil
}

// DeleteUser removes the profile record. The user entity and its chat index
// are kept so chats referencing the user stay consistent. Returns false when
// no profile existed.
func (s *UserService) DeleteUser(httpCtx context.Context, userID string) (bool, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	key := s.profileKey(userID)
	if _, err := s.rt.Store().Get(ctx, key); err != nil {
		if errors.Is(err, statestore.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get user profile: %w", err)
	}
	if err := s.rt.Store().Delete(ctx, key); err != nil {
		return false, fmt.Errorf("failed to delete user profile: %w", err)
	}
	return true, nil
}

// GetAllUsers lists every profile, ordered by name.
func (s *UserService) GetAllUsers(httpCtx context.Context) ([]models.UserInfo, error) {
	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	return s.queryProfiles(ctx, nil)
}

// SearchUsers returns profiles whose name or email contains query,
// case-insensitively.
func (s *UserService) SearchUsers(httpCtx context.Context, query string) ([]models.UserInfo, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil, NewValidationError("q", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	all, err := s.queryProfiles(ctx, nil)
	if err != nil {
		return nil, err
	}
	matches := make([]models.UserInfo, 0)
	for _, u := range all {
		if strings.Contains(strings.ToLower(u.Name), query) ||
			strings.Contains(strings.ToLower(u.Email), query) {
			matches = append(matches, u)
		}
	}
	return matches, nil
}

// FindUserByEmail returns the profile with exactly this email, or nil.
func (s *UserService) FindUserByEmail(httpCtx context.Context, email string) (*models.UserInfo, error) {
	if email == "" {
		return nil, NewValidationError("email", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, 5*time.Second)
	defer cancel()

	users, err := s.queryProfiles(ctx, map[string]any{"email": email})
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}

func (s *UserService) profileKey(userID string) string {
	return statestore.Key(s.rt.Namespace(), profileKind, userID)
}

func (s *UserService) putProfile(ctx context.Context, info models.UserInfo) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode user profile: %w", err)
	}
	if err := s.rt.Store().Set(ctx, s.profileKey(info.ID), raw); err != nil {
		return fmt.Errorf("failed to store user profile: %w", err)
	}
	return nil
}

func (s *UserService) queryProfiles(ctx context.Context, filter map[string]any) ([]models.UserInfo, error) {
	values, err := s.rt.Store().Query(ctx, statestore.KindPrefix(s.rt.Namespace(), profileKind), filter)
	if err != nil {
		return nil, fmt.Errorf("failed to query user profiles: %w", err)
	}
	users := make([]models.UserInfo, 0, len(values))
	for _, raw := range values {
		var u models.UserInfo
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("failed to decode user profile: %w", err)
		}
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Name != users[j].Name {
			return users[i].Name < users[j].Name
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func validateUserInfo(info models.UserInfo) error {
	if info.ID == "" {
		return NewValidationError("id", "required")
	}
	if info.Email != "" && !strings.Contains(info.Email, "@") {
		return NewValidationError("email", "must be an email address")
	}
	return nil
}
