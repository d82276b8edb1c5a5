package actor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/codeready-toolchain/lexi/pkg/models"
	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRuntime() *Runtime {
	return NewRuntime(statestore.NewMemory(), "lexi")
}

func TestEntity_Lifecycle(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	chat := rt.Chat("c1")

	found, state, err := chat.TryGet(ctx)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, state)

	_, err = chat.GetOrThrow(ctx)
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, chat.Init(ctx, &models.Chat{ID: "c1", Name: "first", OwnerID: "u1"}))
	require.NoError(t, chat.Init(ctx, &models.Chat{ID: "c1", Name: "second", OwnerID: "u1"}), "init overwrites")

	got, err := chat.GetOrThrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", got.Name)

	require.NoError(t, chat.Set(ctx, &models.Chat{ID: "c1", Name: "third", OwnerID: "u1"}))
	got, err = chat.GetOrThrow(ctx)
	require.NoError(t, err)
	assert.Equal(t, "third", got.Name)

	require.NoError(t, chat.Delete(ctx))
	found, _, err = chat.TryGet(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntity_KindsUseSeparateNamespaces(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()

	require.NoError(t, rt.Chat("same").Set(ctx, &models.Chat{ID: "same", Name: "chat"}))
	found, _, err := rt.User("same").TryGet(ctx)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEntity_Update(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	user := rt.User("u1")

	_, err := user.Update(ctx, func(u *models.User) error { return nil })
	assert.ErrorIs(t, err, ErrStateNotFound)

	require.NoError(t, user.Init(ctx, &models.User{User: models.UserInfo{ID: "u1"}}))

	updated, err := user.Update(ctx, func(u *models.User) error {
		u.AddChat("c1")
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, updated.Chats, 1)

	t.Run("ErrNoChange skips the write", func(t *testing.T) {
		got, err := user.Update(ctx, func(u *models.User) error {
			u.AddChat("c2")
			return ErrNoChange
		})
		require.NoError(t, err)
		assert.Len(t, got.Chats, 1)

		stored, err := user.GetOrThrow(ctx)
		require.NoError(t, err)
		assert.Len(t, stored.Chats, 1)
	})

	t.Run("mutator error aborts", func(t *testing.T) {
		boom := errors.New("boom")
		_, err := user.Update(ctx, func(u *models.User) error {
			u.AddChat("c3")
			return boom
		})
		assert.ErrorIs(t, err, boom)

		stored, err := user.GetOrThrow(ctx)
		require.NoError(t, err)
		assert.Len(t, stored.Chats, 1)
	})
}

func TestEntity_UpdatesOnSameIDDoNotInterleave(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	chat := rt.Chat("c1")
	require.NoError(t, chat.Init(ctx, &models.Chat{ID: "c1"}))

	const writers = 50
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := rt.Chat("c1").Update(ctx, func(c *models.Chat) error {
				c.Messages = append(c.Messages, models.ChatMessage{ID: time.Now().String()})
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := chat.GetOrThrow(ctx)
	require.NoError(t, err)
	assert.Len(t, got.Messages, writers, "every read-modify-write span must observe the previous one")
	assert.Zero(t, rt.lockedKeys(), "idle locks are released")
}

func TestEntity_DifferentIDsRunConcurrently(t *testing.T) {
	ctx := context.Background()
	rt := newTestRuntime()
	require.NoError(t, rt.Chat("a").Init(ctx, &models.Chat{ID: "a"}))
	require.NoError(t, rt.Chat("b").Init(ctx, &models.Chat{ID: "b"}))

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})

	go func() {
		_, _ = rt.Chat("a").Update(ctx, func(c *models.Chat) error {
			close(entered)
			<-release
			return nil
		})
		close(done)
	}()
	<-entered

	// While "a" is held, "b" must still be writable.
	_, err := rt.Chat("b").Update(ctx, func(c *models.Chat) error {
		c.Name = "b"
		return nil
	})
	require.NoError(t, err)

	close(release)
	<-done
}

func TestEntity_LockHonorsContext(t *testing.T) {
	rt := newTestRuntime()
	require.NoError(t, rt.Chat("c1").Init(context.Background(), &models.Chat{ID: "c1"}))

	entered := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_, _ = rt.Chat("c1").Update(context.Background(), func(c *models.Chat) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := rt.Chat("c1").GetOrThrow(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
