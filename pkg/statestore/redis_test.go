package statestore_test

import (
	"testing"

	"github.com/codeready-toolchain/lexi/pkg/statestore"
	"github.com/codeready-toolchain/lexi/test/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore(t *testing.T) {
	s := statestore.NewRedis(util.SetupTestRedis(t))
	ctx := t.Context()

	require.NoError(t, s.Set(ctx, statestore.Key("lexi", "user", "u1"), []byte(`{"id":"u1","name":"Ann"}`)))
	require.NoError(t, s.Set(ctx, statestore.Key("lexi", "user", "u2"), []byte(`{"id":"u2","name":"Bob"}`)))
	require.NoError(t, s.Set(ctx, statestore.Key("lexi", "userx", "u3"), []byte(`{"id":"u3","name":"Ann"}`)))

	got, err := s.Get(ctx, statestore.Key("lexi", "user", "u1"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"u1","name":"Ann"}`, string(got))

	_, err = s.Get(ctx, statestore.Key("lexi", "user", "missing"))
	assert.ErrorIs(t, err, statestore.ErrKeyNotFound)

	bulk, err := s.BulkGet(ctx, []string{statestore.Key("lexi", "user", "u2"), statestore.Key("lexi", "user", "nope")})
	require.NoError(t, err)
	assert.Len(t, bulk, 1)

	anns, err := s.Query(ctx, statestore.KindPrefix("lexi", "user"), map[string]any{"name": "Ann"})
	require.NoError(t, err)
	assert.Len(t, anns, 1, "prefix must not match the userx kind")

	require.NoError(t, s.Delete(ctx, statestore.Key("lexi", "user", "u1")))
	require.NoError(t, s.Delete(ctx, statestore.Key("lexi", "user", "u1")))
	_, err = s.Get(ctx, statestore.Key("lexi", "user", "u1"))
	assert.ErrorIs(t, err, statestore.ErrKeyNotFound)
}
