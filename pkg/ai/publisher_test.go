package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/lexi/test/util"
)

func TestRedisPublisher(t *testing.T) {
	rdb := util.SetupTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, DefaultEmbedTopic)
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	pub, err := NewRedisPublisher(ctx, rdb)
	require.NoError(t, err)
	require.NoError(t, pub.Publish(ctx, DefaultEmbedTopic, []byte(`{"cmd_type":"embed_repo"}`)))

	select {
	case msg := <-sub.Channel():
		assert.JSONEq(t, `{"cmd_type":"embed_repo"}`, msg.Payload)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

func TestPublishersWithoutBroker(t *testing.T) {
	_, err := NewRedisPublisher(context.Background(), nil)
	assert.Error(t, err)

	pub := NewLogPublisher()
	assert.NoError(t, pub.Publish(context.Background(), DefaultEmbedTopic, []byte(`{}`)))
	assert.NoError(t, pub.Close())
}
