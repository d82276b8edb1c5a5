package events

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeready-toolchain/lexi/test/util"
)

type delivery struct {
	room  string
	event string
}

// collect returns a deliver callback feeding a buffered channel.
func collect() (DeliverFunc, chan delivery) {
	ch := make(chan delivery, 16)
	return func(room string, event []byte) {
		ch <- delivery{room: room, event: string(event)}
	}, ch
}

func receive(t *testing.T, ch chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for bus delivery")
		return delivery{}
	}
}

func TestRedisBus(t *testing.T) {
	rdb := util.SetupTestRedis(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first, err := NewRedisBus(ctx, rdb, "")
	require.NoError(t, err)
	second, err := NewRedisBus(ctx, rdb, "")
	require.NoError(t, err)

	deliverFirst, gotFirst := collect()
	deliverSecond, gotSecond := collect()
	require.NoError(t, first.Start(ctx, deliverFirst))
	require.NoError(t, second.Start(ctx, deliverSecond))
	t.Cleanup(func() {
		_ = first.Close(context.Background())
		_ = second.Close(context.Background())
	})

	for _, room := range []string{"c1", "c2"} {
		require.NoError(t, first.Publish(ctx, room, []byte(`{"type":"typing.status"}`)))
	}

	for _, ch := range []chan delivery{gotFirst, gotSecond} {
		d := receive(t, ch)
		assert.Equal(t, "c1", d.room)
		assert.JSONEq(t, `{"type":"typing.status"}`, d.event)
		assert.Equal(t, "c2", receive(t, ch).room)
	}
}

func TestNewRedisBus_RequiresClient(t *testing.T) {
	_, err := NewRedisBus(context.Background(), nil, "")
	assert.Error(t, err)
}

func TestPGNotifyBus(t *testing.T) {
	client := util.SetupTestDatabase(t)
	connStr := util.GetBaseConnectionString(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewPGNotifyBus(client.DB(), connStr, "lexi_relay_test")
	deliver, got := collect()
	require.NoError(t, bus.Start(ctx, deliver))
	t.Cleanup(func() { _ = bus.Close(context.Background()) })

	require.NoError(t, bus.Publish(ctx, "c1", []byte(`{"type":"message.received","chat_id":"c1"}`)))

	d := receive(t, got)
	assert.Equal(t, "c1", d.room)
	assert.JSONEq(t, `{"type":"message.received","chat_id":"c1"}`, d.event)
}
