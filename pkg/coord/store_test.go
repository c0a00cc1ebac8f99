package coord

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	assert.Equal(t, "map:ticket:10:f1", TicketKey(10, "f1"))
	assert.Equal(t, "history:master:m1:closed", ClosedSetKey("m1"))
	assert.Equal(t, "signals:master:m1", SignalChannel("m1"))
	assert.Equal(t, 2592000*time.Second, TicketMapTTL)
}

func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("get missing", func(t *testing.T) {
		_, err := s.Get(ctx, "nope")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("set get", func(t *testing.T) {
		require.NoError(t, s.Set(ctx, TicketKey(1, "f"), "55", time.Hour))
		v, err := s.Get(ctx, TicketKey(1, "f"))
		require.NoError(t, err)
		assert.Equal(t, "55", v)
	})

	t.Run("sets", func(t *testing.T) {
		key := ClosedSetKey("m")
		ok, err := s.SIsMember(ctx, key, "7")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SAdd(ctx, key, "7", "8"))
		ok, err = s.SIsMember(ctx, key, "7")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("lock ownership", func(t *testing.T) {
		ok, err := s.TryLock(ctx, TerminalLockKey, "a", TerminalLockTTL)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = s.TryLock(ctx, TerminalLockKey, "b", TerminalLockTTL)
		require.NoError(t, err)
		assert.False(t, ok)

		assert.ErrorIs(t, s.Unlock(ctx, TerminalLockKey, "b"), ErrNotOwner)
		require.NoError(t, s.Unlock(ctx, TerminalLockKey, "a"))

		ok, err = s.TryLock(ctx, TerminalLockKey, "b", TerminalLockTTL)
		require.NoError(t, err)
		assert.True(t, ok)
		require.NoError(t, s.Unlock(ctx, TerminalLockKey, "b"))
	})

	t.Run("pattern subscribe", func(t *testing.T) {
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()

		ch, err := s.Subscribe(subCtx, SignalChannelGlob)
		require.NoError(t, err)

		require.NoError(t, s.Publish(ctx, "other:channel", []byte("x")))
		require.NoError(t, s.Publish(ctx, SignalChannel("m1"), []byte(`{"a":1}`)))

		select {
		case msg := <-ch:
			assert.Equal(t, "signals:master:m1", msg.Channel)
			assert.Equal(t, `{"a":1}`, string(msg.Payload))
		case <-time.After(2 * time.Second):
			t.Fatalf("no message delivered")
		}

		cancel()
		for range ch {
		}
	})
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	defer s.Close()
	exerciseStore(t, s)
}

func TestMemoryStoreTTL(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryClock(func() time.Time { return now }))
	defer s.Close()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", time.Second))
	ok, err := s.TryLock(ctx, "lock", "o", time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Second)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
	ok, err = s.TryLock(ctx, "lock", "other", time.Second)
	require.NoError(t, err)
	assert.True(t, ok, "expired lock must be acquirable")
}

func TestRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "")
	defer s.Close()

	exerciseStore(t, s)

	ctx := context.Background()
	require.NoError(t, s.Set(ctx, TicketKey(3, "f"), "9", TicketMapTTL))
	assert.Equal(t, TicketMapTTL, mr.TTL("map:ticket:3:f"))

	mr.FastForward(TicketMapTTL + time.Second)
	_, err := s.Get(ctx, TicketKey(3, "f"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStorePrefix(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := NewRedisStoreFromClient(client, "cf")
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", "v", 0))
	got, err := mr.Get("cf:k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}
