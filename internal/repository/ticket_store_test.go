package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/pkg/coord"
)

func TestCoordTicketStoreRedisKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := NewCoordTicketStore(coord.NewRedisStoreFromClient(client, ""), 0)
	ctx := context.Background()

	_, ok, err := store.FollowerTicket(ctx, 10, "f1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveFollowerTicket(ctx, 10, "f1", 55))
	got, err := mr.Get("map:ticket:10:f1")
	require.NoError(t, err)
	assert.Equal(t, "55", got)
	assert.Equal(t, 30*24*time.Hour, mr.TTL("map:ticket:10:f1"))

	ticket, ok, err := store.FollowerTicket(ctx, 10, "f1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(55), ticket)

	require.NoError(t, store.SaveFollowerTicket(ctx, 10, "f1", 56))
	ticket, _, _ = store.FollowerTicket(ctx, 10, "f1")
	assert.Equal(t, int64(56), ticket)

	require.NoError(t, store.MarkClosed(ctx, "m1", 10))
	members, err := mr.Members("history:master:m1:closed")
	require.NoError(t, err)
	assert.Equal(t, []string{"10"}, members)

	closed, err := store.IsClosed(ctx, "m1", 10)
	require.NoError(t, err)
	assert.True(t, closed)
	closed, err = store.IsClosed(ctx, "m1", 11)
	require.NoError(t, err)
	assert.False(t, closed)
}

func TestCoordTicketStoreCorruptValue(t *testing.T) {
	mem := coord.NewMemoryStore()
	defer mem.Close()
	ctx := context.Background()
	require.NoError(t, mem.Set(ctx, coord.TicketKey(1, "f"), "not-a-ticket", 0))

	_, _, err := NewCoordTicketStore(mem, 0).FollowerTicket(ctx, 1, "f")
	assert.Error(t, err)
}
