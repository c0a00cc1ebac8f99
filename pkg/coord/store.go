// Package coord is the shared key/value, set and pub/sub store that copy
// workers coordinate through: ticket maps, closed-ticket sets, signal
// channels and the terminal lock.
package coord

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("coord: key not found")
	ErrNotOwner = errors.New("coord: lock held by another owner")
	ErrClosed   = errors.New("coord: store closed")
)

// Well-known keys.
const (
	TicketMapTTL      = 30 * 24 * time.Hour
	TerminalLockKey   = "lock:terminal:global"
	TerminalLockTTL   = 30 * time.Second
	SignalChannelGlob = "signals:master:*"
)

func TicketKey(masterTicket int64, followerID string) string {
	return fmt.Sprintf("map:ticket:%d:%s", masterTicket, followerID)
}

func ClosedSetKey(masterID string) string {
	return fmt.Sprintf("history:master:%s:closed", masterID)
}

func SignalChannel(masterID string) string {
	return "signals:master:" + masterID
}

// Message is one pub/sub delivery.
type Message struct {
	Channel string
	Pattern string
	Payload []byte
}

// Store is the coordination store contract. Values are UTF-8 strings; keys are opaque.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SAdd(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe streams messages for a glob pattern until ctx is done.
	// The returned channel is closed when the subscription ends.
	Subscribe(ctx context.Context, pattern string) (<-chan Message, error)
	TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, owner string) error
	Ping(ctx context.Context) error
	Close() error
}
