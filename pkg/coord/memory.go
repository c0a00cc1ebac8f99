package coord

import (
	"context"
	"path"
	"sync"
	"time"
)

type memoryItem struct {
	value    string
	set      map[string]struct{}
	expireAt time.Time // zero means no expiry
}

func (m *memoryItem) expired(now time.Time) bool {
	return !m.expireAt.IsZero() && now.After(m.expireAt)
}

type memorySub struct {
	pattern string
	ctx     context.Context
	ch      chan Message

	mu     sync.RWMutex
	closed bool
}

// MemoryStore implements Store in process. It backs MOCK deployments and tests.
type MemoryStore struct {
	mu        sync.Mutex
	data      map[string]*memoryItem
	subs      map[*memorySub]struct{}
	now       func() time.Time
	subBuffer int
	ticker    *time.Ticker
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryStore creates an in-process store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	cfg := &MemoryConfig{
		CleanupInterval: time.Minute,
		SubBuffer:       256,
		Now:             time.Now,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	s := &MemoryStore{
		data:      make(map[string]*memoryItem),
		subs:      make(map[*memorySub]struct{}),
		now:       cfg.Now,
		subBuffer: cfg.SubBuffer,
		ticker:    time.NewTicker(cfg.CleanupInterval),
		done:      make(chan struct{}),
	}
	go s.cleanupExpired()
	return s
}

// lookup returns a live item, dropping it when expired. Caller holds s.mu.
func (s *MemoryStore) lookup(key string) (*memoryItem, bool) {
	item, ok := s.data[key]
	if !ok {
		return nil, false
	}
	if item.expired(s.now()) {
		delete(s.data, key)
		return nil, false
	}
	return item, true
}

func (s *MemoryStore) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok || item.set != nil {
		return "", ErrNotFound
	}
	return item.value, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = &memoryItem{value: value, expireAt: s.expiry(ttl)}
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key string, members ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok || item.set == nil {
		item = &memoryItem{set: make(map[string]struct{})}
		s.data[key] = item
	}
	for _, m := range members {
		item.set[m] = struct{}{}
	}
	return nil
}

func (s *MemoryStore) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok || item.set == nil {
		return false, nil
	}
	_, found := item.set[member]
	return found, nil
}

func (s *MemoryStore) Publish(ctx context.Context, channel string, payload []byte) error {
	s.mu.Lock()
	targets := make([]*memorySub, 0, len(s.subs))
	for sub := range s.subs {
		if ok, _ := path.Match(sub.pattern, channel); ok {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	for _, sub := range targets {
		msg := Message{Channel: channel, Pattern: sub.pattern, Payload: append([]byte(nil), payload...)}
		sub.mu.RLock()
		if !sub.closed {
			select {
			case sub.ch <- msg:
			case <-sub.ctx.Done():
			case <-ctx.Done():
				sub.mu.RUnlock()
				return ctx.Err()
			}
		}
		sub.mu.RUnlock()
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, err
	}
	select {
	case <-s.done:
		return nil, ErrClosed
	default:
	}

	sub := &memorySub{pattern: pattern, ctx: ctx, ch: make(chan Message, s.subBuffer)}

	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
		case <-s.done:
		}
		s.mu.Lock()
		delete(s.subs, sub)
		s.mu.Unlock()

		sub.mu.Lock()
		sub.closed = true
		close(sub.ch)
		sub.mu.Unlock()
	}()

	return sub.ch, nil
}

func (s *MemoryStore) TryLock(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	s.data[key] = &memoryItem{value: owner, expireAt: s.expiry(ttl)}
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, key, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.lookup(key)
	if !ok {
		return nil
	}
	if item.value != owner {
		return ErrNotOwner
	}
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
		return nil
	}
}

func (s *MemoryStore) cleanupExpired() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.mu.Lock()
			now := s.now()
			for key, item := range s.data {
				if item.expired(now) {
					delete(s.data, key)
				}
			}
			s.mu.Unlock()
		}
	}
}

// Close stops the sweeper and ends every subscription.
func (s *MemoryStore) Close() error {
	s.closeOnce.Do(func() {
		s.ticker.Stop()
		close(s.done)
	})
	return nil
}

var _ Store = (*MemoryStore)(nil)
