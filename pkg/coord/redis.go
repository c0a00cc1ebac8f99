package coord

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// unlockScript deletes the lock only when the caller still owns it.
// Returns 1 on release, 0 when the key is gone, -1 when someone else owns it.
var unlockScript = redis.NewScript(`
local v = redis.call("GET", KEYS[1])
if not v then return 0 end
if v == ARGV[1] then return redis.call("DEL", KEYS[1]) end
return -1
`)

// RedisStore implements Store on Redis.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	subBuffer int
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(opts ...RedisOption) (*RedisStore, error) {
	cfg := &RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		PoolTimeout:  30 * time.Second,
		MinIdleConns: 2,
		SubBuffer:    256,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	var ropts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		ropts = parsed
	} else {
		ropts = &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}
	ropts.PoolSize = cfg.PoolSize
	ropts.PoolTimeout = cfg.PoolTimeout
	ropts.MinIdleConns = cfg.MinIdleConns

	client := redis.NewClient(ropts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: client, prefix: cfg.Prefix, subBuffer: cfg.SubBuffer}, nil
}

// NewRedisStoreFromClient wraps an existing client without pinging it.
func NewRedisStoreFromClient(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, subBuffer: 256}
}

// Client returns the underlying redis client.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	v, err := s.client.Get(ctx, s.wrapKey(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return v, nil
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.wrapKey(key), value, ttl).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return s.client.SAdd(ctx, s.wrapKey(key), args...).Err()
}

func (s *RedisStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return s.client.SIsMember(ctx, s.wrapKey(key), member).Result()
}

func (s *RedisStore) Publish(ctx context.Context, channel string, payload []byte) error {
	return s.client.Publish(ctx, s.wrapKey(channel), payload).Err()
}

func (s *RedisStore) Subscribe(ctx context.Context, pattern string) (<-chan Message, error) {
	ps := s.client.PSubscribe(ctx, s.wrapKey(pattern))
	// wait for the subscription confirmation so no publish is missed after return
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("psubscribe %s: %w", pattern, err)
	}

	out := make(chan Message, s.subBuffer)
	go func() {
		defer close(out)
		defer ps.Close()

		in := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg := Message{
					Channel: s.unwrapKey(m.Channel),
					Pattern: s.unwrapKey(m.Pattern),
					Payload: []byte(m.Payload),
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (s *RedisStore) TryLock(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	return s.client.SetNX(ctx, s.wrapKey(key), owner, ttl).Result()
}

func (s *RedisStore) Unlock(ctx context.Context, key, owner string) error {
	res, err := unlockScript.Run(ctx, s.client, []string{s.wrapKey(key)}, owner).Int()
	if err != nil {
		return fmt.Errorf("unlock %s: %w", key, err)
	}
	if res < 0 {
		return ErrNotOwner
	}
	return nil
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) wrapKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + ":" + key
}

func (s *RedisStore) unwrapKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(key, s.prefix+":")
}

var _ Store = (*RedisStore)(nil)
