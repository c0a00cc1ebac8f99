package coord

import "time"

// RedisOption configures the Redis store.
type RedisOption func(*RedisConfig)

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL          string
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	PoolTimeout  time.Duration
	MinIdleConns int
	Prefix       string
	SubBuffer    int
}

// WithRedisURL sets a redis:// URL; it takes precedence over Addr/Password/DB.
func WithRedisURL(url string) RedisOption {
	return func(c *RedisConfig) {
		c.URL = url
	}
}

// WithRedisAddr sets host:port.
func WithRedisAddr(addr string) RedisOption {
	return func(c *RedisConfig) {
		c.Addr = addr
	}
}

// WithRedisPassword sets Redis password.
func WithRedisPassword(password string) RedisOption {
	return func(c *RedisConfig) {
		c.Password = password
	}
}

// WithRedisDB sets Redis database number.
func WithRedisDB(db int) RedisOption {
	return func(c *RedisConfig) {
		c.DB = db
	}
}

// WithRedisPool sets connection pool settings.
func WithRedisPool(poolSize, minIdleConns int, timeout time.Duration) RedisOption {
	return func(c *RedisConfig) {
		c.PoolSize = poolSize
		c.MinIdleConns = minIdleConns
		c.PoolTimeout = timeout
	}
}

// WithRedisPrefix namespaces every key and channel. Empty by default.
func WithRedisPrefix(prefix string) RedisOption {
	return func(c *RedisConfig) {
		c.Prefix = prefix
	}
}

// WithSubscriptionBuffer sets the per-subscription delivery buffer.
func WithSubscriptionBuffer(n int) RedisOption {
	return func(c *RedisConfig) {
		if n > 0 {
			c.SubBuffer = n
		}
	}
}

// MemoryOption configures the in-process store.
type MemoryOption func(*MemoryConfig)

// MemoryConfig holds memory store configuration.
type MemoryConfig struct {
	CleanupInterval time.Duration
	SubBuffer       int
	Now             func() time.Time
}

// WithMemoryCleanup sets the expired-key sweep interval.
func WithMemoryCleanup(interval time.Duration) MemoryOption {
	return func(c *MemoryConfig) {
		c.CleanupInterval = interval
	}
}

// WithMemoryClock overrides the clock used for TTL checks.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(c *MemoryConfig) {
		c.Now = now
	}
}

// WithMemorySubscriptionBuffer sets the per-subscription delivery buffer.
func WithMemorySubscriptionBuffer(n int) MemoryOption {
	return func(c *MemoryConfig) {
		if n > 0 {
			c.SubBuffer = n
		}
	}
}
