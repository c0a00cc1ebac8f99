package clickhouse

import "time"

type ClientOption func(*ClientConfig)

type ClientConfig struct {
	Host            string
	Port            int
	Database        string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	DialTimeout     time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	UseHTTP         bool
	AsyncInsert     bool
	WaitForAsync    bool
	MaxExecTime     time.Duration
}

func defaultClientConfig() ClientConfig {
	return ClientConfig{
		Port:            9000,
		Database:        "default",
		User:            "default",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
	}
}

func WithHost(host string) ClientOption {
	return func(c *ClientConfig) { c.Host = host }
}

func WithPort(port int) ClientOption {
	return func(c *ClientConfig) {
		if port > 0 {
			c.Port = port
		}
	}
}

func WithDatabase(database string) ClientOption {
	return func(c *ClientConfig) {
		if database != "" {
			c.Database = database
		}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(c *ClientConfig) {
		c.User = user
		c.Password = password
	}
}

// WithMaxConnections sets max open and idle connections.
func WithMaxConnections(maxOpen, maxIdle int) ClientOption {
	return func(c *ClientConfig) {
		c.MaxOpenConns = maxOpen
		c.MaxIdleConns = maxIdle
	}
}

// WithTimeouts sets dial/read/write timeouts; zero keeps the default.
func WithTimeouts(dial, read, write time.Duration) ClientOption {
	return func(c *ClientConfig) {
		if dial > 0 {
			c.DialTimeout = dial
		}
		if read > 0 {
			c.ReadTimeout = read
		}
		if write > 0 {
			c.WriteTimeout = write
		}
	}
}

// WithHTTP switches from the native protocol to HTTP.
func WithHTTP(useHTTP bool) ClientOption {
	return func(c *ClientConfig) { c.UseHTTP = useHTTP }
}

func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(c *ClientConfig) {
		c.AsyncInsert = enabled
		c.WaitForAsync = wait
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(c *ClientConfig) { c.MaxExecTime = d }
}
