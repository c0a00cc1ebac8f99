package clickhouse

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	cfg := defaultClientConfig()
	for _, opt := range []ClientOption{
		WithHost("ch.internal"),
		WithDatabase("copyfabric"),
		WithCredentials("writer", "p@ss"),
		WithMaxExecutionTime(30 * time.Second),
		WithAsyncInsert(true, true),
	} {
		opt(&cfg)
	}

	u, err := url.Parse(buildDSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "clickhouse", u.Scheme)
	assert.Equal(t, "ch.internal:9000", u.Host)
	assert.Equal(t, "/copyfabric", u.Path)
	pw, _ := u.User.Password()
	assert.Equal(t, "p@ss", pw)

	q := u.Query()
	assert.Equal(t, "5s", q.Get("dial_timeout"))
	assert.Equal(t, "30", q.Get("max_execution_time"))
	assert.Equal(t, "1", q.Get("async_insert"))
	assert.Equal(t, "1", q.Get("wait_for_async_insert"))
	assert.Empty(t, q.Get("write_timeout"))
}

func TestBuildDSNHTTP(t *testing.T) {
	cfg := defaultClientConfig()
	WithHost("localhost")(&cfg)
	WithPort(8123)(&cfg)
	WithHTTP(true)(&cfg)

	u, err := url.Parse(buildDSN(cfg))
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme)
	assert.Equal(t, "localhost:8123", u.Host)
	assert.Empty(t, u.Query().Get("async_insert"))
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(context.Background())
	require.Error(t, err)
}
