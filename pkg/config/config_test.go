package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	c, err := Parse([]byte("environment: test\n"))
	require.NoError(t, err)

	assert.Equal(t, "redis", c.Coord.Driver)
	assert.Equal(t, 720*time.Hour, c.Coord.TicketTTL)
	assert.Equal(t, 30*time.Second, c.Subscriptions.CacheTTL)
	assert.Equal(t, 500*time.Millisecond, c.Executor.SettleDelay)
	assert.Equal(t, int64(234000), c.Executor.Magic)
	assert.Equal(t, 20, c.Terminals.GridMax)
	assert.Equal(t, 4, c.Terminals.MockWorkers)
	assert.Equal(t, 60*time.Second, c.Ingest.MaxSignalAge)
	assert.Zero(t, c.Dispatch.MaxLag)
}

func TestParseOverridesAndValidates(t *testing.T) {
	c, err := Parse([]byte(`
coord:
  driver: memory
subscriptions:
  source: static
  cache_ttl: 10s
broker:
  driver: sim
dispatch:
  max_lag: 3s
`))
	require.NoError(t, err)
	assert.Equal(t, "memory", c.Coord.Driver)
	assert.Equal(t, 10*time.Second, c.Subscriptions.CacheTTL)
	assert.Equal(t, 3*time.Second, c.Dispatch.MaxLag)

	bad := map[string]string{
		"coord driver":  "coord:\n  driver: etcd\n",
		"cache ttl":     "subscriptions:\n  cache_ttl: 1m\n",
		"kafka brokers": "kafka:\n  enabled: true\n",
		"clickhouse":    "clickhouse:\n  enabled: true\n",
		"broker driver": "broker:\n  driver: fix\n",
	}
	for name, doc := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestApplyEnv(t *testing.T) {
	c, err := Parse([]byte("coord:\n  driver: memory\n"))
	require.NoError(t, err)

	env := map[string]string{
		EnvRedisURL:     "redis://cache:6379/2",
		EnvDatabaseURL:  "postgres://copy@db/copy?sslmode=disable",
		EnvTerminalPath: `C:\MT5\terminal64.exe`,
		EnvKafkaBrokers: "k1:9092,k2:9092",
	}
	c.ApplyEnv(func(k string) string { return env[k] })

	assert.Equal(t, "redis", c.Coord.Driver)
	assert.Equal(t, "redis://cache:6379/2", c.Coord.URL)
	assert.Equal(t, "postgres://copy@db/copy?sslmode=disable", c.Subscriptions.DatabaseURL)
	assert.Equal(t, `C:\MT5\terminal64.exe`, c.Terminals.Override)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, c.Kafka.Brokers)
}

func TestLoadWithEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: prod\nsubscriptions:\n  source: static\n"), 0o600))
	t.Setenv(EnvTerminalPath, "/opt/mt5/terminal64.exe")

	c, err := LoadWithEnv(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", c.Environment)
	assert.Equal(t, "/opt/mt5/terminal64.exe", c.Terminals.Override)
}
