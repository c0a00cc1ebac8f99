package di

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/pkg/config"
	applogger "CopyFabric/pkg/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	followers := filepath.Join(dir, "followers.yaml")
	require.NoError(t, os.WriteFile(followers, []byte("masters:\n  \"m1\":\n    - follower_id: u-1\n      login: 7001\n      password: pw\n"), 0o644))

	cfg, err := config.Parse([]byte(`
server:
  port: 0
logging:
  level: error
coord:
  driver: memory
subscriptions:
  source: static
  file: ` + followers + `
broker:
  driver: sim
api:
  websocket: true
`))
	require.NoError(t, err)
	return cfg
}

func TestProvideResultSinkSkipsDisabled(t *testing.T) {
	cfg := testConfig(t)
	sink := ProvideResultSink(cfg, nil, nil, nil)
	assert.Equal(t, "", sink.Name())
	assert.NoError(t, sink.Record(context.Background(), nil))

	hub := ProvideResultHub(cfg, applogger.Nop())
	require.NotNil(t, hub)
	assert.Equal(t, "websocket", ProvideResultSink(cfg, nil, nil, hub).Name())
}

func TestProvideTerminalFactoryNeedsBridgeURL(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.Driver = "bridge"
	cfg.Broker.BridgeURL = ""
	_, err := ProvideTerminalFactory(cfg, applogger.Nop())
	assert.Error(t, err)
}

func TestInitializeAppInMemory(t *testing.T) {
	cfg := testConfig(t)
	app, err := InitializeApp(cfg)
	require.NoError(t, err)
	require.NotNil(t, app)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.RunContext(ctx) }()
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("app did not shut down")
	}
}
