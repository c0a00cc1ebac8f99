package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CopyFabric/internal/domain/models"
	"CopyFabric/internal/domain/service"
	"CopyFabric/pkg/coord"
)

type recordingExecutor struct {
	mu      sync.Mutex
	order   []int64
	started chan int64
	gate    map[int64]chan struct{}
	panicOn int64
	during  func()
}

func newRecordingExecutor() *recordingExecutor {
	return &recordingExecutor{started: make(chan int64, 16), gate: make(map[int64]chan struct{})}
}

func (r *recordingExecutor) hold(ticket int64) chan struct{} {
	ch := make(chan struct{})
	r.mu.Lock()
	r.gate[ticket] = ch
	r.mu.Unlock()
	return ch
}

func (r *recordingExecutor) Execute(_ context.Context, path string, _ service.Terminal, job models.TradeJob) models.TradeResult {
	ticket := job.Signal.Ticket
	r.mu.Lock()
	r.order = append(r.order, ticket)
	gate := r.gate[ticket]
	r.mu.Unlock()
	r.started <- ticket

	if gate != nil {
		<-gate
	}
	if r.during != nil {
		r.during()
	}
	if ticket == r.panicOn {
		panic("broker binding crashed")
	}
	return models.TradeResult{AccountID: path, Status: models.StatusSuccess, Message: "ok", Action: job.Signal.Action}
}

func (r *recordingExecutor) executed() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.order...)
}

func job(ticket int64, premium bool) models.TradeJob {
	return models.NewTradeJob(
		models.Signal{MasterID: "m", Ticket: ticket, Action: models.ActionOpen},
		models.FollowerConfig{FollowerID: "f", Login: ticket, IsPremium: premium},
	)
}

func await(t *testing.T, ch <-chan models.TradeResult) models.TradeResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("result not delivered")
		return models.TradeResult{}
	}
}

func TestPremiumRunsBeforeFree(t *testing.T) {
	exec := newRecordingExecutor()
	release := exec.hold(1)
	e := New([]string{service.MockTerminal}, nil, exec, WithPopTimeout(50*time.Millisecond))
	defer e.Stop(context.Background())
	ctx := context.Background()

	blocker, err := e.Submit(ctx, job(1, false))
	require.NoError(t, err)
	require.Equal(t, int64(1), <-exec.started)

	free, err := e.Submit(ctx, job(2, false))
	require.NoError(t, err)
	premium, err := e.Submit(ctx, job(3, true))
	require.NoError(t, err)
	close(release)

	await(t, blocker)
	await(t, free)
	await(t, premium)
	assert.Equal(t, []int64{1, 3, 2}, exec.executed())
}

func TestPanicBecomesFailedResult(t *testing.T) {
	exec := newRecordingExecutor()
	exec.panicOn = 7
	e := New([]string{service.MockTerminal}, nil, exec)
	defer e.Stop(context.Background())

	ch, err := e.Submit(context.Background(), job(7, false))
	require.NoError(t, err)
	res := await(t, ch)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "broker binding crashed")

	ch, err = e.Submit(context.Background(), job(8, false))
	require.NoError(t, err)
	assert.Equal(t, models.StatusSuccess, await(t, ch).Status)
}

func TestStopDrainsQueue(t *testing.T) {
	exec := newRecordingExecutor()
	e := New([]string{service.MockTerminal, service.MockTerminal}, nil, exec, WithPopTimeout(20*time.Millisecond))

	var results []<-chan models.TradeResult
	for i := int64(1); i <= 10; i++ {
		ch, err := e.Submit(context.Background(), job(i, i%2 == 0))
		require.NoError(t, err)
		results = append(results, ch)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, e.Stop(ctx))
	for _, ch := range results {
		assert.Equal(t, models.StatusSuccess, await(t, ch).Status)
	}

	_, err := e.Submit(context.Background(), job(11, false))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestWorkersSerializeOnTerminalLock(t *testing.T) {
	store := coord.NewMemoryStore()
	defer store.Close()
	lock := NewTerminalLock(store, 0)

	exec := newRecordingExecutor()
	var mu sync.Mutex
	active, maxActive := 0, 0
	exec.during = func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		ok, err := store.TryLock(context.Background(), coord.TerminalLockKey, "intruder", time.Second)
		assert.NoError(t, err)
		assert.False(t, ok, "global terminal lock must be held during execution")
		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	}

	paths := []string{service.MockTerminal, service.MockTerminal, service.MockTerminal}
	e := New(paths, nil, exec, WithLock(lock))
	defer e.Stop(context.Background())

	var results []<-chan models.TradeResult
	for i := int64(1); i <= 6; i++ {
		ch, err := e.Submit(context.Background(), job(i, false))
		require.NoError(t, err)
		results = append(results, ch)
	}
	for _, ch := range results {
		await(t, ch)
	}
	assert.Equal(t, 1, maxActive)

	v, err := store.Get(context.Background(), coord.TerminalLockKey)
	assert.ErrorIs(t, err, coord.ErrNotFound, "lock left behind: %q", v)
}

type unreachableLockStore struct {
	*coord.MemoryStore
}

func (unreachableLockStore) TryLock(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("dial tcp 127.0.0.1:6379: connection refused")
}

func TestLockStoreOutageFailsJob(t *testing.T) {
	store := unreachableLockStore{coord.NewMemoryStore()}
	defer store.Close()
	lock := NewTerminalLock(store, 0).WithErrorBudget(100 * time.Millisecond)

	exec := newRecordingExecutor()
	e := New([]string{service.MockTerminal}, nil, exec, WithLock(lock))
	defer e.Stop(context.Background())

	ch, err := e.Submit(context.Background(), job(1, false))
	require.NoError(t, err)
	res := await(t, ch)
	assert.Equal(t, models.StatusFailed, res.Status)
	assert.Contains(t, res.Message, "Terminal Busy")
	assert.Contains(t, res.Message, "connection refused")
	assert.Empty(t, exec.executed())

	ch, err = e.Submit(context.Background(), job(2, false))
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, await(t, ch).Status, "worker must stay usable after a lock failure")
}

func TestFactoryBindsOneTerminalPerWorker(t *testing.T) {
	var mu sync.Mutex
	opened := map[string]int{}
	factory := func(path string) (service.Terminal, error) {
		mu.Lock()
		opened[path]++
		mu.Unlock()
		return nil, nil
	}
	exec := newRecordingExecutor()
	e := New([]string{"/t/5", "/t/6", service.MockTerminal}, factory, exec)
	e.Start()
	e.Start()
	require.NoError(t, e.Stop(context.Background()))

	assert.Equal(t, map[string]int{"/t/5": 1, "/t/6": 1}, opened)
	assert.Equal(t, 3, e.Size())
}

func TestResolveTerminals(t *testing.T) {
	dir := t.TempDir()
	tmpl := filepath.Join(dir, "terminal_{i}", "terminal64.exe")
	for _, i := range []string{"2", "5", "7"} {
		p := filepath.Join(dir, "terminal_"+i)
		require.NoError(t, os.MkdirAll(p, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(p, "terminal64.exe"), nil, 0o644))
	}

	got := ResolveTerminals(PoolConfig{GridTemplate: tmpl, GridMax: 10, Override: "/ignored"})
	assert.Equal(t, []string{
		filepath.Join(dir, "terminal_5", "terminal64.exe"),
		filepath.Join(dir, "terminal_7", "terminal64.exe"),
	}, got)

	got = ResolveTerminals(PoolConfig{GridTemplate: filepath.Join(dir, "none_{i}"), GridMax: 10, Override: "/opt/mt5/terminal64.exe"})
	assert.Equal(t, []string{"/opt/mt5/terminal64.exe"}, got)

	got = ResolveTerminals(PoolConfig{})
	assert.Equal(t, []string{service.MockTerminal, service.MockTerminal, service.MockTerminal, service.MockTerminal}, got)
}
