package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"CopyFabric/pkg/coord"
)

const (
	lockRetry        = 50 * time.Millisecond
	defaultErrBudget = time.Second
)

// TerminalLock serializes broker access across workers. With a store it
// also holds lock:terminal:global so that other processes on the same host
// stay out of the terminal while a job runs.
type TerminalLock struct {
	mu    sync.Mutex
	store coord.Store
	owner     string
	ttl       time.Duration
	errBudget time.Duration
}

// NewTerminalLock builds a lock; store may be nil for process-local locking.
func NewTerminalLock(store coord.Store, ttl time.Duration) *TerminalLock {
	if ttl <= 0 {
		ttl = coord.TerminalLockTTL
	}
	return &TerminalLock{
		store:     store,
		owner:     "engine-" + uuid.NewString(),
		ttl:       ttl,
		errBudget: defaultErrBudget,
	}
}

// WithErrorBudget bounds how long Lock keeps retrying a failing store.
func (l *TerminalLock) WithErrorBudget(d time.Duration) *TerminalLock {
	if d > 0 {
		l.errBudget = d
	}
	return l
}

func (l *TerminalLock) Owner() string { return l.owner }

// Lock waits while another owner holds the global key. Store errors are
// retried for at most errBudget before Lock gives up and returns the error.
func (l *TerminalLock) Lock(ctx context.Context) error {
	l.mu.Lock()
	if l.store == nil {
		return nil
	}
	var failingSince time.Time
	for {
		ok, err := l.store.TryLock(ctx, coord.TerminalLockKey, l.owner, l.ttl)
		switch {
		case err == nil && ok:
			return nil
		case err == nil:
			failingSince = time.Time{}
		case failingSince.IsZero():
			failingSince = time.Now()
		case time.Since(failingSince) >= l.errBudget:
			l.mu.Unlock()
			return fmt.Errorf("terminal lock: %w", err)
		}

		t := time.NewTimer(lockRetry)
		select {
		case <-ctx.Done():
			t.Stop()
			l.mu.Unlock()
			if err != nil {
				return fmt.Errorf("terminal lock: %w", err)
			}
			return fmt.Errorf("terminal lock: %w", ctx.Err())
		case <-t.C:
		}
	}
}

func (l *TerminalLock) Unlock(ctx context.Context) error {
	defer l.mu.Unlock()
	if l.store == nil {
		return nil
	}
	if err := l.store.Unlock(ctx, coord.TerminalLockKey, l.owner); err != nil {
		return fmt.Errorf("terminal unlock: %w", err)
	}
	return nil
}
