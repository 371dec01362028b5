// Package lock provides per-user in-process locking. Reward claims, unlocks and
// transfers for one user are serialized through it; database constraints still
// arbitrate between processes.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrLockTimeout is returned when a lock cannot be acquired in time.
var ErrLockTimeout = errors.New("lock acquisition timeout")

type userMutex struct {
	sem     chan struct{}
	waiters int
}

// UserLock hands out one mutex per user id. Mutexes are dropped once nobody
// holds or waits on them, so the map does not grow with the user base.
type UserLock struct {
	mu      sync.Mutex
	locks   map[int64]*userMutex
	timeout time.Duration
}

// NewUserLock creates a new UserLock. A positive timeout bounds how long WithLock
// waits for a busy user; zero waits as long as the context allows.
func NewUserLock(timeout time.Duration) *UserLock {
	return &UserLock{locks: make(map[int64]*userMutex), timeout: timeout}
}

func (ul *UserLock) acquire(userID int64) *userMutex {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m, ok := ul.locks[userID]
	if !ok {
		m = &userMutex{sem: make(chan struct{}, 1)}
		ul.locks[userID] = m
	}
	m.waiters++
	return m
}

func (ul *UserLock) release(userID int64, m *userMutex) {
	ul.mu.Lock()
	defer ul.mu.Unlock()
	m.waiters--
	if m.waiters == 0 {
		delete(ul.locks, userID)
	}
}

// WithLock runs fn while holding the user's lock. It gives up with ctx's error
// when ctx ends first, or ErrLockTimeout when the configured wait runs out.
func (ul *UserLock) WithLock(ctx context.Context, userID int64, fn func() error) error {
	m := ul.acquire(userID)
	defer ul.release(userID, m)

	wait := ctx
	if ul.timeout > 0 {
		var cancel context.CancelFunc
		wait, cancel = context.WithTimeout(ctx, ul.timeout)
		defer cancel()
	}

	select {
	case m.sem <- struct{}{}:
	case <-wait.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrLockTimeout
	}
	defer func() { <-m.sem }()

	return fn()
}
