// Package queue - locks.go
// One lock per queue id, created lazily.
package queue

import (
	"context"
	"sync"
)

// LockRegistry hands out one mutual-exclusion slot per queue id. Lookups take
// the read lock; creation re-checks under the write lock so concurrent first
// joins never end up with two different locks for the same queue.
type LockRegistry struct {
	mu    sync.RWMutex
	locks map[string]chan struct{}
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{locks: map[string]chan struct{}{}}
}

func (r *LockRegistry) get(id string) chan struct{} {
	r.mu.RLock()
	l, ok := r.locks[id]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.locks[id]; ok { // double check
		return l
	}
	l = make(chan struct{}, 1)
	r.locks[id] = l
	return l
}

// Lock blocks until the queue's slot is free or ctx is done.
func (r *LockRegistry) Lock(ctx context.Context, id string) (unlock func(), err error) {
	l := r.get(id)
	select {
	case l <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-l }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len is the number of queues that have been locked at least once.
func (r *LockRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locks)
}
