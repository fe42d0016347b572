package services

import (
	"sync"

	"github.com/mindmark/mindmark-server/internal/session"
)

// keyedLocks serializes work per session key. Entries are reference-counted
// and removed when the last holder releases, so the map does not grow with
// the number of sessions ever seen.
type keyedLocks struct {
	mu    sync.Mutex
	locks map[session.Key]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: make(map[session.Key]*lockEntry)}
}

// Acquire blocks until the caller holds the lock for key and returns the
// release function.
func (k *keyedLocks) Acquire(key session.Key) func() {
	k.mu.Lock()
	e, ok := k.locks[key]
	if !ok {
		e = &lockEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
