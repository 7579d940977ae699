package service

import (
	"context"
	"sync"
)

// identityLocks serializes work per task identity. Entries are dropped once
// no caller holds or waits on them.
type identityLocks struct {
	mu      sync.Mutex
	entries map[string]*identityLock
}

type identityLock struct {
	sem  chan struct{}
	refs int
}

// acquire blocks until key is free or ctx is done. The returned func must be
// called exactly once.
func (l *identityLocks) acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	if l.entries == nil {
		l.entries = make(map[string]*identityLock)
	}
	entry, ok := l.entries[key]
	if !ok {
		entry = &identityLock{sem: make(chan struct{}, 1)}
		l.entries[key] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
		return func() {
			<-entry.sem
			l.unref(key, entry)
		}, nil
	case <-ctx.Done():
		l.unref(key, entry)
		return nil, ctx.Err()
	}
}

func (l *identityLocks) unref(key string, entry *identityLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.entries, key)
	}
}
