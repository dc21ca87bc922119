// Package lock serializes work on ledger entities.
package lock

import (
	"context"
	"sort"
	"sync"
)

// Locker acquires exclusive locks on a set of keys. Keys are always taken in
// sorted order so two callers locking overlapping sets cannot deadlock.
type Locker interface {
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// Per-entity lock names used by the engine.
func ClaimKey(id string) string       { return "claim:" + id }
func AgentKey(id string) string       { return "agent:" + id }
func AssertionKey(hash string) string { return "assertion:" + hash }

func normalize(keys []string) []string {
	out := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex.
type Local struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func NewLocal() *Local {
	return &Local{entries: make(map[string]*entry)}
}

func (l *Local) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]string, 0, len(keys))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlockOne(held[i])
		}
	}
	for _, k := range keys {
		if err := l.lockOne(ctx, k); err != nil {
			release()
			return nil, err
		}
		held = append(held, k)
	}
	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *Local) lockOne(ctx context.Context, key string) error {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(key, e)
		return ctx.Err()
	}
}

func (l *Local) unlockOne(key string) {
	l.mu.Lock()
	e := l.entries[key]
	l.mu.Unlock()
	if e == nil {
		return
	}
	<-e.ch
	l.drop(key, e)
}

func (l *Local) drop(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}
