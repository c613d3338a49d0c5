package session

import (
	"context"
	"sync"
)

// Locks serializes turns per session id. Turns on different ids never wait
// on each other.
type Locks struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func NewLocks() *Locks {
	return &Locks{locks: make(map[string]*lockEntry)}
}

// Acquire blocks until the caller holds the lock for id or ctx is done. The
// returned release func must be called exactly once.
func (l *Locks) Acquire(ctx context.Context, id string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.locks[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(id, e)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(id, e)
		})
	}, nil
}

// TryAcquire takes the lock for id only when nobody holds or waits for it.
func (l *Locks) TryAcquire(id string) (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.locks[id]; busy {
		return nil, false
	}
	e := &lockEntry{sem: make(chan struct{}, 1), refs: 1}
	e.sem <- struct{}{}
	l.locks[id] = e

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.sem
			l.unref(id, e)
		})
	}, true
}

func (l *Locks) unref(id string, e *lockEntry) {
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

// Held reports how many ids currently have a holder or waiter.
func (l *Locks) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
