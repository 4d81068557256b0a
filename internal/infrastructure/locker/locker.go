package locker

import "sync"

// Locker serializes work on a string key. Clearance evaluation locks the
// voucher reference so two transactions settling the same voucher cannot
// interleave their read-evaluate-write cycles.
type Locker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// New creates an empty locker
func New() *Locker {
	return &Locker{locks: make(map[string]*lockEntry)}
}

// Lock acquires the mutex for a key, creating it on first use
func (l *Locker) Lock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
}

// Unlock releases the mutex for a key and drops it when no one is waiting
func (l *Locker) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if ok {
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
	}
	l.mu.Unlock()

	if ok {
		e.mu.Unlock()
	}
}
