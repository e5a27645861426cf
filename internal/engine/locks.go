package engine

import "sync"

// idLocks serializes lifecycle operations per intent id. Entries live only
// while someone holds or waits for them.
type idLocks struct {
	mu    sync.Mutex
	locks map[string]*idLock
}

type idLock struct {
	sync.Mutex
	refs int
}

func newIDLocks() *idLocks {
	return &idLocks{locks: map[string]*idLock{}}
}

// lock blocks until id is free and returns its unlock func.
func (l *idLocks) lock(id string) func() {
	if l == nil {
		return func() {}
	}
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &idLock{}
		l.locks[id] = m
	}
	m.refs++
	l.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(l.locks, id)
		}
		l.mu.Unlock()
	}
}
