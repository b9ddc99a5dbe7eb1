package application

import (
	"sync"

	expense "strongbot/internal/expense/domain"
)

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// keyedMutex serializes work per session key without a global lock.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[expense.SessionKey]*keyLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[expense.SessionKey]*keyLock)}
}

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key expense.SessionKey) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
