package store

import "sync"

// keyLock hands out a mutual-exclusion lock per resource identifier so
// operations on the same bucket/key pair serialize while operations on
// distinct pairs proceed concurrently. Entries are reference counted and
// removed once the last holder unlocks.
type keyLock struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newKeyLock() *keyLock {
	return &keyLock{locks: make(map[string]*lockEntry)}
}

func (kl *keyLock) lock(id string) {
	kl.mu.Lock()
	e, ok := kl.locks[id]
	if !ok {
		e = &lockEntry{}
		kl.locks[id] = e
	}
	e.refs++
	kl.mu.Unlock()

	e.mu.Lock()
}

func (kl *keyLock) unlock(id string) {
	kl.mu.Lock()
	e := kl.locks[id]
	e.refs--
	if e.refs == 0 {
		delete(kl.locks, id)
	}
	kl.mu.Unlock()

	e.mu.Unlock()
}
