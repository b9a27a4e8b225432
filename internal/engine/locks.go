package engine

import "sync"

// ownerLocks serializes mutating operations per (guild, user). The store's
// conditional debits are the second line of defense; this keeps multi-step
// read-then-write operations from interleaving for the same member.
type ownerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOwnerLocks() *ownerLocks {
	return &ownerLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *ownerLocks) get(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	return m
}

// Lock takes the member's lock and returns the unlock func.
func (l *ownerLocks) Lock(guildID, userID string) func() {
	m := l.get(guildID + "|" + userID)
	m.Lock()
	return m.Unlock
}

// LockPair takes both members' locks in a stable order so two concurrent
// trades between the same pair cannot deadlock.
func (l *ownerLocks) LockPair(guildID, userA, userB string) func() {
	if userA == userB {
		return l.Lock(guildID, userA)
	}
	if userA > userB {
		userA, userB = userB, userA
	}
	first := l.get(guildID + "|" + userA)
	second := l.get(guildID + "|" + userB)
	first.Lock()
	second.Lock()
	return func() {
		second.Unlock()
		first.Unlock()
	}
}
