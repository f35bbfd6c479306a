package service

import "sync"

// GuildLocker serializes writers of the same guild.
// Locks of different guilds never block each other.
type GuildLocker struct {
	mu    sync.Mutex
	locks map[uint64]*guildLock
}

type guildLock struct {
	mu   sync.Mutex
	refs int
}

// NewGuildLocker creates an empty locker.
func NewGuildLocker() *GuildLocker {
	return &GuildLocker{
		locks: make(map[uint64]*guildLock),
	}
}

// Lock blocks until the guild is free and returns the matching unlock function.
func (l *GuildLocker) Lock(guildID uint64) func() {
	l.mu.Lock()

	lock, ok := l.locks[guildID]
	if !ok {
		lock = &guildLock{}
		l.locks[guildID] = lock
	}

	lock.refs++
	l.mu.Unlock()

	lock.mu.Lock()

	return func() {
		lock.mu.Unlock()

		l.mu.Lock()
		lock.refs--

		if lock.refs == 0 {
			delete(l.locks, guildID)
		}
		l.mu.Unlock()
	}
}
