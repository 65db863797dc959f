// Package lock provides a deadlock-checked drop-in replacement for
// sync.RWMutex, used anywhere wit holds a lock for the length of a
// subprocess call (cloning, fetching) where an ordering mistake would
// otherwise hang silently.
package lock

import (
	"github.com/sasha-s/go-deadlock"
)

// RWMutex behaves like sync.RWMutex but, when go-deadlock detects a
// potential deadlock (a lock-ordering cycle or an over-long wait), it
// reports the stacks of the goroutines involved and runs go-deadlock's
// OnPotentialDeadlock handler, which by default exits the process.
type RWMutex struct {
	mu deadlock.RWMutex
}

func (m *RWMutex) Lock() { m.mu.Lock() }

func (m *RWMutex) Unlock() { m.mu.Unlock() }

func (m *RWMutex) RLock() { m.mu.RLock() }

func (m *RWMutex) RUnlock() { m.mu.RUnlock() }

// TryRLock attempts to acquire the read lock without blocking.
func (m *RWMutex) TryRLock() bool { return m.mu.TryRLock() }

// TryLock attempts to acquire the write lock without blocking.
func (m *RWMutex) TryLock() bool { return m.mu.TryLock() }
