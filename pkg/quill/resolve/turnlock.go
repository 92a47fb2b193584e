// Package resolve – turnlock.go implements per-user turn exclusion: a single
// user never has two turns resolving concurrently. A second concurrent turn
// is rejected immediately rather than queued.
package resolve

import (
	"errors"
	"sync"
)

// ErrTurnInProgress is returned when a turn is already resolving for the user.
var ErrTurnInProgress = errors.New("a turn is already in progress for this user")

// turnLocks tracks which users currently have a turn executing.
type turnLocks struct {
	mu     sync.Mutex
	active map[string]bool
}

func newTurnLocks() *turnLocks {
	return &turnLocks{active: make(map[string]bool)}
}

// acquire reserves the user's turn slot. Returns false if already held.
func (l *turnLocks) acquire(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.active[userID] {
		return false
	}
	l.active[userID] = true
	return true
}

// release frees the user's turn slot.
func (l *turnLocks) release(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.active, userID)
}
