package sync

import (
	stdsync "sync"

	"github.com/google/uuid"
)

// Locker serializes pipelines per contract. A contract can only be
// worked on by one pipeline at a time; the token fences stale releases.
type Locker struct {
	mu     stdsync.Mutex
	tokens map[string]string
}

func NewLocker() *Locker {
	return &Locker{
		tokens: make(map[string]string),
	}
}

// TryLock attempts to claim the contract. It never blocks; a false
// return means another pipeline holds the contract.
func (l *Locker) TryLock(contractID string) (string, bool) {
	if l == nil || contractID == "" {
		return "", false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, held := l.tokens[contractID]; held {
		return "", false
	}
	token := uuid.NewString()
	l.tokens[contractID] = token
	return token, true
}

// Release frees the contract only when the token matches the claim.
func (l *Locker) Release(contractID, token string) {
	if l == nil || contractID == "" || token == "" {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if current, held := l.tokens[contractID]; held && current == token {
		delete(l.tokens, contractID)
	}
}
