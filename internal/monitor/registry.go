package monitor

import (
	"sync"

	"github.com/feshchenko/giftmarket-bot/internal/market"
)

// Session is a worker's notification subscription: the chat to push
// updates to and the counters the worker last saw.
type Session struct {
	ChatID    int64
	MessageID int
	LastSeen  market.Stats
}

// Registry maps worker IDs to their sessions. Opening the worker panel
// registers a session; re-opening overwrites it and resets the baseline,
// which suppresses notifications for changes made before the refresh.
// There is no unsubscribe; sessions live until process exit.
type Registry struct {
	mu       sync.RWMutex
	sessions map[int64]Session
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[int64]Session),
	}
}

// Register adds or replaces a worker session, last writer wins
func (r *Registry) Register(workerID, chatID int64, messageID int, baseline market.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[workerID] = Session{
		ChatID:    chatID,
		MessageID: messageID,
		LastSeen:  baseline,
	}
}

// Get returns a worker's session
func (r *Registry) Get(workerID int64) (Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[workerID]
	return s, ok
}

// Snapshot returns a copy of all current sessions
func (r *Registry) Snapshot() map[int64]Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := make(map[int64]Session, len(r.sessions))
	for id, s := range r.sessions {
		sessions[id] = s
	}
	return sessions
}

// SetLastSeen overwrites a worker's baseline counters. A session removed
// by a concurrent re-registration keeps the re-registration's baseline.
func (r *Registry) SetLastSeen(workerID int64, stats market.Stats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[workerID]
	if !ok {
		return
	}
	s.LastSeen = stats
	r.sessions[workerID] = s
}
