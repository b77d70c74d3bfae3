package memory

import (
	"context"
	"sync"

	"cartstorm/internal/storage"
)

// Session status values mirrored from the shop database.
const (
	SessionInProgress = "in_progress"
	SessionAbandoned  = "abandoned"
	SessionCompleted  = "completed"
)

// sessionRecord is one tracked shop session.
type sessionRecord struct {
	runID  string
	status string
}

// SessionCleaner is an in-memory implementation of
// storage.SessionCleaner, used by tests and dry runs.
type SessionCleaner struct {
	mu       sync.Mutex
	sessions map[string]*sessionRecord // keyed by session_id
}

// NewSessionCleaner creates an empty cleaner.
func NewSessionCleaner() *SessionCleaner {
	return &SessionCleaner{sessions: make(map[string]*sessionRecord)}
}

// Compile-time interface check.
var _ storage.SessionCleaner = (*SessionCleaner)(nil)

// Track records a session with the given status.
func (c *SessionCleaner) Track(runID, sessionID, status string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = &sessionRecord{runID: runID, status: status}
}

// Status returns a session's status, or "" if unknown.
func (c *SessionCleaner) Status(sessionID string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rec, ok := c.sessions[sessionID]; ok {
		return rec.status
	}
	return ""
}

// AbandonOrphans marks the run's in-progress sessions abandoned.
func (c *SessionCleaner) AbandonOrphans(_ context.Context, runID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var swept int64
	for _, rec := range c.sessions {
		if rec.runID == runID && rec.status == SessionInProgress {
			rec.status = SessionAbandoned
			swept++
		}
	}
	return swept, nil
}
