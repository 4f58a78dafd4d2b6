package types

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// SessionStatus is the lifecycle state of a monitored agent run.
type SessionStatus string

const (
	StatusStarting SessionStatus = "starting"
	StatusRunning  SessionStatus = "running"
	StatusIdle     SessionStatus = "idle"
	StatusErrored  SessionStatus = "errored"
	StatusStopped  SessionStatus = "stopped"
)

// Session is one monitored agent run. It is owned exclusively by the
// pipeline: created on adapter setup, transitioned on hook events and
// transport failures, released on Stop or process exit.
//
// NextSequence and Status are safe for concurrent use; hooks fired from
// multiple host goroutines contend on the atomic sequence counter only.
type Session struct {
	ID        string
	StartedAt time.Time

	mu       sync.RWMutex
	status   SessionStatus
	metadata map[string]any

	seq atomic.Uint64
}

// NewSession creates a session in StatusStarting with a fresh opaque id.
func NewSession(metadata map[string]any) *Session {
	if metadata == nil {
		metadata = make(map[string]any)
	}
	return &Session{
		ID:        uuid.NewString(),
		StartedAt: time.Now().UTC(),
		status:    StatusStarting,
		metadata:  metadata,
	}
}

// NextSequence returns the next sequence number for this session, starting
// at 0. Assignment is atomic and total: concurrent callers each observe a
// distinct, strictly increasing value, with no gaps.
func (s *Session) NextSequence() uint64 {
	return s.seq.Add(1) - 1
}

// Status returns the current lifecycle state.
func (s *Session) Status() SessionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// SetStatus transitions the session to the given state and reports whether
// the state actually changed. Transitions out of StatusStopped are refused;
// a stopped session stays stopped.
func (s *Session) SetStatus(status SessionStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == status || s.status == StatusStopped {
		return false
	}
	s.status = status
	return true
}

// Metadata returns a copy of the session metadata.
func (s *Session) Metadata() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.metadata))
	for k, v := range s.metadata {
		out[k] = v
	}
	return out
}

// SetMetadata sets a single metadata entry.
func (s *Session) SetMetadata(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata[key] = value
}
