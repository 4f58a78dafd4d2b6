package store

import (
	"context"
	"sync"

	"github.com/agentpulse/agentpulse/types"
)

// MemorySpill is the in-process fallback used when no Redis address is
// configured. It survives Stop/Start cycles within one process only.
type MemorySpill struct {
	mu     sync.Mutex
	buffer map[string][]types.Event
}

// NewMemorySpill creates an empty in-process spill buffer.
func NewMemorySpill() *MemorySpill {
	return &MemorySpill{buffer: make(map[string][]types.Event)}
}

// Save appends the events under the session id.
func (s *MemorySpill) Save(_ context.Context, sessionID string, events []types.Event) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffer[sessionID] = append(s.buffer[sessionID], events...)
	return nil
}

// Load returns and removes everything saved for the session.
func (s *MemorySpill) Load(_ context.Context, sessionID string) ([]types.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.buffer[sessionID]
	delete(s.buffer, sessionID)
	return events, nil
}

// Close is a no-op.
func (s *MemorySpill) Close() error { return nil }
