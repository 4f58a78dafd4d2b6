// Package store holds events that outlive their session: the spill buffer
// receives whatever was still undelivered at shutdown so a later process
// can replay it.
package store

import (
	"context"

	"github.com/agentpulse/agentpulse/types"
)

// Spill persists undelivered events for one session and hands them back on
// the next start.
type Spill interface {
	// Save appends events under the session id. Order is preserved.
	Save(ctx context.Context, sessionID string, events []types.Event) error
	// Load returns and removes everything saved for the session, oldest
	// first. A session with nothing spilled returns an empty slice.
	Load(ctx context.Context, sessionID string) ([]types.Event, error)
	// Close releases the underlying connection.
	Close() error
}
