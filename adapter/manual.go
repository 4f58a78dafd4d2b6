package adapter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/types"
)

// ManualName is the identifier of the fallback variant.
const ManualName = "manual"

// ManualAdapter is the generic fallback when no framework is detected. It
// installs nothing into the host; the caller drives events explicitly
// through the Emit helpers.
type ManualAdapter struct {
	emit   EmitFunc
	logger *zap.Logger

	mu        sync.Mutex
	installed map[string]bool
}

// NewManualAdapter creates the manual variant.
func NewManualAdapter(emit EmitFunc, logger *zap.Logger) *ManualAdapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ManualAdapter{
		emit:      emit,
		logger:    logger,
		installed: make(map[string]bool),
	}
}

func (a *ManualAdapter) Name() string { return ManualName }

// Applicable always holds; manual instrumentation needs nothing from the host.
func (a *ManualAdapter) Applicable() bool { return true }

// Setup marks the session active. Calling it twice is a no-op.
func (a *ManualAdapter) Setup(_ context.Context, session *types.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.installed[session.ID] {
		return nil
	}
	a.installed[session.ID] = true
	a.logger.Debug("manual adapter set up", zap.String("session_id", session.ID))
	return nil
}

// Teardown deactivates the session. Safe to call any number of times.
func (a *ManualAdapter) Teardown(_ context.Context, session *types.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.installed, session.ID)
	return nil
}

func (a *ManualAdapter) active(sessionID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.installed[sessionID]
}

// EmitStepStart records the beginning of a caller-defined step.
func (a *ManualAdapter) EmitStepStart(session *types.Session, name string, fields map[string]any) {
	a.emitKind(session, KindStepStart, name, fields, "")
}

// EmitStepEnd records the end of a caller-defined step.
func (a *ManualAdapter) EmitStepEnd(session *types.Session, name string, fields map[string]any) {
	a.emitKind(session, KindStepEnd, name, fields, "")
}

// EmitToolCall records a tool invocation.
func (a *ManualAdapter) EmitToolCall(session *types.Session, tool string, fields map[string]any) {
	a.emitKind(session, KindToolCall, tool, fields, "")
}

// EmitError records a failure observed by the caller.
func (a *ManualAdapter) EmitError(session *types.Session, name string, err error, fields map[string]any) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.emitKind(session, KindError, name, fields, msg)
}

func (a *ManualAdapter) emitKind(session *types.Session, kind, name string, fields map[string]any, errMsg string) {
	if session == nil || !a.active(session.ID) {
		return
	}
	safeEmit(a.emit, a.logger, RawCallback{
		Kind:      kind,
		Name:      name,
		Fields:    fields,
		Error:     errMsg,
		Timestamp: time.Now().UTC(),
	})
}
