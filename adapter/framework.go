package adapter

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/adapter/hook"
	"github.com/agentpulse/agentpulse/types"
)

// FrameworkAdapter instruments a host framework through the hook points it
// exposes. It is the shared implementation behind every framework variant;
// the variants differ only in identifier and in which points the host wires.
type FrameworkAdapter struct {
	name   string
	emit   EmitFunc
	hooks  HookSet
	logger *zap.Logger

	mu       sync.Mutex
	restores map[string][]hook.Restore
}

// NewFrameworkAdapter creates the variant for the given framework identifier.
func NewFrameworkAdapter(name string, deps Deps) *FrameworkAdapter {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FrameworkAdapter{
		name:     name,
		emit:     deps.Emit,
		hooks:    deps.Hooks,
		logger:   logger.With(zap.String("adapter", name)),
		restores: make(map[string][]hook.Restore),
	}
}

func (a *FrameworkAdapter) Name() string { return a.name }

// Applicable holds when the host exposed at least one hook point.
func (a *FrameworkAdapter) Applicable() bool {
	return a.hooks.Step != nil || a.hooks.Tool != nil
}

// Setup wraps every available hook point and keeps the restore handles for
// teardown. A second call for the same session is a no-op.
func (a *FrameworkAdapter) Setup(_ context.Context, session *types.Session) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.restores[session.ID]; ok {
		return nil
	}

	var restores []hook.Restore
	if a.hooks.Step != nil {
		restores = append(restores, a.hooks.Step.Wrap(a.stepMiddleware()))
	}
	if a.hooks.Tool != nil {
		restores = append(restores, a.hooks.Tool.Wrap(a.toolMiddleware()))
	}
	a.restores[session.ID] = restores

	a.logger.Debug("hooks installed",
		zap.String("session_id", session.ID),
		zap.Int("points", len(restores)),
	)
	return nil
}

// Teardown invokes the stored restore handles in reverse order, leaving the
// host's dispatch path as it was before Setup. Safe to call any number of
// times.
func (a *FrameworkAdapter) Teardown(_ context.Context, session *types.Session) error {
	a.mu.Lock()
	restores := a.restores[session.ID]
	delete(a.restores, session.ID)
	a.mu.Unlock()

	for i := len(restores) - 1; i >= 0; i-- {
		restores[i]()
	}
	if len(restores) > 0 {
		a.logger.Debug("hooks removed", zap.String("session_id", session.ID))
	}
	return nil
}

// stepMiddleware observes the step dispatch path: a step_start before the
// call, a step_end or error after. The host call itself is never altered,
// and observation failures never propagate into it.
func (a *FrameworkAdapter) stepMiddleware() hook.Middleware {
	return func(next hook.Dispatch) hook.Dispatch {
		return func(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
			start := time.Now().UTC()
			safeEmit(a.emit, a.logger, RawCallback{
				Kind:      KindStepStart,
				Name:      name,
				Fields:    args,
				Timestamp: start,
			})

			out, err := next(ctx, name, args)

			raw := RawCallback{
				Kind:      KindStepEnd,
				Name:      name,
				Fields:    map[string]any{"duration_ms": time.Since(start).Milliseconds()},
				Timestamp: time.Now().UTC(),
			}
			if err != nil {
				raw.Kind = KindError
				raw.Error = err.Error()
			}
			safeEmit(a.emit, a.logger, raw)

			return out, err
		}
	}
}

// toolMiddleware observes the tool dispatch path as a single tool_call
// record carrying the outcome.
func (a *FrameworkAdapter) toolMiddleware() hook.Middleware {
	return func(next hook.Dispatch) hook.Dispatch {
		return func(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
			start := time.Now().UTC()
			out, err := next(ctx, name, args)

			raw := RawCallback{
				Kind:      KindToolCall,
				Name:      name,
				Fields:    map[string]any{"duration_ms": time.Since(start).Milliseconds()},
				Timestamp: time.Now().UTC(),
			}
			for k, v := range args {
				raw.Fields["arg_"+k] = v
			}
			if err != nil {
				raw.Error = err.Error()
			}
			safeEmit(a.emit, a.logger, raw)

			return out, err
		}
	}
}
