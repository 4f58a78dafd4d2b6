// Package adapter defines the integration contract between the pipeline and
// a host framework: install hooks, produce raw callback data, remove hooks.
// One variant exists per supported framework plus a manual variant for
// caller-driven events.
//
// Hook bodies execute on the host's own goroutines. They translate and
// enqueue only: no network I/O, no panics back into host code. Any internal
// failure becomes a degraded callback instead.
package adapter

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/adapter/hook"
	"github.com/agentpulse/agentpulse/types"
)

// Raw callback kinds. These are the canonical shape every adapter is
// contractually required to produce; the normalizer consumes nothing else.
const (
	KindStepStart = "step_start"
	KindStepEnd   = "step_end"
	KindToolCall  = "tool_call"
	KindError     = "error"
	KindDegraded  = "degraded"
)

// RawCallback is the untyped payload an adapter extracts from one host
// callback invocation.
type RawCallback struct {
	// Kind is one of the Kind constants, or a framework-specific alias the
	// normalizer knows how to map.
	Kind string
	// Name identifies the step, chain, or tool involved.
	Name string
	// Fields carries framework-specific data, scrubbed later by the
	// normalizer.
	Fields map[string]any
	// Error describes a failure observed in the host callback, when any.
	Error string
	// Timestamp is when the callback fired. Zero means "now".
	Timestamp time.Time
}

// EmitFunc receives raw callbacks from hook bodies. Implementations must
// not block; the queue behind them drops oldest instead of waiting.
type EmitFunc func(RawCallback)

// Adapter installs and removes instrumentation for one framework.
type Adapter interface {
	// Name returns the framework identifier this variant serves.
	Name() string

	// Applicable reports whether the variant can instrument the current
	// host (its hook points are available).
	Applicable() bool

	// Setup installs interception for the session. Idempotent: a second
	// call for the same session is a no-op.
	Setup(ctx context.Context, session *types.Session) error

	// Teardown reverses every interception installed for the session,
	// restoring the host's original dispatch behavior. Safe to call zero,
	// one, or many times, including after partial host shutdown.
	Teardown(ctx context.Context, session *types.Session) error
}

// HookSet holds the dispatch slots a host exposes for interception. Nil
// points are simply not instrumented.
type HookSet struct {
	// Step is the agent step / chain dispatch path.
	Step *hook.Point
	// Tool is the tool invocation dispatch path.
	Tool *hook.Point
}

// Deps is what every adapter variant is built from.
type Deps struct {
	Emit   EmitFunc
	Hooks  HookSet
	Logger *zap.Logger
}

// safeEmit delivers a raw callback to the pipeline, converting any panic in
// the emit path into a best-effort degraded callback. Nothing escapes to the
// host goroutine.
func safeEmit(emit EmitFunc, logger *zap.Logger, raw RawCallback) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook emit panicked", zap.Any("recover", r), zap.String("kind", raw.Kind))
			func() {
				defer func() { _ = recover() }()
				emit(RawCallback{
					Kind:      KindDegraded,
					Name:      raw.Name,
					Error:     string(types.ErrHookFailure),
					Timestamp: time.Now().UTC(),
				})
			}()
		}
	}()
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}
	emit(raw)
}
