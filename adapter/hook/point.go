// Package hook formalizes callback interception as an explicit wrap/unwrap
// pair. A host framework exposes its dispatch function through a Point;
// adapters wrap the point and hold the returned Restore handle, and teardown
// invokes the handle instead of re-deriving the patch.
package hook

import (
	"context"
	"sync"
)

// Dispatch is the function shape a host exposes for interception: one
// callback invocation with a name and structured arguments.
type Dispatch func(ctx context.Context, name string, args map[string]any) (map[string]any, error)

// Middleware wraps a Dispatch, observing or altering calls that flow
// through it.
type Middleware func(Dispatch) Dispatch

// Restore undoes one Wrap, putting back the dispatch function that was in
// place before it. Safe to call zero, one, or many times.
type Restore func()

// Point is a wrappable dispatch slot. The zero value is unusable; create
// with NewPoint around the host's original function.
type Point struct {
	mu sync.Mutex
	fn Dispatch
}

// NewPoint creates a point dispatching to fn. A nil fn dispatches to a
// no-op returning its args unchanged, which lets hosts expose observation
// points that have no underlying behavior of their own.
func NewPoint(fn Dispatch) *Point {
	if fn == nil {
		fn = func(_ context.Context, _ string, args map[string]any) (map[string]any, error) {
			return args, nil
		}
	}
	return &Point{fn: fn}
}

// Invoke calls the current dispatch chain. Host code calls this wherever it
// previously called its own function directly.
func (p *Point) Invoke(ctx context.Context, name string, args map[string]any) (map[string]any, error) {
	p.mu.Lock()
	fn := p.fn
	p.mu.Unlock()
	return fn(ctx, name, args)
}

// Wrap installs mw around the current dispatch chain and returns the handle
// that removes exactly this layer's effect. Unwrapping out of order restores
// the function captured at wrap time, so a single adapter that unwinds its
// handles in reverse order always lands back on the pre-Setup dispatch.
func (p *Point) Wrap(mw Middleware) Restore {
	p.mu.Lock()
	prev := p.fn
	p.fn = mw(prev)
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			p.fn = prev
			p.mu.Unlock()
		})
	}
}
