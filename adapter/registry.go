package adapter

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Factory builds an adapter variant from the pipeline's dependencies.
type Factory func(deps Deps) Adapter

// Registry maps framework identifiers to adapter factories. It is an
// explicit, owned object: built at startup, read-mostly afterwards. Custom
// adapters may be registered before the pipeline starts.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	logger    *zap.Logger
}

// NewRegistry creates a registry pre-populated with the built-in variants.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		factories: make(map[string]Factory),
		logger:    logger,
	}
	r.registerBuiltins()
	return r
}

// builtinFrameworks are the identifiers the detector can produce. Each maps
// to a FrameworkAdapter bound to whatever hook points the host exposes.
var builtinFrameworks = []string{
	"langchaingo", "eino", "genkit", "openai", "anthropic", "ollama",
}

func (r *Registry) registerBuiltins() {
	r.Register(ManualName, func(deps Deps) Adapter {
		return NewManualAdapter(deps.Emit, deps.Logger)
	})
	for _, name := range builtinFrameworks {
		name := name
		r.Register(name, func(deps Deps) Adapter {
			return NewFrameworkAdapter(name, deps)
		})
	}
}

// WithLogger swaps the registry logger, keeping registrations. Used when
// registrations happen before the final logger exists.
func (r *Registry) WithLogger(logger *zap.Logger) *Registry {
	if logger == nil {
		return r
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
	return r
}

// Register adds or replaces a factory for the identifier.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		r.logger.Debug("replacing adapter factory", zap.String("framework", name))
	}
	r.factories[name] = factory
}

// Resolve builds the adapter for the identifier.
func (r *Registry) Resolve(name string, deps Deps) (Adapter, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no adapter registered for framework %q", name)
	}
	return factory(deps), nil
}

// Frameworks returns the registered identifiers, sorted.
func (r *Registry) Frameworks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
