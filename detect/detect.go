// Package detect identifies which supported agent framework the host
// process links, by inspecting the build-info module list. Detection never
// fails: no known framework simply yields an empty candidate list and the
// pipeline falls back to the manual adapter.
package detect

import (
	"runtime/debug"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// Framework ranks. A full agent framework is more specific than a bare LLM
// SDK client, so it wins when both are linked.
const (
	rankFramework = 20
	rankSDK       = 10
)

// Candidate is one detected framework, ranked by specificity.
type Candidate struct {
	// Framework is the stable identifier used for adapter registration.
	Framework string
	// Module is the module path that matched.
	Module string
	// Version is the linked module version, when known.
	Version string
	// Rank orders candidates; higher is more specific.
	Rank int
}

type probe struct {
	modulePrefix string
	framework    string
	rank         int
}

// knownProbes maps module paths to framework identifiers. Order is
// irrelevant; ties are broken by rank then name.
var knownProbes = []probe{
	{"github.com/tmc/langchaingo", "langchaingo", rankFramework},
	{"github.com/cloudwego/eino", "eino", rankFramework},
	{"github.com/firebase/genkit/go", "genkit", rankFramework},
	{"github.com/openai/openai-go", "openai", rankSDK},
	{"github.com/sashabaranov/go-openai", "openai", rankSDK},
	{"github.com/anthropics/anthropic-sdk-go", "anthropic", rankSDK},
	{"github.com/ollama/ollama", "ollama", rankSDK},
}

// Module is one dependency of the host binary.
type Module struct {
	Path    string
	Version string
}

// Detector inspects the host process for known frameworks.
type Detector struct {
	modules func() []Module
	logger  *zap.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithModules replaces the build-info module source; used by tests and by
// hosts built without module information.
func WithModules(mods []Module) Option {
	return func(d *Detector) {
		d.modules = func() []Module { return mods }
	}
}

// NewDetector creates a detector reading the running binary's build info.
func NewDetector(logger *zap.Logger, opts ...Option) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Detector{
		modules: buildInfoModules,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the ranked candidate list: rank descending, then framework
// name ascending, so repeated runs over the same binary always select the
// same leader. One candidate per framework identifier; the first matching
// module wins for version reporting.
func (d *Detector) Detect() []Candidate {
	byFramework := make(map[string]Candidate)

	for _, mod := range d.modules() {
		for _, p := range knownProbes {
			if !matchesModule(mod.Path, p.modulePrefix) {
				continue
			}
			if _, seen := byFramework[p.framework]; seen {
				continue
			}
			byFramework[p.framework] = Candidate{
				Framework: p.framework,
				Module:    mod.Path,
				Version:   mod.Version,
				Rank:      p.rank,
			}
		}
	}

	candidates := make([]Candidate, 0, len(byFramework))
	for _, c := range byFramework {
		candidates = append(candidates, c)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Rank != candidates[j].Rank {
			return candidates[i].Rank > candidates[j].Rank
		}
		return candidates[i].Framework < candidates[j].Framework
	})

	if len(candidates) > 1 {
		names := make([]string, len(candidates))
		for i, c := range candidates {
			names[i] = c.Framework
		}
		d.logger.Debug("multiple frameworks detected",
			zap.Strings("candidates", names),
			zap.String("selected", candidates[0].Framework),
		)
	}
	return candidates
}

// matchesModule reports whether path is the probe module or a submodule of it.
func matchesModule(path, prefix string) bool {
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func buildInfoModules() []Module {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	mods := make([]Module, 0, len(info.Deps)+1)
	mods = append(mods, Module{Path: info.Main.Path, Version: info.Main.Version})
	for _, dep := range info.Deps {
		mods = append(mods, Module{Path: dep.Path, Version: dep.Version})
	}
	return mods
}
