// Package agentpulse provides a top-level convenience entry point for
// instrumenting an agent process with minimal boilerplate.
//
// Usage:
//
//	import "github.com/agentpulse/agentpulse"
//
//	m, err := agentpulse.Start(ctx)
//	m, err := agentpulse.Start(ctx, agentpulse.WithAPIKey("..."),
//	    agentpulse.WithCollector("https://collector.example.com"))
//	defer m.Stop(ctx)
//
// This is a thin wrapper around [quick.Start]; both produce identical
// results. Use this package when you prefer the shorter import path.
package agentpulse

import (
	"context"

	"github.com/agentpulse/agentpulse/monitor"
	"github.com/agentpulse/agentpulse/quick"
)

// Option configures the monitor created by [New] and [Start].
type Option = quick.Option

// New assembles a monitor from defaults, config file, environment, and
// options, without starting it.
func New(opts ...Option) (*monitor.Monitor, error) {
	return quick.New(opts...)
}

// Start assembles a monitor and starts monitoring.
func Start(ctx context.Context, opts ...Option) (*monitor.Monitor, error) {
	return quick.Start(ctx, opts...)
}

// Re-export option shortcuts so callers never need to import quick/.

// WithAPIKey overrides the collector API key.
var WithAPIKey = quick.WithAPIKey

// WithCollector sets the collector base URL.
var WithCollector = quick.WithCollector

// WithAgentName labels the monitored process.
var WithAgentName = quick.WithAgentName

// WithConfigFile loads settings from a YAML file.
var WithConfigFile = quick.WithConfigFile

// WithManualOnly disables framework detection.
var WithManualOnly = quick.WithManualOnly

// WithLogger sets a custom zap logger.
var WithLogger = quick.WithLogger

// WithMonitorOptions forwards options to the underlying monitor.
var WithMonitorOptions = quick.WithMonitorOptions
