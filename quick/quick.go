// =============================================================================
// Package quick — One-Line Monitoring Setup
// =============================================================================
// Provides a convenience entry point for instrumenting an agent process with
// minimal boilerplate. Delegates to config.Loader and monitor.New internally.
//
// Usage:
//
//	import "github.com/agentpulse/agentpulse/quick"
//
//	m, err := quick.Start(ctx)                          // env-configured
//	m, err := quick.Start(ctx, quick.WithAPIKey("..."),
//	    quick.WithCollector("https://collector.example.com"))
//	defer m.Stop(ctx)
//
// =============================================================================
package quick

import (
	"context"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/monitor"
)

// Option configures the monitor created by New and Start.
type Option func(*options)

type options struct {
	apiKey     string
	collector  string
	agentName  string
	configPath string
	manualOnly bool
	logger     *zap.Logger
	monitor    []monitor.Option
}

// WithAPIKey overrides the collector API key. Defaults to AGENTPULSE_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithCollector sets the collector base URL. Defaults to
// AGENTPULSE_COLLECTOR_URL.
func WithCollector(url string) Option {
	return func(o *options) { o.collector = url }
}

// WithAgentName labels the monitored process.
func WithAgentName(name string) Option {
	return func(o *options) { o.agentName = name }
}

// WithConfigFile loads settings from a YAML file before applying the
// environment and these options.
func WithConfigFile(path string) Option {
	return func(o *options) { o.configPath = path }
}

// WithManualOnly disables framework detection; only caller-driven events
// are observed.
func WithManualOnly() Option {
	return func(o *options) { o.manualOnly = true }
}

// WithLogger sets a custom zap logger. Defaults to one built from config.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithMonitorOptions forwards options to the underlying monitor, for hosts
// that need custom adapters, hooks, or stores.
func WithMonitorOptions(opts ...monitor.Option) Option {
	return func(o *options) { o.monitor = append(o.monitor, opts...) }
}

// New assembles a monitor with minimal configuration. Precedence:
// defaults, then config file, then environment, then these options.
func New(opts ...Option) (*monitor.Monitor, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	loader := config.NewLoader()
	if o.configPath != "" {
		loader = loader.WithConfigPath(o.configPath)
	}
	// Validation runs in monitor.New after the option overrides land.
	cfg, err := loader.WithValidator(func(*config.Config) error { return nil }).Load()
	if err != nil {
		return nil, err
	}
	if o.apiKey != "" {
		cfg.APIKey = o.apiKey
	}
	if o.collector != "" {
		cfg.CollectorURL = o.collector
	}
	if o.agentName != "" {
		cfg.AgentName = o.agentName
	}
	if o.manualOnly {
		cfg.AutoDetect = false
	}

	mopts := o.monitor
	if o.logger != nil {
		mopts = append([]monitor.Option{monitor.WithLogger(o.logger)}, mopts...)
	}
	return monitor.New(cfg, mopts...)
}

// Start assembles a monitor and starts it.
func Start(ctx context.Context, opts ...Option) (*monitor.Monitor, error) {
	m, err := New(opts...)
	if err != nil {
		return nil, err
	}
	if _, err := m.Start(ctx); err != nil {
		return nil, err
	}
	return m, nil
}
