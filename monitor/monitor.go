// Package monitor wires the full pipeline for one monitored agent process:
// framework detection, adapter setup, normalization, buffered delivery, and
// heartbeats. It is the only package hosts talk to directly.
package monitor

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/agentpulse/agentpulse/adapter"
	"github.com/agentpulse/agentpulse/adapter/hook"
	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/detect"
	"github.com/agentpulse/agentpulse/heartbeat"
	"github.com/agentpulse/agentpulse/internal/metrics"
	"github.com/agentpulse/agentpulse/normalize"
	"github.com/agentpulse/agentpulse/store"
	"github.com/agentpulse/agentpulse/transport"
	"github.com/agentpulse/agentpulse/types"
)

// Sender is the collector client surface the monitor needs: batched events
// plus heartbeats. transport.Client implements it.
type Sender interface {
	transport.Sender
	heartbeat.Sender
}

// Monitor owns one instrumentation lifecycle. Start and Stop are idempotent
// and safe to call from any goroutine.
type Monitor struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *adapter.Registry
	detector   *detect.Detector
	normalizer *normalize.Normalizer
	sender     Sender
	spill      store.Spill
	metrics    *metrics.Collector
	hooks      adapter.HookSet

	onStart []func(*types.Session)
	onStop  []func(*types.Session)
	onError []func(error)

	mu      sync.Mutex
	session *types.Session
	active  adapter.Adapter
	manual  *adapter.ManualAdapter
	emit    adapter.EmitFunc
	queue   *transport.Queue
	cancel  context.CancelFunc
	group   *errgroup.Group
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithLogger replaces the logger built from config.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Monitor) { m.logger = logger }
}

// WithSender replaces the collector client. Used by tests and by hosts that
// tunnel through their own transport.
func WithSender(sender Sender) Option {
	return func(m *Monitor) { m.sender = sender }
}

// WithSpill replaces the spill store.
func WithSpill(spill store.Spill) Option {
	return func(m *Monitor) { m.spill = spill }
}

// WithDetector replaces the framework detector.
func WithDetector(d *detect.Detector) Option {
	return func(m *Monitor) { m.detector = d }
}

// WithHooks supplies host-owned dispatch points for adapters to wrap.
func WithHooks(hooks adapter.HookSet) Option {
	return func(m *Monitor) { m.hooks = hooks }
}

// WithAdapterFactory registers an extra framework adapter.
func WithAdapterFactory(name string, factory adapter.Factory) Option {
	return func(m *Monitor) { m.registry.Register(name, factory) }
}

// OnStart registers a callback fired after a session starts.
func OnStart(fn func(*types.Session)) Option {
	return func(m *Monitor) { m.onStart = append(m.onStart, fn) }
}

// OnStop registers a callback fired after a session stops.
func OnStop(fn func(*types.Session)) Option {
	return func(m *Monitor) { m.onStop = append(m.onStop, fn) }
}

// OnError registers a callback fired when the pipeline degrades: auth
// halts, rejected batches, queue overflow, persistent delivery failure.
func OnError(fn func(error)) Option {
	return func(m *Monitor) { m.onError = append(m.onError, fn) }
}

// New validates the configuration and assembles an idle monitor. Nothing
// is instrumented until Start.
func New(cfg *config.Config, opts ...Option) (*Monitor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, types.NewError(types.ErrConfiguration, err.Error()).WithCause(err)
	}
	if cfg.AgentName == "" {
		host, _ := os.Hostname()
		cfg.AgentName = fmt.Sprintf("agent-%s-%d", host, os.Getpid())
	}

	m := &Monitor{cfg: cfg}
	// Registry needs to exist before WithAdapterFactory options run.
	m.registry = adapter.NewRegistry(zap.NewNop())
	for _, opt := range opts {
		opt(m)
	}

	if m.logger == nil {
		logger, err := newLogger(cfg.Log)
		if err != nil {
			return nil, types.NewError(types.ErrConfiguration, "build logger: "+err.Error()).WithCause(err)
		}
		m.logger = logger
	}
	m.registry = m.registry.WithLogger(m.logger)

	if m.detector == nil {
		m.detector = detect.NewDetector(m.logger)
	}
	m.normalizer = normalize.New(cfg.Redaction, m.logger)
	if m.sender == nil {
		m.sender = transport.NewClient(cfg.CollectorURL, cfg.APIKey, cfg.Transport, m.logger)
	}
	if m.spill == nil {
		if cfg.Spill.Addr != "" {
			m.spill = store.NewRedisSpill(cfg.Spill, m.logger)
		} else {
			m.spill = store.NewMemorySpill()
		}
	}
	if cfg.Metrics.Enabled && m.metrics == nil {
		m.metrics = sharedCollector(cfg.Metrics.Namespace, m.logger)
	}
	if m.hooks.Step == nil {
		m.hooks.Step = hook.NewPoint(nil)
	}
	if m.hooks.Tool == nil {
		m.hooks.Tool = hook.NewPoint(nil)
	}
	return m, nil
}

var (
	sharedCollectorOnce sync.Once
	sharedCollectorInst *metrics.Collector
)

// sharedCollector registers the self-metrics once per process on the default
// Prometheus registry. Several monitors can share it; labels keep their
// sessions apart.
func sharedCollector(namespace string, logger *zap.Logger) *metrics.Collector {
	sharedCollectorOnce.Do(func() {
		sharedCollectorInst = metrics.NewCollector(namespace, prometheus.DefaultRegisterer, logger)
	})
	return sharedCollectorInst
}

// Hooks returns the dispatch points adapters wrap. Hosts route their step
// and tool execution through these to be observed.
func (m *Monitor) Hooks() adapter.HookSet {
	return m.hooks
}

// Session returns the current session, or nil before Start.
func (m *Monitor) Session() *types.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

// Start detects the host framework, installs the matching adapter, and
// launches the delivery pipeline. A second Start returns the running
// session unchanged.
func (m *Monitor) Start(ctx context.Context) (*types.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session != nil && m.session.Status() != types.StatusStopped {
		return m.session, nil
	}

	session := types.NewSession(m.sessionMetadata())
	queue := transport.NewQueue(m.cfg.Transport.QueueCap)
	emit := m.emitFunc(session, queue)

	// Replay anything a previous run left behind, ahead of new traffic.
	// Replayed events join this session's stream, so each takes a fresh
	// sequence number here, before anything else can emit, keeping the
	// per-session ordering intact on the wire.
	if spilled, err := m.spill.Load(ctx, m.cfg.AgentName); err != nil {
		m.logger.Warn("spill load failed", zap.Error(err))
	} else if len(spilled) > 0 {
		for i := range spilled {
			spilled[i].SessionID = session.ID
			spilled[i].SequenceNumber = session.NextSequence()
			queue.Enqueue(spilled[i])
		}
		m.logger.Info("replaying spilled events", zap.Int("events", len(spilled)))
	}

	deps := adapter.Deps{Emit: emit, Hooks: m.hooks, Logger: m.logger}
	manual := adapter.NewManualAdapter(emit, m.logger)
	active, candidates := m.pickAdapter(deps, manual)

	if err := manual.Setup(ctx, session); err != nil {
		return nil, err
	}
	if err := active.Setup(ctx, session); err != nil {
		// Hook installation failed; fall back to the manual path so the
		// session still observes caller-driven events.
		m.logger.Warn("adapter setup failed, falling back to manual",
			zap.String("adapter", active.Name()), zap.Error(err))
		emit(adapter.RawCallback{
			Kind:  adapter.KindDegraded,
			Name:  "adapter_setup_failed",
			Error: err.Error(),
			Fields: map[string]any{
				"adapter": active.Name(),
			},
		})
		active = manual
	}
	session.SetMetadata("framework", active.Name())

	session.SetStatus(types.StatusRunning)

	runCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(runCtx)
	worker := transport.NewWorker(session, queue, m.sender, m.cfg.Transport, m.degradedFunc(emit), m.logger, m.metrics)
	hb := heartbeat.NewScheduler(session, m.sender, m.cfg.Heartbeat.Interval, m.logger, m.metrics)
	group.Go(func() error { return worker.Run(gctx) })
	group.Go(func() error { return hb.Run(gctx) })

	m.session = session
	m.active = active
	m.manual = manual
	m.emit = emit
	m.queue = queue
	m.cancel = cancel
	m.group = group

	m.logger.Info("monitoring started",
		zap.String("session_id", session.ID),
		zap.String("adapter", active.Name()),
		zap.String("agent_name", m.cfg.AgentName))
	if len(candidates) > 1 {
		m.reportAmbiguity(emit, candidates)
	}
	for _, fn := range m.onStart {
		fn(session)
	}
	return session, nil
}

// Stop tears the pipeline down: workers drain and exit, hooks unwind,
// undelivered events spill, the session stops. Safe to call repeatedly.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || m.session.Status() == types.StatusStopped {
		return nil
	}

	m.cancel()
	_ = m.group.Wait()

	if err := m.active.Teardown(ctx, m.session); err != nil {
		m.logger.Warn("adapter teardown failed", zap.Error(err))
	}
	_ = m.manual.Teardown(ctx, m.session)
	m.session.SetStatus(types.StatusStopped)

	if rest := m.queue.DrainAll(); len(rest) > 0 {
		if err := m.spill.Save(ctx, m.cfg.AgentName, rest); err != nil {
			m.logger.Error("spill save failed, events lost",
				zap.Int("events", len(rest)), zap.Error(err))
		}
	}

	m.logger.Info("monitoring stopped", zap.String("session_id", m.session.ID))
	for _, fn := range m.onStop {
		fn(m.session)
	}
	return nil
}

// LogEvent emits one caller-driven raw callback of the given kind through
// the manual path. Unknown kinds are preserved as degraded events.
func (m *Monitor) LogEvent(kind, name string, fields map[string]any) {
	m.mu.Lock()
	session, manual, emit := m.session, m.manual, m.emit
	m.mu.Unlock()
	if session == nil || session.Status() == types.StatusStopped {
		return
	}
	switch kind {
	case adapter.KindStepStart:
		manual.EmitStepStart(session, name, fields)
	case adapter.KindStepEnd:
		manual.EmitStepEnd(session, name, fields)
	case adapter.KindToolCall:
		manual.EmitToolCall(session, name, fields)
	case adapter.KindError:
		manual.EmitError(session, name, nil, fields)
	default:
		// The normalizer resolves aliases and degrades the truly unknown.
		emit(adapter.RawCallback{Kind: kind, Name: name, Fields: fields})
	}
}

// Trace runs fn as an observed step: step_start before, step_end or error
// after, with the step duration. The error is returned unchanged.
func (m *Monitor) Trace(name string, fields map[string]any, fn func() error) error {
	m.mu.Lock()
	session, manual := m.session, m.manual
	m.mu.Unlock()
	if session == nil || manual == nil {
		return fn()
	}

	manual.EmitStepStart(session, name, fields)
	start := time.Now()
	err := fn()
	done := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	for k, v := range fields {
		done[k] = v
	}
	if err != nil {
		manual.EmitError(session, name, err, done)
		return err
	}
	manual.EmitStepEnd(session, name, done)
	return nil
}

// Error reports a host-observed failure as an error event.
func (m *Monitor) Error(name string, err error, fields map[string]any) {
	m.mu.Lock()
	session, manual := m.session, m.manual
	m.mu.Unlock()
	if session == nil || manual == nil {
		return
	}
	manual.EmitError(session, name, err, fields)
}

// emitFunc is the hook-side entry: normalize, count, enqueue. It runs on
// host goroutines and never blocks beyond the queue mutex.
func (m *Monitor) emitFunc(session *types.Session, queue *transport.Queue) adapter.EmitFunc {
	return func(raw adapter.RawCallback) {
		ev := m.normalizer.Normalize(raw, session)
		queue.Enqueue(ev)
		m.metrics.RecordEnqueued(session.ID, string(ev.Type))
	}
}

// degradedFunc lets the transport worker report its own trouble as events
// in the same stream, and fans it out to OnError callbacks.
func (m *Monitor) degradedFunc(emit adapter.EmitFunc) transport.DegradedFunc {
	return func(reason string, fields map[string]any) {
		emit(adapter.RawCallback{
			Kind:   adapter.KindDegraded,
			Name:   reason,
			Fields: fields,
		})
		for _, fn := range m.onError {
			fn(fmt.Errorf("pipeline degraded: %s", reason))
		}
	}
}

// pickAdapter resolves which adapter instruments this session. With
// detection off or nothing detected, the manual path serves.
func (m *Monitor) pickAdapter(deps adapter.Deps, manual *adapter.ManualAdapter) (adapter.Adapter, []detect.Candidate) {
	if !m.cfg.AutoDetect {
		return manual, nil
	}
	candidates := m.detector.Detect()
	if len(candidates) == 0 {
		m.logger.Info("no framework detected, using manual adapter")
		return manual, nil
	}

	chosen := candidates[0]
	ad, err := m.registry.Resolve(chosen.Framework, deps)
	if err != nil {
		m.logger.Warn("no adapter for detected framework, using manual",
			zap.String("framework", chosen.Framework))
		return manual, candidates
	}
	if !ad.Applicable() {
		m.logger.Warn("adapter not applicable on this host, using manual",
			zap.String("framework", chosen.Framework))
		return manual, candidates
	}
	return ad, candidates
}

// reportAmbiguity surfaces multi-framework detection as a diagnostic event
// so the collector side can see which candidate won.
func (m *Monitor) reportAmbiguity(emit adapter.EmitFunc, candidates []detect.Candidate) {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Framework
	}
	m.logger.Warn("multiple frameworks detected", zap.Strings("candidates", names))
	emit(adapter.RawCallback{
		Kind: adapter.KindDegraded,
		Name: "ambiguous_detection",
		Fields: map[string]any{
			"candidates": names,
			"chosen":     names[0],
		},
	})
}

func (m *Monitor) sessionMetadata() map[string]any {
	host, _ := os.Hostname()
	return map[string]any{
		"agent_name": m.cfg.AgentName,
		"hostname":   host,
		"pid":        os.Getpid(),
		"go_version": runtime.Version(),
	}
}
