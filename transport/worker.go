package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/internal/metrics"
	"github.com/agentpulse/agentpulse/types"
)

// Sender delivers one batch to the collector. Implemented by Client;
// replaced by fakes in tests.
type Sender interface {
	SendEvents(ctx context.Context, sessionID string, events []types.Event) error
}

// DegradedFunc receives internal pipeline trouble as a reason plus detail
// fields. The monitor turns these into degraded events on the same queue.
type DegradedFunc func(reason string, fields map[string]any)

// Worker drains the session queue into batches and delivers them. A single
// worker goroutine per session keeps delivery order identical to enqueue
// order.
type Worker struct {
	session *types.Session
	queue   *Queue
	sender  Sender
	policy  Policy
	cfg     config.TransportConfig

	onDegraded DegradedFunc
	logger     *zap.Logger
	metrics    *metrics.Collector
	tracer     trace.Tracer

	// Delivery state. Touched only by the worker goroutine.
	authHalted        bool
	firstFailure      time.Time
	errorReported     bool
	reportedEvictions uint64
	lastEvictionAt    time.Time
}

// NewWorker wires a delivery worker for one session. Metrics may be nil.
func NewWorker(session *types.Session, queue *Queue, sender Sender, cfg config.TransportConfig, onDegraded DegradedFunc, logger *zap.Logger, collector *metrics.Collector) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onDegraded == nil {
		onDegraded = func(string, map[string]any) {}
	}
	return &Worker{
		session:    session,
		queue:      queue,
		sender:     sender,
		policy:     PolicyFromConfig(cfg),
		cfg:        cfg,
		onDegraded: onDegraded,
		logger:     logger.With(zap.String("component", "transport"), zap.String("session_id", session.ID)),
		metrics:    collector,
		tracer:     otel.Tracer("agentpulse/transport"),
	}
}

// Run loops until ctx is cancelled, then makes one final best-effort flush.
// It returns nil on cancellation; transport failures never surface as a Run
// error because they must not take the host down.
func (w *Worker) Run(ctx context.Context) error {
	interval := w.cfg.FlushInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Surface any evictions since the last tick before the final
			// flush carries the diagnostic out.
			w.reportEvictions(true)
			w.finalFlush()
			return nil
		case <-w.queue.Notify():
			// Size-triggered flush. While auth is halted only the ticker
			// probes the collector, so buffering stays cheap.
			if !w.authHalted && w.queue.Len() >= w.cfg.BatchSize {
				w.flush(ctx)
			}
		case <-ticker.C:
			w.reportEvictions(false)
			w.flush(ctx)
		}
		w.metrics.SetQueueDepth(w.session.ID, w.queue.Len())
	}
}

// flush drains and delivers batches until the queue is empty or a delivery
// stops making progress.
func (w *Worker) flush(ctx context.Context) {
	for w.queue.Len() > 0 {
		batch := w.queue.Drain(w.cfg.BatchSize, w.cfg.MaxBatchBytes, eventSize)
		if len(batch) == 0 {
			return
		}
		if w.deliver(ctx, batch) != OutcomeOK {
			return
		}
	}
}

// deliver sends one batch, retrying transient failures with backoff. The
// batch is returned to the front of the queue whenever it is not consumed,
// so ordering survives every failure path.
func (w *Worker) deliver(ctx context.Context, batch []types.Event) Outcome {
	ctx, span := w.tracer.Start(ctx, "transport.deliver",
		trace.WithAttributes(
			attribute.String("session.id", w.session.ID),
			attribute.Int("batch.size", len(batch)),
		))
	defer span.End()

	start := time.Now()
	defer func() {
		w.metrics.RecordFlush(w.session.ID, time.Since(start))
	}()

	var lastErr error
	for attempt := 1; attempt <= w.policy.MaxAttempts; attempt++ {
		err := w.sender.SendEvents(ctx, w.session.ID, batch)
		outcome := OutcomeOf(err)
		w.metrics.RecordAttempt(w.session.ID, outcome.String())

		switch outcome {
		case OutcomeOK:
			w.onSuccess(len(batch))
			span.SetAttributes(attribute.Int("attempts", attempt))
			return OutcomeOK

		case OutcomeAuth:
			w.onAuthFailure(err, batch)
			return OutcomeAuth

		case OutcomeRejected:
			w.onRejected(err, batch)
			return OutcomeRejected

		case OutcomeTransient:
			lastErr = err
			if attempt == w.policy.MaxAttempts {
				break
			}
			delay := w.policy.Delay(attempt)
			var te *types.Error
			if errors.As(err, &te) && te.RetryAfter > delay {
				delay = te.RetryAfter
			}
			w.logger.Warn("batch delivery failed, retrying",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
			if sleepCtx(ctx, delay) != nil {
				// Shutting down. Keep the batch for the final flush.
				w.queue.PushFront(batch)
				return OutcomeTransient
			}
		}
	}

	w.onExhausted(lastErr, batch)
	return OutcomeTransient
}

// onSuccess resets all failure state and resumes a halted or errored session.
func (w *Worker) onSuccess(delivered int) {
	w.metrics.RecordDelivered(w.session.ID, delivered)
	w.firstFailure = time.Time{}
	w.errorReported = false
	if w.authHalted {
		w.authHalted = false
		w.logger.Info("collector accepted credentials again, resuming delivery")
	}
	if w.session.Status() == types.StatusErrored {
		w.session.SetStatus(types.StatusRunning)
	}
}

// onAuthFailure halts outbound delivery but keeps buffering. The diagnostic
// fires once per halt, not once per probe.
func (w *Worker) onAuthFailure(err error, batch []types.Event) {
	w.queue.PushFront(batch)
	if w.authHalted {
		return
	}
	w.authHalted = true
	w.session.SetStatus(types.StatusErrored)
	w.logger.Error("collector rejected credentials, halting delivery", zap.Error(err))
	w.onDegraded("auth_failure", map[string]any{
		"error": err.Error(),
	})
}

// onRejected drops the batch. Retrying a payload the collector refused can
// only wedge the queue behind it.
func (w *Worker) onRejected(err error, batch []types.Event) {
	w.metrics.RecordDropped(w.session.ID, len(batch))
	w.logger.Error("collector rejected batch, dropping",
		zap.Int("dropped", len(batch)),
		zap.Error(err))
	w.onDegraded("batch_rejected", map[string]any{
		"dropped": len(batch),
		"error":   err.Error(),
	})
}

// onExhausted returns the batch to the queue and tracks how long transient
// failures have persisted. Past the failure window the session is marked
// errored, once.
func (w *Worker) onExhausted(err error, batch []types.Event) {
	w.queue.PushFront(batch)
	now := time.Now()
	if w.firstFailure.IsZero() {
		w.firstFailure = now
	}
	w.logger.Warn("batch delivery attempts exhausted, requeued",
		zap.Int("events", len(batch)),
		zap.Error(err))

	if w.cfg.FailureWindow > 0 && now.Sub(w.firstFailure) >= w.cfg.FailureWindow && !w.errorReported {
		w.errorReported = true
		w.session.SetStatus(types.StatusErrored)
		w.logger.Error("collector unreachable past failure window, session errored",
			zap.Duration("window", w.cfg.FailureWindow))
		w.onDegraded("delivery_failing", map[string]any{
			"since": w.firstFailure.UTC().Format(time.RFC3339),
			"error": errString(err),
		})
	}
}

// reportEvictions surfaces queue overflow as a periodic aggregate rather
// than one diagnostic per evicted event. force skips the interval gate so
// shutdown never swallows a pending count.
func (w *Worker) reportEvictions(force bool) {
	total := w.queue.Evictions()
	delta := total - w.reportedEvictions
	if delta == 0 {
		return
	}
	interval := w.cfg.DegradedReportInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if !force && !w.lastEvictionAt.IsZero() && time.Since(w.lastEvictionAt) < interval {
		return
	}
	w.reportedEvictions = total
	w.lastEvictionAt = time.Now()
	w.metrics.RecordEvicted(w.session.ID, int(delta))
	w.logger.Warn("queue overflow, oldest events evicted", zap.Uint64("evicted", delta))
	w.onDegraded("queue_overflow", map[string]any{
		"evicted": delta,
	})
}

// finalFlush drains whatever is queued with a single attempt per batch. By
// now the parent context is gone, so each batch gets a short deadline of
// its own.
func (w *Worker) finalFlush() {
	if w.authHalted || w.queue.Len() == 0 {
		return
	}
	timeout := w.cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	for w.queue.Len() > 0 {
		batch := w.queue.Drain(w.cfg.BatchSize, w.cfg.MaxBatchBytes, eventSize)
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := w.sender.SendEvents(ctx, w.session.ID, batch)
		cancel()
		if err != nil {
			w.logger.Warn("final flush incomplete",
				zap.Int("undelivered", len(batch)+w.queue.Len()),
				zap.Error(err))
			w.queue.PushFront(batch)
			return
		}
		w.metrics.RecordDelivered(w.session.ID, len(batch))
	}
}

// eventSize is the batch sizer: serialized bytes of one event.
func eventSize(ev types.Event) int {
	data, err := json.Marshal(ev)
	if err != nil {
		return len(fmt.Sprint(ev.Payload))
	}
	return len(data)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
