package transport

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/types"
)

// scriptedSender replays a canned response per call, then succeeds.
type scriptedSender struct {
	mu      sync.Mutex
	script  []error
	calls   [][]types.Event
	callsAt []time.Time
}

func (s *scriptedSender) SendEvents(_ context.Context, _ string, events []types.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := make([]types.Event, len(events))
	copy(copied, events)
	s.calls = append(s.calls, copied)
	s.callsAt = append(s.callsAt, time.Now())
	if len(s.script) == 0 {
		return nil
	}
	err := s.script[0]
	s.script = s.script[1:]
	return err
}

func (s *scriptedSender) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *scriptedSender) delivered() []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var seqs []uint64
	for _, batch := range s.calls {
		for _, ev := range batch {
			seqs = append(seqs, ev.SequenceNumber)
		}
	}
	return seqs
}

type degradedRecorder struct {
	mu      sync.Mutex
	reasons []string
	fields  []map[string]any
}

func (d *degradedRecorder) record(reason string, fields map[string]any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reasons = append(d.reasons, reason)
	d.fields = append(d.fields, fields)
}

func testTransportConfig() config.TransportConfig {
	return config.TransportConfig{
		BatchSize:              100,
		MaxBatchBytes:          256 * 1024,
		FlushInterval:          10 * time.Millisecond,
		QueueCap:               1024,
		RequestTimeout:         time.Second,
		MaxAttempts:            3,
		BackoffBase:            time.Millisecond,
		BackoffMax:             5 * time.Millisecond,
		BackoffMultiplier:      2.0,
		FailureWindow:          time.Minute,
		DegradedReportInterval: time.Millisecond,
	}
}

func newTestWorker(t *testing.T, sender Sender, cfg config.TransportConfig, degraded DegradedFunc) (*Worker, *types.Session, *Queue) {
	t.Helper()
	session := types.NewSession(nil)
	session.SetStatus(types.StatusRunning)
	q := NewQueue(cfg.QueueCap)
	w := NewWorker(session, q, sender, cfg, degraded, zap.NewNop(), nil)
	return w, session, q
}

func TestWorker_DeliversInOrderAcrossBatches(t *testing.T) {
	sender := &scriptedSender{}
	w, _, q := newTestWorker(t, sender, testTransportConfig(), nil)

	for _, ev := range makeEvents(250, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())

	require.Equal(t, 3, sender.callCount(), "250 events at batch size 100")
	seqs := sender.delivered()
	require.Len(t, seqs, 250)
	for i, seq := range seqs {
		assert.Equal(t, uint64(i), seq)
	}
	assert.Zero(t, q.Len())
}

func TestWorker_RetriesTransientThenSucceeds(t *testing.T) {
	sender := &scriptedSender{script: []error{
		classifyStatus(503, "overloaded", http.Header{}),
		classifyNetworkError(assert.AnError),
		nil,
	}}
	w, session, q := newTestWorker(t, sender, testTransportConfig(), nil)

	for _, ev := range makeEvents(5, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())

	require.Equal(t, 3, sender.callCount())
	// Every attempt carried the identical batch.
	for _, call := range sender.calls {
		require.Len(t, call, 5)
		assert.Equal(t, uint64(0), call[0].SequenceNumber)
	}
	assert.Zero(t, q.Len())
	assert.Equal(t, types.StatusRunning, session.Status())

	// Retry gaps must not shrink: 1ms then 2ms of backoff.
	gap1 := sender.callsAt[1].Sub(sender.callsAt[0])
	gap2 := sender.callsAt[2].Sub(sender.callsAt[1])
	assert.GreaterOrEqual(t, gap1, time.Millisecond)
	assert.GreaterOrEqual(t, gap2, 2*time.Millisecond)
}

func TestWorker_ExhaustionRequeuesInOrder(t *testing.T) {
	sender := &scriptedSender{script: []error{
		classifyNetworkError(assert.AnError),
		classifyNetworkError(assert.AnError),
		classifyNetworkError(assert.AnError),
	}}
	w, session, q := newTestWorker(t, sender, testTransportConfig(), nil)

	for _, ev := range makeEvents(4, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())

	assert.Equal(t, 3, sender.callCount(), "bounded by max attempts")
	assert.Equal(t, 4, q.Len(), "batch returned to the queue")
	assert.Equal(t, types.StatusRunning, session.Status(), "inside the failure window")

	out := q.Drain(10, 0, nil)
	for i, ev := range out {
		assert.Equal(t, uint64(i), ev.SequenceNumber)
	}
}

func TestWorker_FailureWindowMarksSessionErrored(t *testing.T) {
	sender := &scriptedSender{script: []error{
		classifyNetworkError(assert.AnError),
		classifyNetworkError(assert.AnError),
	}}
	cfg := testTransportConfig()
	cfg.MaxAttempts = 1
	cfg.FailureWindow = time.Millisecond
	degraded := &degradedRecorder{}
	w, session, q := newTestWorker(t, sender, cfg, degraded.record)

	q.Enqueue(types.Event{SequenceNumber: 0})
	w.flush(context.Background())
	assert.Equal(t, types.StatusRunning, session.Status())

	time.Sleep(2 * time.Millisecond)
	w.flush(context.Background())
	assert.Equal(t, types.StatusErrored, session.Status())
	require.Contains(t, degraded.reasons, "delivery_failing")

	// Recovery flips the session back to running.
	w.flush(context.Background())
	assert.Equal(t, types.StatusRunning, session.Status())
	assert.Zero(t, q.Len())
}

func TestWorker_AuthHaltsAndBuffers(t *testing.T) {
	authErr := classifyStatus(401, "bad key", nil)
	sender := &scriptedSender{script: []error{authErr, authErr, authErr}}
	degraded := &degradedRecorder{}
	w, session, q := newTestWorker(t, sender, testTransportConfig(), degraded.record)

	for _, ev := range makeEvents(3, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())

	assert.Equal(t, 1, sender.callCount(), "auth failure is never retried inside deliver")
	assert.Equal(t, 3, q.Len(), "events stay buffered")
	assert.Equal(t, types.StatusErrored, session.Status())

	// Later flush ticks probe again, but the diagnostic fired only once.
	w.flush(context.Background())
	w.flush(context.Background())
	assert.Equal(t, 3, sender.callCount())
	assert.Equal(t, []string{"auth_failure"}, degraded.reasons)

	// Credentials fixed: the buffered events go out in order.
	w.flush(context.Background())
	seqs := sender.delivered()
	tail := seqs[len(seqs)-3:]
	assert.Equal(t, []uint64{0, 1, 2}, tail)
	assert.Zero(t, q.Len())
	assert.Equal(t, types.StatusRunning, session.Status())
}

func TestWorker_AuthHalt_QueueStaysBounded(t *testing.T) {
	authErr := classifyStatus(401, "bad key", nil)
	sender := &scriptedSender{script: []error{authErr}}
	cfg := testTransportConfig()
	cfg.QueueCap = 8
	w, _, q := newTestWorker(t, sender, cfg, nil)

	for _, ev := range makeEvents(8, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())
	require.Equal(t, 8, q.Len())

	for _, ev := range makeEvents(8, 100) {
		q.Enqueue(ev)
	}
	assert.Equal(t, 8, q.Len())
	assert.Equal(t, uint64(8), q.Evictions())
}

func TestWorker_RejectedDropsBatchOnly(t *testing.T) {
	sender := &scriptedSender{script: []error{
		classifyStatus(422, "schema mismatch", nil),
	}}
	cfg := testTransportConfig()
	cfg.BatchSize = 2
	degraded := &degradedRecorder{}
	w, _, q := newTestWorker(t, sender, cfg, degraded.record)

	for _, ev := range makeEvents(4, 0) {
		q.Enqueue(ev)
	}
	w.flush(context.Background())

	// First batch dropped after one attempt; flush stops there. The next
	// flush delivers the remainder.
	require.Equal(t, 1, sender.callCount())
	w.flush(context.Background())
	require.Equal(t, 2, sender.callCount())
	var seqs []uint64
	for _, ev := range sender.calls[1] {
		seqs = append(seqs, ev.SequenceNumber)
	}
	assert.Equal(t, []uint64{2, 3}, seqs)

	require.Equal(t, []string{"batch_rejected"}, degraded.reasons)
	assert.Equal(t, 2, degraded.fields[0]["dropped"])
	assert.Zero(t, q.Len())
}

func TestWorker_ReportEvictions(t *testing.T) {
	sender := &scriptedSender{}
	cfg := testTransportConfig()
	cfg.QueueCap = 2
	degraded := &degradedRecorder{}
	w, _, q := newTestWorker(t, sender, cfg, degraded.record)

	for _, ev := range makeEvents(5, 0) {
		q.Enqueue(ev)
	}
	w.reportEvictions(false)

	require.Equal(t, []string{"queue_overflow"}, degraded.reasons)
	assert.Equal(t, uint64(3), degraded.fields[0]["evicted"])

	// No new evictions, no new report.
	w.reportEvictions(false)
	assert.Len(t, degraded.reasons, 1)
}

func TestWorker_ReportEvictionsOnShutdown(t *testing.T) {
	sender := &scriptedSender{}
	cfg := testTransportConfig()
	cfg.FlushInterval = time.Hour
	cfg.DegradedReportInterval = time.Hour
	cfg.QueueCap = 2
	degraded := &degradedRecorder{}
	w, _, q := newTestWorker(t, sender, cfg, degraded.record)

	for _, ev := range makeEvents(5, 0) {
		q.Enqueue(ev)
	}
	// A recent report arms the interval gate, which would hold the count
	// back for an hour; shutdown must not leave it unreported.
	w.lastEvictionAt = time.Now()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, w.Run(ctx))

	require.Equal(t, []string{"queue_overflow"}, degraded.reasons)
	assert.Equal(t, uint64(3), degraded.fields[0]["evicted"])
}

func TestWorker_Run_FinalFlushOnCancel(t *testing.T) {
	sender := &scriptedSender{}
	cfg := testTransportConfig()
	cfg.FlushInterval = time.Hour // only the final flush may deliver
	w, _, q := newTestWorker(t, sender, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	for _, ev := range makeEvents(10, 0) {
		q.Enqueue(ev)
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("worker did not stop")
	}

	assert.Len(t, sender.delivered(), 10)
	assert.Zero(t, q.Len())
}

func TestWorker_Run_SizeTriggeredFlush(t *testing.T) {
	sender := &scriptedSender{}
	cfg := testTransportConfig()
	cfg.FlushInterval = time.Hour
	cfg.BatchSize = 10
	w, _, q := newTestWorker(t, sender, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()

	for _, ev := range makeEvents(10, 0) {
		q.Enqueue(ev)
	}

	require.Eventually(t, func() bool {
		return sender.callCount() >= 1
	}, 5*time.Second, time.Millisecond)
	assert.Len(t, sender.delivered(), 10)
}
