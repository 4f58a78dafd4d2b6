// Package heartbeat emits the per-session liveness signal.
//
// Heartbeats travel outside the event sequence stream and are deliberately
// lossy: a missed beat is logged and counted, never retried, because the
// next tick supersedes it anyway.
package heartbeat

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/internal/metrics"
	"github.com/agentpulse/agentpulse/types"
)

// Sender delivers one heartbeat. Implemented by transport.Client.
type Sender interface {
	SendHeartbeat(ctx context.Context, hb types.Heartbeat) error
}

// Scheduler ticks heartbeats for one session until its context ends.
type Scheduler struct {
	session  *types.Session
	sender   Sender
	interval time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// NewScheduler wires a heartbeat scheduler. A non-positive interval
// disables it: Run returns immediately. Metrics may be nil.
func NewScheduler(session *types.Session, sender Sender, interval time.Duration, logger *zap.Logger, collector *metrics.Collector) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		session:  session,
		sender:   sender,
		interval: interval,
		logger:   logger.With(zap.String("component", "heartbeat"), zap.String("session_id", session.ID)),
		metrics:  collector,
	}
}

// Run sends one beat per interval, carrying the session's current status.
// It always returns nil; heartbeat trouble must never take the group down.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.interval <= 0 {
		return nil
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.beat(ctx)
		}
	}
}

func (s *Scheduler) beat(ctx context.Context) {
	status := s.session.Status()
	if status == types.StatusStopped {
		return
	}

	hb := types.Heartbeat{
		SessionID: s.session.ID,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
	if err := s.sender.SendHeartbeat(ctx, hb); err != nil {
		s.metrics.RecordHeartbeat(s.session.ID, "missed")
		s.logger.Warn("heartbeat missed", zap.String("status", string(status)), zap.Error(err))
		return
	}
	s.metrics.RecordHeartbeat(s.session.ID, "ok")
}
