package heartbeat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/types"
)

type fakeSender struct {
	mu    sync.Mutex
	beats []types.Heartbeat
	err   error
}

func (f *fakeSender) SendHeartbeat(_ context.Context, hb types.Heartbeat) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beats = append(f.beats, hb)
	return f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.beats)
}

func TestScheduler_CarriesSessionStatus(t *testing.T) {
	session := types.NewSession(nil)
	session.SetStatus(types.StatusRunning)
	sender := &fakeSender{}
	s := NewScheduler(session, sender, time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		require.NoError(t, s.Run(ctx))
		close(done)
	}()

	require.Eventually(t, func() bool { return sender.count() >= 3 }, 5*time.Second, time.Millisecond)
	cancel()
	<-done

	sender.mu.Lock()
	defer sender.mu.Unlock()
	for _, hb := range sender.beats {
		assert.Equal(t, session.ID, hb.SessionID)
		assert.Equal(t, types.StatusRunning, hb.Status)
		assert.False(t, hb.Timestamp.IsZero())
	}
}

func TestScheduler_SkipsStoppedSession(t *testing.T) {
	session := types.NewSession(nil)
	session.SetStatus(types.StatusStopped)
	sender := &fakeSender{}
	s := NewScheduler(session, sender, time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))
	assert.Zero(t, sender.count())
}

func TestScheduler_MissedBeatIsNotRetried(t *testing.T) {
	session := types.NewSession(nil)
	session.SetStatus(types.StatusRunning)
	sender := &fakeSender{err: errors.New("collector down")}
	s := NewScheduler(session, sender, 5*time.Millisecond, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = s.Run(ctx) }()
	require.Eventually(t, func() bool { return sender.count() >= 2 }, 5*time.Second, time.Millisecond)
	n := sender.count()
	cancel()

	// One attempt per tick, nothing more: failures produce no bursts.
	time.Sleep(10 * time.Millisecond)
	assert.LessOrEqual(t, sender.count(), n+3)
}

func TestScheduler_DisabledInterval(t *testing.T) {
	session := types.NewSession(nil)
	sender := &fakeSender{}
	s := NewScheduler(session, sender, 0, zap.NewNop(), nil)

	require.NoError(t, s.Run(context.Background()))
	assert.Zero(t, sender.count())
}
