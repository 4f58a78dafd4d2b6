package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestNewCollector(t *testing.T) {
	collector := newTestCollector(t)

	require.NotNil(t, collector)
	assert.NotNil(t, collector.eventsEnqueued)
	assert.NotNil(t, collector.eventsEvicted)
	assert.NotNil(t, collector.batchAttempts)
	assert.NotNil(t, collector.flushDuration)
	assert.NotNil(t, collector.queueDepth)
	assert.NotNil(t, collector.heartbeats)
}

func TestCollector_RecordDeliveryCycle(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEnqueued("s1", "step_start")
	collector.RecordEnqueued("s1", "tool_call")
	collector.RecordAttempt("s1", "transient")
	collector.RecordAttempt("s1", "ok")
	collector.RecordDelivered("s1", 2)
	collector.RecordFlush("s1", 120*time.Millisecond)
	collector.SetQueueDepth("s1", 0)

	assert.Equal(t, float64(2),
		testutil.ToFloat64(collector.batchEvents.WithLabelValues("s1")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.batchAttempts.WithLabelValues("s1", "transient")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.batchAttempts.WithLabelValues("s1", "ok")))
	assert.Equal(t, float64(0),
		testutil.ToFloat64(collector.queueDepth.WithLabelValues("s1")))
	assert.Greater(t, testutil.CollectAndCount(collector.flushDuration), 0)
}

func TestCollector_RecordLoss(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordEvicted("s1", 3)
	collector.RecordDropped("s1", 5)
	// Non-positive counts are ignored.
	collector.RecordEvicted("s1", 0)
	collector.RecordDropped("s1", -1)

	assert.Equal(t, float64(3),
		testutil.ToFloat64(collector.eventsEvicted.WithLabelValues("s1")))
	assert.Equal(t, float64(5),
		testutil.ToFloat64(collector.eventsDropped.WithLabelValues("s1")))
}

func TestCollector_RecordHeartbeat(t *testing.T) {
	collector := newTestCollector(t)

	collector.RecordHeartbeat("s1", "ok")
	collector.RecordHeartbeat("s1", "ok")
	collector.RecordHeartbeat("s1", "missed")

	assert.Equal(t, float64(2),
		testutil.ToFloat64(collector.heartbeats.WithLabelValues("s1", "ok")))
	assert.Equal(t, float64(1),
		testutil.ToFloat64(collector.heartbeats.WithLabelValues("s1", "missed")))
}

func TestCollector_NilIsSafe(t *testing.T) {
	var collector *Collector

	assert.NotPanics(t, func() {
		collector.RecordEnqueued("s1", "step_start")
		collector.RecordEvicted("s1", 1)
		collector.RecordDropped("s1", 1)
		collector.RecordDelivered("s1", 1)
		collector.RecordAttempt("s1", "ok")
		collector.RecordFlush("s1", time.Second)
		collector.SetQueueDepth("s1", 3)
		collector.RecordHeartbeat("s1", "ok")
	})
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := newTestCollector(t)

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			collector.RecordEnqueued("s1", "step_start")
			collector.RecordAttempt("s1", "ok")
			collector.RecordDelivered("s1", 1)
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}

	assert.Equal(t, float64(10),
		testutil.ToFloat64(collector.eventsEnqueued.WithLabelValues("s1", "step_start")))
	assert.Equal(t, float64(10),
		testutil.ToFloat64(collector.batchEvents.WithLabelValues("s1")))
}
