// Package metrics provides internal pipeline metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// Collector records pipeline self-metrics. A nil *Collector is valid and
// records nothing, so callers never branch on whether metrics are enabled.
type Collector struct {
	eventsEnqueued *prometheus.CounterVec
	eventsEvicted  *prometheus.CounterVec
	eventsDropped  *prometheus.CounterVec
	batchEvents    *prometheus.CounterVec
	batchAttempts  *prometheus.CounterVec
	flushDuration  *prometheus.HistogramVec
	queueDepth     *prometheus.GaugeVec
	heartbeats     *prometheus.CounterVec

	logger *zap.Logger
}

// NewCollector registers the pipeline metrics on reg. Pass
// prometheus.DefaultRegisterer to publish on the process default registry.
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = "agentpulse"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.eventsEnqueued = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_enqueued_total",
			Help:      "Total number of events accepted into the delivery queue",
		},
		[]string{"session_id", "event_type"},
	)

	c.eventsEvicted = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_evicted_total",
			Help:      "Total number of oldest events evicted on queue overflow",
		},
		[]string{"session_id"},
	)

	c.eventsDropped = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped after a rejected batch",
		},
		[]string{"session_id"},
	)

	c.batchEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_events_delivered_total",
			Help:      "Total number of events acknowledged by the collector",
		},
		[]string{"session_id"},
	)

	c.batchAttempts = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batch_attempts_total",
			Help:      "Total number of batch delivery attempts by outcome",
		},
		[]string{"session_id", "outcome"},
	)

	c.flushDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Wall time spent delivering one batch, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"session_id"},
	)

	c.queueDepth = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Number of events waiting in the delivery queue",
		},
		[]string{"session_id"},
	)

	c.heartbeats = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heartbeats_total",
			Help:      "Total number of heartbeat attempts by result",
		},
		[]string{"session_id", "result"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// RecordEnqueued records one event accepted into the queue.
func (c *Collector) RecordEnqueued(sessionID, eventType string) {
	if c == nil {
		return
	}
	c.eventsEnqueued.WithLabelValues(sessionID, eventType).Inc()
}

// RecordEvicted records events evicted on queue overflow.
func (c *Collector) RecordEvicted(sessionID string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.eventsEvicted.WithLabelValues(sessionID).Add(float64(count))
}

// RecordDropped records events discarded after a rejected batch.
func (c *Collector) RecordDropped(sessionID string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.eventsDropped.WithLabelValues(sessionID).Add(float64(count))
}

// RecordDelivered records events the collector acknowledged.
func (c *Collector) RecordDelivered(sessionID string, count int) {
	if c == nil || count <= 0 {
		return
	}
	c.batchEvents.WithLabelValues(sessionID).Add(float64(count))
}

// RecordAttempt records one delivery attempt with its outcome label.
func (c *Collector) RecordAttempt(sessionID, outcome string) {
	if c == nil {
		return
	}
	c.batchAttempts.WithLabelValues(sessionID, outcome).Inc()
}

// RecordFlush records the wall time of one complete batch delivery.
func (c *Collector) RecordFlush(sessionID string, duration time.Duration) {
	if c == nil {
		return
	}
	c.flushDuration.WithLabelValues(sessionID).Observe(duration.Seconds())
}

// SetQueueDepth records the current queue length.
func (c *Collector) SetQueueDepth(sessionID string, depth int) {
	if c == nil {
		return
	}
	c.queueDepth.WithLabelValues(sessionID).Set(float64(depth))
}

// RecordHeartbeat records one heartbeat attempt, result "ok" or "missed".
func (c *Collector) RecordHeartbeat(sessionID, result string) {
	if c == nil {
		return
	}
	c.heartbeats.WithLabelValues(sessionID, result).Inc()
}
