/*
Package metrics provides Prometheus-based self-metrics for the telemetry
pipeline.

# Overview

The package registers and records metrics through a single Collector,
using promauto against a caller-supplied Registerer. All metrics share one
namespace and are labelled per session, so several concurrent sessions in
one process stay distinguishable.

# Core types

  - Collector: holds the Counter, Histogram, and Gauge vectors for the
    delivery pipeline. A nil *Collector records nothing, which is how the
    pipeline runs when self-metrics are disabled.

# Recorded dimensions

  - Queue: events enqueued, evicted on overflow, and current depth.
  - Delivery: per-batch attempts by outcome, acknowledged events, events
    dropped after a rejected batch, flush wall time.
  - Heartbeat: attempts by result (ok or missed).
*/
package metrics
