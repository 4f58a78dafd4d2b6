// Package telemetry wraps OpenTelemetry SDK initialization, giving the
// pipeline a single place to configure the TracerProvider and MeterProvider.
// When telemetry is disabled, noop implementations are used and no external
// service is contacted.
package telemetry
