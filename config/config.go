package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the complete pipeline configuration.
type Config struct {
	// APIKey is the bearer token for the collector. Required.
	APIKey string `yaml:"api_key" env:"API_KEY"`

	// CollectorURL is the base URL of the remote collector. Required.
	CollectorURL string `yaml:"collector_url" env:"COLLECTOR_URL"`

	// AgentName labels the monitored process. Auto-generated when empty.
	AgentName string `yaml:"agent_name" env:"AGENT_NAME"`

	// AutoDetect enables framework detection on Start. When false the
	// manual adapter is used unconditionally.
	AutoDetect bool `yaml:"auto_detect" env:"AUTO_DETECT"`

	Transport TransportConfig `yaml:"transport" env:"TRANSPORT"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat" env:"HEARTBEAT"`
	Redaction RedactionConfig `yaml:"redaction" env:"REDACTION"`
	Spill     SpillConfig     `yaml:"spill" env:"SPILL"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
	Metrics   MetricsConfig   `yaml:"metrics" env:"METRICS"`
}

// TransportConfig controls the delivery queue, batching, and retry behavior.
type TransportConfig struct {
	// BatchSize closes a batch at this many events.
	BatchSize int `yaml:"batch_size" env:"BATCH_SIZE"`
	// MaxBatchBytes closes a batch at this serialized size.
	MaxBatchBytes int `yaml:"max_batch_bytes" env:"MAX_BATCH_BYTES"`
	// FlushInterval closes a non-empty batch even when under both thresholds.
	FlushInterval time.Duration `yaml:"flush_interval" env:"FLUSH_INTERVAL"`
	// QueueCap bounds the per-session queue; overflow evicts the oldest event.
	QueueCap int `yaml:"queue_cap" env:"QUEUE_CAP"`
	// RequestTimeout bounds one HTTP request to the collector.
	RequestTimeout time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`

	// MaxAttempts bounds delivery attempts per batch for transient failures.
	MaxAttempts int `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	// BackoffBase is the delay before the first retry.
	BackoffBase time.Duration `yaml:"backoff_base" env:"BACKOFF_BASE"`
	// BackoffMax caps the delay between retries.
	BackoffMax time.Duration `yaml:"backoff_max" env:"BACKOFF_MAX"`
	// BackoffMultiplier is the exponential growth factor.
	BackoffMultiplier float64 `yaml:"backoff_multiplier" env:"BACKOFF_MULTIPLIER"`
	// Jitter adds ±25% randomization to retry delays.
	Jitter bool `yaml:"jitter" env:"JITTER"`

	// FailureWindow marks the session errored once transient failures
	// persist for this long without a successful delivery.
	FailureWindow time.Duration `yaml:"failure_window" env:"FAILURE_WINDOW"`
	// DegradedReportInterval is how often accumulated eviction counts are
	// surfaced as a degraded event.
	DegradedReportInterval time.Duration `yaml:"degraded_report_interval" env:"DEGRADED_REPORT_INTERVAL"`

	// RateLimitRPS paces requests to the collector. 0 disables pacing.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`

	// ForceHTTP2 uses an explicit HTTP/2 transport for https collectors.
	ForceHTTP2 bool `yaml:"force_http2" env:"FORCE_HTTP2"`
}

// HeartbeatConfig controls the per-session liveness signal.
type HeartbeatConfig struct {
	// Interval between heartbeats. 0 disables the scheduler.
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

// RedactionConfig controls payload scrubbing in the normalizer.
type RedactionConfig struct {
	// DenyList holds case-insensitive substrings; payload keys matching any
	// entry have their value replaced by Marker, never dropped.
	DenyList []string `yaml:"deny_list" env:"DENY_LIST"`
	// Marker is the replacement value for redacted fields.
	Marker string `yaml:"marker" env:"MARKER"`
	// MaxPayloadBytes caps the serialized payload of a single event.
	MaxPayloadBytes int `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES"`
}

// SpillConfig enables the optional Redis buffer for events that were still
// undelivered when a session stopped. Disabled when Addr is empty.
type SpillConfig struct {
	Addr      string        `yaml:"addr" env:"ADDR"`
	Password  string        `yaml:"password" env:"PASSWORD"`
	DB        int           `yaml:"db" env:"DB"`
	KeyPrefix string        `yaml:"key_prefix" env:"KEY_PREFIX"`
	TTL       time.Duration `yaml:"ttl" env:"TTL"`
}

// LogConfig controls the zap logger built by the CLI and by New.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json or console.
	Format string `yaml:"format" env:"FORMAT"`
}

// TelemetryConfig controls optional OTel self-instrumentation of the
// pipeline. Disabled by default; when disabled no exporter is created.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	Insecure     bool    `yaml:"insecure" env:"INSECURE"`
	SampleRatio  float64 `yaml:"sample_ratio" env:"SAMPLE_RATIO"`
}

// MetricsConfig controls the Prometheus self-metrics collector.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// Validate checks the invariants the pipeline depends on.
func (c *Config) Validate() error {
	var errs []string

	if c.APIKey == "" {
		errs = append(errs, "api_key is required (or AGENTPULSE_API_KEY)")
	}
	if c.CollectorURL == "" {
		errs = append(errs, "collector_url is required (or AGENTPULSE_COLLECTOR_URL)")
	} else if !strings.HasPrefix(c.CollectorURL, "http://") && !strings.HasPrefix(c.CollectorURL, "https://") {
		errs = append(errs, "collector_url must be an http(s) URL")
	}
	if c.Transport.BatchSize <= 0 {
		errs = append(errs, "transport.batch_size must be positive")
	}
	if c.Transport.QueueCap <= 0 {
		errs = append(errs, "transport.queue_cap must be positive")
	}
	if c.Transport.MaxAttempts <= 0 {
		errs = append(errs, "transport.max_attempts must be positive")
	}
	if c.Transport.BackoffMultiplier < 1.0 {
		errs = append(errs, "transport.backoff_multiplier must be >= 1.0")
	}
	if c.Redaction.MaxPayloadBytes <= 0 {
		errs = append(errs, "redaction.max_payload_bytes must be positive")
	}
	if c.Heartbeat.Interval < 0 {
		errs = append(errs, "heartbeat.interval must not be negative")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
