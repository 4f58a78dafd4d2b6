package config

import "time"

// DefaultConfig returns the default configuration. API key and collector URL
// have no defaults and must come from the caller, a file, or the environment.
func DefaultConfig() *Config {
	return &Config{
		AutoDetect: true,
		Transport:  DefaultTransportConfig(),
		Heartbeat:  DefaultHeartbeatConfig(),
		Redaction:  DefaultRedactionConfig(),
		Spill:      DefaultSpillConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Metrics:    DefaultMetricsConfig(),
	}
}

// DefaultTransportConfig returns the default delivery settings.
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		BatchSize:              100,
		MaxBatchBytes:          256 * 1024,
		FlushInterval:          5 * time.Second,
		QueueCap:               1024,
		RequestTimeout:         30 * time.Second,
		MaxAttempts:            5,
		BackoffBase:            500 * time.Millisecond,
		BackoffMax:             30 * time.Second,
		BackoffMultiplier:      2.0,
		Jitter:                 true,
		FailureWindow:          60 * time.Second,
		DegradedReportInterval: 30 * time.Second,
		RateLimitRPS:           20,
		RateLimitBurst:         40,
	}
}

// DefaultHeartbeatConfig returns the default heartbeat settings.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		Interval: 30 * time.Second,
	}
}

// DefaultRedactionConfig returns the default scrubbing rules.
func DefaultRedactionConfig() RedactionConfig {
	return RedactionConfig{
		DenyList: []string{
			"api_key", "apikey", "secret", "token",
			"password", "authorization", "credential",
		},
		Marker:          "[REDACTED]",
		MaxPayloadBytes: 16 * 1024,
	}
}

// DefaultSpillConfig returns the spill buffer defaults (disabled).
func DefaultSpillConfig() SpillConfig {
	return SpillConfig{
		KeyPrefix: "agentpulse:spill:",
		TTL:       24 * time.Hour,
	}
}

// DefaultLogConfig returns the default logging settings.
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultTelemetryConfig returns the default self-instrumentation settings.
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		ServiceName:  "agentpulse",
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		SampleRatio:  1.0,
	}
}

// DefaultMetricsConfig returns the default self-metrics settings.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Namespace: "agentpulse",
	}
}
