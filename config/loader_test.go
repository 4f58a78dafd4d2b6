package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.True(t, cfg.AutoDetect)
	assert.Equal(t, 100, cfg.Transport.BatchSize)
	assert.Equal(t, 1024, cfg.Transport.QueueCap)
	assert.Equal(t, 5, cfg.Transport.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Transport.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, "[REDACTED]", cfg.Redaction.Marker)
	assert.Contains(t, cfg.Redaction.DenyList, "api_key")
	assert.Empty(t, cfg.Spill.Addr, "spill disabled by default")
}

func TestLoader_FileThenEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agentpulse.yaml")
	yaml := `
api_key: file-key
collector_url: https://collector.example.com
transport:
  batch_size: 25
  flush_interval: 2s
heartbeat:
  interval: 10s
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	t.Setenv("AGENTPULSE_API_KEY", "env-key")
	t.Setenv("AGENTPULSE_TRANSPORT_QUEUE_CAP", "64")
	t.Setenv("AGENTPULSE_REDACTION_DENY_LIST", "secret, private_key")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	// env beats file, file beats default
	assert.Equal(t, "env-key", cfg.APIKey)
	assert.Equal(t, "https://collector.example.com", cfg.CollectorURL)
	assert.Equal(t, 25, cfg.Transport.BatchSize)
	assert.Equal(t, 2*time.Second, cfg.Transport.FlushInterval)
	assert.Equal(t, 64, cfg.Transport.QueueCap)
	assert.Equal(t, 10*time.Second, cfg.Heartbeat.Interval)
	assert.Equal(t, []string{"secret", "private_key"}, cfg.Redaction.DenyList)
	// untouched sections keep defaults
	assert.Equal(t, 5, cfg.Transport.MaxAttempts)
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Setenv("AGENTPULSE_API_KEY", "k")
	t.Setenv("AGENTPULSE_COLLECTOR_URL", "http://localhost:9000")

	cfg, err := NewLoader().WithConfigPath("/nonexistent/agentpulse.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "k", cfg.APIKey)
	assert.Equal(t, DefaultTransportConfig(), cfg.Transport)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.APIKey = "k"
	cfg.CollectorURL = "https://collector.example.com"
	require.NoError(t, cfg.Validate())

	t.Run("missing credentials", func(t *testing.T) {
		c := DefaultConfig()
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "api_key")
		assert.Contains(t, err.Error(), "collector_url")
	})

	t.Run("bad scheme", func(t *testing.T) {
		c := DefaultConfig()
		c.APIKey = "k"
		c.CollectorURL = "ftp://nope"
		assert.ErrorContains(t, c.Validate(), "http(s)")
	})

	t.Run("bad transport numbers", func(t *testing.T) {
		c := DefaultConfig()
		c.APIKey = "k"
		c.CollectorURL = "http://x"
		c.Transport.QueueCap = 0
		c.Transport.BackoffMultiplier = 0.5
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "queue_cap")
		assert.Contains(t, err.Error(), "backoff_multiplier")
	})
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("AGENTPULSE_API_KEY", "k")
	t.Setenv("AGENTPULSE_COLLECTOR_URL", "http://x")
	t.Setenv("AGENTPULSE_TRANSPORT_BATCH_SIZE", "not-a-number")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AGENTPULSE_TRANSPORT_BATCH_SIZE")
}
