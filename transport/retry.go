package transport

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/agentpulse/agentpulse/config"
)

// Policy is the bounded exponential-backoff retry policy for transient
// delivery failures.
type Policy struct {
	// MaxAttempts bounds total tries per batch, the first included.
	MaxAttempts int
	// BaseDelay precedes the first retry.
	BaseDelay time.Duration
	// MaxDelay caps the growth.
	MaxDelay time.Duration
	// Multiplier is the exponential factor.
	Multiplier float64
	// Jitter randomizes each delay by ±25% so many clients recovering at
	// once do not stampede the collector.
	Jitter bool
}

// PolicyFromConfig maps the transport configuration onto a policy,
// normalizing out-of-range values.
func PolicyFromConfig(cfg config.TransportConfig) Policy {
	p := Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BackoffBase,
		MaxDelay:    cfg.BackoffMax,
		Multiplier:  cfg.BackoffMultiplier,
		Jitter:      cfg.Jitter,
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier < 1.0 {
		p.Multiplier = 2.0
	}
	return p
}

// Delay returns the backoff before retry number attempt (1-based): base
// times multiplier^(attempt-1), capped at MaxDelay, with optional jitter.
// Without jitter the sequence is strictly increasing until the cap.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.BaseDelay) * math.Pow(p.Multiplier, float64(attempt-1))
	if delay > float64(p.MaxDelay) {
		delay = float64(p.MaxDelay)
	}
	if p.Jitter {
		jitter := delay * 0.25
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < float64(p.BaseDelay) {
		delay = float64(p.BaseDelay)
	}
	return time.Duration(delay)
}

// sleepCtx waits for d or until the context is cancelled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
