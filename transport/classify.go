package transport

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/agentpulse/agentpulse/types"
)

// Outcome is the coarse classification the delivery worker acts on.
type Outcome int

const (
	// OutcomeOK: the collector accepted everything.
	OutcomeOK Outcome = iota
	// OutcomeTransient: retry the same batch with backoff.
	OutcomeTransient
	// OutcomeAuth: halt transmission for the session, keep buffering.
	OutcomeAuth
	// OutcomeRejected: drop this batch only and move on.
	OutcomeRejected
)

// String returns the outcome label used in logs and metrics.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeTransient:
		return "transient"
	case OutcomeAuth:
		return "auth"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// classifyStatus maps one HTTP response status onto the error taxonomy.
// A nil return means success.
func classifyStatus(status int, msg string, header http.Header) *types.Error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusUnauthorized:
		return types.NewError(types.ErrUnauthorized, msg).WithHTTPStatus(status)
	case status == http.StatusForbidden:
		return types.NewError(types.ErrForbidden, msg).WithHTTPStatus(status)
	case status == http.StatusTooManyRequests:
		e := types.NewError(types.ErrRateLimited, msg).WithHTTPStatus(status).WithRetryable(true)
		e.RetryAfter = parseRetryAfter(header.Get("Retry-After"))
		return e
	case status >= 500:
		return types.NewError(types.ErrTransientDelivery, msg).WithHTTPStatus(status).WithRetryable(true)
	default:
		// Remaining 4xx: the collector understood us and said no. Retrying
		// the same payload cannot succeed.
		return types.NewError(types.ErrPayloadRejected, msg).WithHTTPStatus(status)
	}
}

// classifyNetworkError wraps a transport-level failure (DNS, refused
// connection, timeout) as transient.
func classifyNetworkError(err error) *types.Error {
	return types.NewError(types.ErrTransientDelivery, fmt.Sprintf("request failed: %v", err)).
		WithRetryable(true).
		WithCause(err)
}

// OutcomeOf maps a delivery error onto the worker's coarse outcome.
func OutcomeOf(err error) Outcome {
	if err == nil {
		return OutcomeOK
	}
	var te *types.Error
	if !errors.As(err, &te) {
		return OutcomeTransient
	}
	switch te.Code {
	case types.ErrUnauthorized, types.ErrForbidden:
		return OutcomeAuth
	case types.ErrPayloadRejected:
		return OutcomeRejected
	default:
		return OutcomeTransient
	}
}

// parseRetryAfter understands the delta-seconds form of Retry-After. The
// HTTP-date form is rare from collectors and falls back to backoff.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if secs, err := strconv.Atoi(value); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}
