// Package normalize converts raw adapter callbacks into canonical events:
// field mapping, payload size capping, secret redaction, and atomic
// sequence-number assignment. An observed callback is never dropped; when
// raw data is malformed the result is a degraded event carrying whatever
// fields were available.
package normalize

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentpulse/agentpulse/adapter"
	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/types"
)

// kindMap translates framework-flavored callback kinds onto canonical event
// types. Adapters emit the canonical kinds directly; the aliases cover raw
// data relayed from hosts that name their callbacks differently.
var kindMap = map[string]types.EventType{
	adapter.KindStepStart: types.EventStepStart,
	adapter.KindStepEnd:   types.EventStepEnd,
	adapter.KindToolCall:  types.EventToolCall,
	adapter.KindError:     types.EventError,
	adapter.KindDegraded:  types.EventDegraded,

	"chain_start":    types.EventStepStart,
	"on_chain_start": types.EventStepStart,
	"llm_start":      types.EventStepStart,
	"chain_end":      types.EventStepEnd,
	"on_chain_end":   types.EventStepEnd,
	"llm_end":        types.EventStepEnd,
	"on_tool_start":  types.EventToolCall,
	"tool_start":     types.EventToolCall,
	"tool_end":       types.EventToolCall,
	"on_tool_call":   types.EventToolCall,
	"exception":      types.EventError,
	"on_error":       types.EventError,
}

// Normalizer maps raw callback data onto canonical events for one pipeline.
// Safe for concurrent use from host goroutines; the only shared state it
// touches is the session's atomic sequence counter.
type Normalizer struct {
	rules  config.RedactionConfig
	logger *zap.Logger
}

// New creates a normalizer with the given redaction rules.
func New(rules config.RedactionConfig, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rules.Marker == "" {
		rules.Marker = config.DefaultRedactionConfig().Marker
	}
	if rules.MaxPayloadBytes <= 0 {
		rules.MaxPayloadBytes = config.DefaultRedactionConfig().MaxPayloadBytes
	}
	return &Normalizer{rules: rules, logger: logger}
}

// Normalize converts one raw callback into an event for the session,
// assigning the next sequence number. It never fails and never panics;
// malformed input degrades instead.
func (n *Normalizer) Normalize(raw adapter.RawCallback, session *types.Session) (ev types.Event) {
	// Callers that build callbacks by hand rarely stamp them; an unstamped
	// event must not reach the wire as the zero time.
	if raw.Timestamp.IsZero() {
		raw.Timestamp = time.Now().UTC()
	}
	defer func() {
		if r := recover(); r != nil {
			n.logger.Error("normalization panicked", zap.Any("recover", r))
			ev = n.degraded(raw, session, fmt.Sprintf("panic: %v", r))
		}
	}()

	eventType, ok := kindMap[raw.Kind]
	if !ok {
		return n.degraded(raw, session, fmt.Sprintf("unknown callback kind %q", raw.Kind))
	}

	payload := buildPayload(raw)
	payload = n.redact(payload)
	payload = n.capPayload(payload)

	return types.Event{
		SessionID:      session.ID,
		SequenceNumber: session.NextSequence(),
		Type:           eventType,
		Timestamp:      raw.Timestamp,
		Payload:        payload,
	}
}

// degraded wraps whatever was observed into a degraded event plus an error
// descriptor. The sequence number is consumed like any other event so the
// stream stays gap-free.
func (n *Normalizer) degraded(raw adapter.RawCallback, session *types.Session, reason string) types.Event {
	payload := buildPayload(raw)
	payload["degraded_reason"] = reason
	if raw.Kind != "" && raw.Kind != adapter.KindDegraded {
		payload["original_kind"] = raw.Kind
	}
	payload = n.redact(payload)
	payload = n.capPayload(payload)

	n.logger.Debug("callback degraded",
		zap.String("session_id", session.ID),
		zap.String("reason", reason),
	)
	return types.Event{
		SessionID:      session.ID,
		SequenceNumber: session.NextSequence(),
		Type:           types.EventDegraded,
		Timestamp:      raw.Timestamp,
		Payload:        payload,
	}
}

// buildPayload copies the raw fields so later scrubbing never mutates
// host-owned maps.
func buildPayload(raw adapter.RawCallback) map[string]any {
	payload := make(map[string]any, len(raw.Fields)+2)
	for k, v := range raw.Fields {
		payload[k] = v
	}
	if raw.Name != "" {
		payload["name"] = raw.Name
	}
	if raw.Error != "" {
		payload["error"] = raw.Error
	}
	return payload
}
