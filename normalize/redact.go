package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"
)

// truncatedStringLen is what oversize string values shrink to before whole
// keys start being dropped.
const truncatedStringLen = 256

// truncateString cuts s to at most max bytes, backing up to a rune boundary
// so the result is still valid UTF-8.
func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// redact walks the payload and replaces the value of every key matching the
// deny-list with the redaction marker. Matching is a case-insensitive
// substring check, so "my_api_key" and "Authorization" both match the
// defaults. The field itself is kept: a redacted key remains visible in the
// collector.
func (n *Normalizer) redact(payload map[string]any) map[string]any {
	for k, v := range payload {
		if n.denied(k) {
			payload[k] = n.rules.Marker
			continue
		}
		payload[k] = n.redactValue(v)
	}
	return payload
}

func (n *Normalizer) redactValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		return n.redact(vv)
	case []any:
		for i, item := range vv {
			vv[i] = n.redactValue(item)
		}
		return vv
	default:
		return v
	}
}

func (n *Normalizer) denied(key string) bool {
	lower := strings.ToLower(key)
	for _, deny := range n.rules.DenyList {
		if deny != "" && strings.Contains(lower, strings.ToLower(deny)) {
			return true
		}
	}
	return false
}

// capPayload enforces the serialized size bound. Oversize payloads first
// have long string values truncated; if that is not enough, the largest
// remaining entries are dropped. Either intervention leaves a "truncated"
// marker so data loss stays observable.
func (n *Normalizer) capPayload(payload map[string]any) map[string]any {
	if payloadSize(payload) <= n.rules.MaxPayloadBytes {
		return payload
	}

	for k, v := range payload {
		if s, ok := v.(string); ok && len(s) > truncatedStringLen {
			payload[k] = truncateString(s, truncatedStringLen)
		}
	}
	payload["truncated"] = true
	if payloadSize(payload) <= n.rules.MaxPayloadBytes {
		return payload
	}

	// Drop largest entries until the payload fits. The marker keys stay.
	type sized struct {
		key  string
		size int
	}
	entries := make([]sized, 0, len(payload))
	for k, v := range payload {
		if k == "truncated" || k == "degraded_reason" || k == "original_kind" {
			continue
		}
		entries = append(entries, sized{key: k, size: payloadSize(map[string]any{k: v})})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].size > entries[j].size })

	for _, e := range entries {
		delete(payload, e.key)
		if payloadSize(payload) <= n.rules.MaxPayloadBytes {
			break
		}
	}
	return payload
}

// payloadSize measures the JSON-serialized payload. Values the encoder
// rejects are replaced in place by their string form so one bad field never
// poisons the whole event.
func payloadSize(payload map[string]any) int {
	data, err := json.Marshal(payload)
	if err == nil {
		return len(data)
	}
	for k, v := range payload {
		if _, err := json.Marshal(v); err != nil {
			payload[k] = fmt.Sprintf("%v", v)
		}
	}
	data, err = json.Marshal(payload)
	if err != nil {
		return 0
	}
	return len(data)
}
