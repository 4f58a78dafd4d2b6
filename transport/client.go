package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/agentpulse/agentpulse/config"
	"github.com/agentpulse/agentpulse/types"
)

// Client speaks the collector's HTTP/JSON wire protocol: POST /events and
// POST /heartbeat with bearer-token auth.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// eventsRequest is the body of POST /events.
type eventsRequest struct {
	SessionID string        `json:"session_id"`
	Events    []types.Event `json:"events"`
}

// NewClient creates a collector client. When ForceHTTP2 is set and the
// collector is https, an explicit HTTP/2 transport is used.
func NewClient(collectorURL, apiKey string, cfg config.TransportConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.ForceHTTP2 && strings.HasPrefix(collectorURL, "https://") {
		httpClient.Transport = &http2.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	var limiter *rate.Limiter
	if cfg.RateLimitRPS > 0 {
		burst := cfg.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimitRPS), burst)
	}

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(collectorURL, "/"),
		apiKey:     apiKey,
		limiter:    limiter,
		logger:     logger,
	}
}

// SendEvents delivers one batch. The returned error, when non-nil, is a
// *types.Error carrying the classification the worker acts on.
func (c *Client) SendEvents(ctx context.Context, sessionID string, events []types.Event) error {
	return c.post(ctx, "/events", eventsRequest{SessionID: sessionID, Events: events})
}

// SendHeartbeat delivers one liveness signal.
func (c *Client) SendHeartbeat(ctx context.Context, hb types.Heartbeat) error {
	return c.post(ctx, "/heartbeat", hb)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return classifyNetworkError(err)
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		// Payloads are sanitized upstream; an encode failure here is a bug,
		// classified as rejected so it cannot wedge the queue.
		return types.NewError(types.ErrPayloadRejected, fmt.Sprintf("encode %s body: %v", path, err)).WithCause(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return types.NewError(types.ErrPayloadRejected, fmt.Sprintf("build %s request: %v", path, err)).WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyNetworkError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return classifyStatus(resp.StatusCode, readErrMsg(resp.Body), resp.Header)
}

// readErrMsg extracts a bounded error message from a non-2xx body.
func readErrMsg(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, 4096))
	var wrapped struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil {
		if wrapped.Error != "" {
			return wrapped.Error
		}
		if wrapped.Message != "" {
			return wrapped.Message
		}
	}
	return strings.TrimSpace(string(data))
}
