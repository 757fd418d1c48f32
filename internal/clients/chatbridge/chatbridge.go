// Package chatbridge is the typed client for the sideband notifier that
// announces newly-seen agents to a chat system. It is always called off the
// request path, with its own short timeout.
package chatbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/httpx"
)

const timeout = 5 * time.Second

// Client talks to the chat-bridge notifier. No retries: first failure is
// reported.
type Client struct {
	baseURL string
	http    *httpx.Client
}

// New builds a Client for baseURL, which must be non-empty and absolute.
func New(baseURL string) (*Client, error) {
	if err := httpx.ValidateBaseURL(baseURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "MATRIX_CLIENT_URL", Reason: err.Error()}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpx.New(timeout, httpx.NoRetry),
	}, nil
}

type notifyBody struct {
	AgentID string `json:"agent_id"`
	Event   string `json:"event"`
}

// NotifyNewAgent fires a "new agent seen" notification. Callers run this off
// the request path; its result is logged, never propagated to the webhook
// response.
func (c *Client) NotifyNewAgent(ctx context.Context, agentID string) error {
	payload, err := json.Marshal(notifyBody{AgentID: agentID, Event: "new_agent_seen"})
	if err != nil {
		return fmt.Errorf("chatbridge: marshal request: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/notify", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return &apperrors.UpstreamUnavailableError{Service: "chat-bridge", Cause: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apperrors.UpstreamUnavailableError{
			Service: "chat-bridge",
			Cause:   fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	return nil
}
