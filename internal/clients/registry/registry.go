// Package registry is the typed client for the agent-registry service's
// semantic search over known agents.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/httpx"
)

const timeout = 15 * time.Second

// AgentMatch is one entry in a registry search result.
type AgentMatch struct {
	AgentID      string   `json:"agent_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Status       string   `json:"status"`
	Score        float64  `json:"score"`
}

// Client talks to the agent-registry service. No retries: first failure is
// reported.
type Client struct {
	baseURL string
	http    *httpx.Client
}

// New builds a Client for baseURL, which must be non-empty and absolute.
func New(baseURL string) (*Client, error) {
	if err := httpx.ValidateBaseURL(baseURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "AGENT_REGISTRY_URL", Reason: err.Error()}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpx.New(timeout, httpx.NoRetry),
	}, nil
}

// Search queries /api/v1/agents/search for agents relevant to query.
func (c *Client) Search(ctx context.Context, query string, limit int, minScore float64) ([]AgentMatch, error) {
	q := url.Values{}
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("min_score", strconv.FormatFloat(minScore, 'f', -1, 64))

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/agents/search?"+q.Encode(), nil)
	})
	if err != nil {
		return nil, &apperrors.UpstreamUnavailableError{Service: "agent-registry", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.UpstreamUnavailableError{Service: "agent-registry", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperrors.UpstreamUnavailableError{
			Service: "agent-registry",
			Cause:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	return decodeMatches(body)
}

// decodeMatches tolerates the three shapes the agent-registry is known to
// return: a bare array, {"agents": [...]}, or {"results": [...]}.
func decodeMatches(body []byte) ([]AgentMatch, error) {
	var list []AgentMatch
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}

	var wrapper struct {
		Agents  []AgentMatch `json:"agents"`
		Results []AgentMatch `json:"results"`
	}
	if err := json.Unmarshal(body, &wrapper); err != nil {
		return nil, fmt.Errorf("registry: decode response: %w", err)
	}
	if wrapper.Agents != nil {
		return wrapper.Agents, nil
	}
	return wrapper.Results, nil
}
