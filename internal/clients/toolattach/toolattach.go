// Package toolattach is the typed client for the standalone tool-attachment
// service: given a query and an agent, it attaches relevant tools while
// honoring a preserve-list. Failures are reported but never fail the
// pipeline.
package toolattach

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

const timeout = 15 * time.Second

// WildcardKeepAll is the literal keep_tools entry meaning "preserve all
// currently attached tools". Per the service contract it is never expanded
// locally; it is passed through verbatim.
const WildcardKeepAll = "*"

// DefaultLimit and DefaultMinScore are the tool-attachment defaults,
// overridable via TOOL_ATTACHMENT_LIMIT / TOOL_ATTACHMENT_MIN_SCORE.
const (
	DefaultLimit    = 3
	DefaultMinScore = 70.0
)

// Request is the body sent to /api/v1/tools/attach.
type Request struct {
	Query            string   `json:"query"`
	AgentID          string   `json:"agent_id"`
	KeepTools        []string `json:"keep_tools"`
	Limit            int      `json:"limit"`
	MinScore         float64  `json:"min_score"`
	RequestHeartbeat bool     `json:"request_heartbeat"`
}

// AttachedTool is one tool the service reports as newly attached or
// preserved.
type AttachedTool struct {
	ToolID string  `json:"tool_id"`
	Name   string  `json:"name"`
	Score  float64 `json:"match_score"`
}

// Result is the service's response.
type Result struct {
	Success   bool           `json:"success"`
	Attached  []AttachedTool `json:"attached"`
	Preserved []string       `json:"preserved"`
}

// Client talks to the tool-attachment service. No retries: first failure is
// reported.
type Client struct {
	baseURL string
	http    *httpx.Client
}

// New builds a Client for baseURL, which must be non-empty and absolute.
func New(baseURL string) (*Client, error) {
	if err := httpx.ValidateBaseURL(baseURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "TOOL_ATTACHMENT_URL", Reason: err.Error()}
	}
	return &Client{
		baseURL: baseURL,
		http:    httpx.New(timeout, httpx.NoRetry),
	}, nil
}

// Attach calls the service's single operation.
func (c *Client) Attach(ctx context.Context, req Request) (Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("toolattach: marshal request: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/tools/attach", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		httpReq.Header.Set("Content-Type", "application/json")
		return httpReq, nil
	})
	if err != nil {
		return Result{}, &apperrors.UpstreamUnavailableError{Service: "tool-attachment", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{}, &apperrors.UpstreamUnavailableError{Service: "tool-attachment", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Result{}, &apperrors.UpstreamUnavailableError{
			Service: "tool-attachment",
			Cause:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return Result{}, fmt.Errorf("toolattach: decode response: %w", err)
	}
	return result, nil
}

// BuildKeepTools assembles the keep_tools list: the "*" wildcard, the
// find-tools utility tool id, and any configured protected tools, in that
// order, deduplicated.
func BuildKeepTools(findToolsUtilityID string, protectedTools []string) []string {
	seen := map[string]struct{}{}
	var out []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	add(WildcardKeepAll)
	add(findToolsUtilityID)
	for _, t := range protectedTools {
		add(t)
	}
	return out
}
