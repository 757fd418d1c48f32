// Package webhook defines the inbound webhook event DTO and the parsing
// rules that normalize its tagged-variant prompt and resolve the agent id.
package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// agentIDPrefix is the runtime's agent-id convention. A resolved id lacking
// this prefix is treated as absent.
const agentIDPrefix = "agent-"

// PromptSegment is one element of a list-shaped prompt. Only segments with
// Type == "text" contribute to the effective prompt text.
type PromptSegment struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// rawEvent mirrors the webhook body's JSON shape before prompt
// normalization and agent-id resolution.
type rawEvent struct {
	Type     string          `json:"type"`
	Prompt   json.RawMessage `json:"prompt"`
	Response *struct {
		AgentID string `json:"agent_id"`
	} `json:"response"`
	Request *struct {
		Path string `json:"path"`
	} `json:"request"`
	MaxNodes *int `json:"max_nodes"`
	MaxFacts *int `json:"max_facts"`
}

// Event is the parsed, normalized webhook event the orchestrator consumes.
type Event struct {
	Type       string
	PromptText string
	AgentID    string // empty when absent or malformed
	MaxNodes   *int
	MaxFacts   *int
}

// Parse decodes body into an Event, normalizing the prompt tagged variant to
// a plain string and resolving the agent id from either the response body or
// the request path. It returns an error for JSON that does not parse, and for
// a prompt that is neither a string nor a list of segments; a webhook that
// parses but omits both prompt and agent id still yields a usable (possibly
// empty) Event — callers decide what to skip.
func Parse(body []byte) (Event, error) {
	var raw rawEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		return Event{}, fmt.Errorf("webhook: malformed JSON: %w", err)
	}

	promptText, err := normalizePrompt(raw.Prompt)
	if err != nil {
		return Event{}, fmt.Errorf("webhook: malformed prompt: %w", err)
	}

	return Event{
		Type:       raw.Type,
		PromptText: promptText,
		AgentID:    resolveAgentID(raw),
		MaxNodes:   raw.MaxNodes,
		MaxFacts:   raw.MaxFacts,
	}, nil
}

func normalizePrompt(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "", nil
	}

	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		return asString, nil
	}

	var segments []PromptSegment
	if err := json.Unmarshal(raw, &segments); err != nil {
		return "", err
	}

	var parts []string
	for _, seg := range segments {
		if seg.Type == "text" {
			parts = append(parts, seg.Text)
		}
	}
	return strings.Join(parts, " "), nil
}

func resolveAgentID(raw rawEvent) string {
	if raw.Response != nil && isValidAgentID(raw.Response.AgentID) {
		return raw.Response.AgentID
	}
	if raw.Request != nil && raw.Request.Path != "" {
		if id := extractFromPath(raw.Request.Path); isValidAgentID(id) {
			return id
		}
	}
	return ""
}

func extractFromPath(path string) string {
	parts := strings.Split(path, "/")
	for i, part := range parts {
		if part == "agents" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

func isValidAgentID(id string) bool {
	return id != "" && strings.HasPrefix(id, agentIDPrefix)
}
