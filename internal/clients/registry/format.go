package registry

import (
	"fmt"
	"strings"

	"github.com/oculair/context-enrichment-webhook/internal/cumulctx"
)

// FormatAvailableAgents renders matches into the available_agents block
// content: agent id, name, status, relevance score, description, capability
// list, one entry per match. Truncation drops trailing agents rather than
// mid-entry content, keeping within cumulctx.MaxLength bytes.
func FormatAvailableAgents(matches []AgentMatch) string {
	if len(matches) == 0 {
		return "No relevant agents found for the current context."
	}

	entries := make([]string, 0, len(matches))
	for _, m := range matches {
		caps := "none"
		if len(m.Capabilities) > 0 {
			caps = strings.Join(m.Capabilities, ", ")
		}
		entries = append(entries, fmt.Sprintf(
			"Agent: %s (%s)\nStatus: %s\nRelevance: %.2f\nDescription: %s\nCapabilities: %s",
			m.Name, m.AgentID, m.Status, m.Score, m.Description, caps,
		))
	}

	header := "Available Agents for Collaboration:\n"
	body := strings.Join(entries, "\n\n")
	content := header + body
	if len(content) <= cumulctx.MaxLength {
		return content
	}

	// Drop trailing agents until the content fits.
	for len(entries) > 0 {
		entries = entries[:len(entries)-1]
		content = header + strings.Join(entries, "\n\n")
		if len(content) <= cumulctx.MaxLength {
			return content
		}
	}
	return content[:cumulctx.MaxLength]
}
