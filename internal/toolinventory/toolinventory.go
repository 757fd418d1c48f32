// Package toolinventory builds the available_tools memory-block snapshot:
// the agent's currently attached tools, grouped by category, with a small
// process-local "recently attached" recency list per agent.
package toolinventory

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/cumulctx"
)

// categoryMapping assigns a friendly category to well-known MCP server
// names, carried over from the Python original's CATEGORY_MAPPING.
var categoryMapping = map[string]string{
	"searxng":        "Web Search",
	"bookstack":      "Knowledge & Docs",
	"graphiti":       "Knowledge Graph",
	"matrix":         "Communication",
	"agent_registry": "Agent Discovery",
	"letta":          "Agent Management",
}

var coreToolNames = map[string]struct{}{
	"send_message":           {},
	"conversation_search":    {},
	"core_memory_append":     {},
	"core_memory_replace":    {},
	"archival_memory_insert": {},
	"archival_memory_search": {},
}

const maxRecent = 10

// Attachment is one recorded tool attachment, most-recent first.
type Attachment struct {
	ToolName  string
	ToolID    string
	Reason    string
	Score     float64
	Timestamp time.Time
}

// Recency tracks the last maxRecent attachments per agent. It is
// process-local and mutex-guarded like the agent tracker, but unlike the
// tracker's set each per-agent list is trimmed to maxRecent entries.
type Recency struct {
	mu       sync.Mutex
	perAgent map[string][]Attachment
}

// NewRecency builds an empty Recency tracker.
func NewRecency() *Recency {
	return &Recency{perAgent: make(map[string][]Attachment)}
}

// Record prepends an attachment to agentID's recency list, trimming to
// maxRecent entries.
func (r *Recency) Record(agentID string, a Attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := append([]Attachment{a}, r.perAgent[agentID]...)
	if len(list) > maxRecent {
		list = list[:maxRecent]
	}
	r.perAgent[agentID] = list
}

// Recent returns up to limit of agentID's most recent attachments.
func (r *Recency) Recent(agentID string, limit int) []Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.perAgent[agentID]
	if len(list) > limit {
		list = list[:limit]
	}
	out := make([]Attachment, len(list))
	copy(out, list)
	return out
}

// Tool is the subset of a runtime tool's metadata the inventory needs.
type Tool struct {
	ID            string
	Name          string
	Description   string
	MCPServerName string
	Tags          []string
}

func categorize(t Tool) string {
	if _, ok := coreToolNames[strings.ToLower(t.Name)]; ok {
		return "Core"
	}
	if t.MCPServerName != "" {
		if cat, ok := categoryMapping[strings.ToLower(t.MCPServerName)]; ok {
			return cat
		}
	}
	for _, tag := range t.Tags {
		tagLower := strings.ToLower(tag)
		if strings.HasPrefix(tagLower, "mcp:") {
			if cat, ok := categoryMapping[strings.TrimPrefix(tagLower, "mcp:")]; ok {
				return cat
			}
		}
	}
	return "Other"
}

func formatEntry(t Tool) string {
	desc := t.Description
	if len(desc) > 80 {
		desc = desc[:77] + "..."
	}
	if desc != "" {
		return fmt.Sprintf("- %s - %s", t.Name, desc)
	}
	return fmt.Sprintf("- %s", t.Name)
}

var priorityCategories = []string{"Core", "Web Search", "Communication", "Knowledge Graph", "Agent Discovery"}

// Format renders the complete available_tools block content: categorized
// tool listing with recently attached tools called out first, capped at
// cumulctx.MaxLength bytes.
func Format(tools []Tool, recent []Attachment, now time.Time) string {
	if len(tools) == 0 {
		return "Available Tools: None currently attached."
	}

	byCategory := make(map[string][]Tool)
	for _, t := range tools {
		cat := categorize(t)
		byCategory[cat] = append(byCategory[cat], t)
	}

	recentIDs := make(map[string]struct{}, len(recent))
	for _, a := range recent {
		recentIDs[a.ToolID] = struct{}{}
	}

	var lines []string
	lines = append(lines, fmt.Sprintf("Available Tools (%d total)", len(tools)), "")

	if len(recent) > 0 {
		lines = append(lines, "=== Recently Attached ===")
		for _, a := range recent {
			lines = append(lines, fmt.Sprintf("- %s", a.ToolName))
			lines = append(lines, fmt.Sprintf("  (%s, score: %.0f%%, %s)", a.Reason, a.Score, a.Timestamp.UTC().Format("2006-01-02 15:04")))
		}
		lines = append(lines, "")
	}

	shown := map[string]struct{}{}
	emit := func(cat string) {
		toolsInCat := byCategory[cat]
		if len(toolsInCat) == 0 {
			return
		}
		lines = append(lines, fmt.Sprintf("=== %s ===", cat))
		for _, t := range toolsInCat {
			if _, skip := recentIDs[t.ID]; skip {
				continue
			}
			lines = append(lines, formatEntry(t))
		}
		lines = append(lines, "")
		shown[cat] = struct{}{}
	}

	for _, cat := range priorityCategories {
		emit(cat)
	}

	var remaining []string
	for cat := range byCategory {
		if _, ok := shown[cat]; !ok {
			remaining = append(remaining, cat)
		}
	}
	sort.Strings(remaining)
	for _, cat := range remaining {
		emit(cat)
	}

	lines = append(lines, fmt.Sprintf("[Last updated: %s]", now.UTC().Format("2006-01-02 15:04:05 UTC")))

	content := strings.Join(lines, "\n")
	if len(content) > cumulctx.MaxLength {
		content = content[:cumulctx.MaxLength-len(" [CONTENT TRUNCATED]")] + " [CONTENT TRUNCATED]"
	}
	return content
}
