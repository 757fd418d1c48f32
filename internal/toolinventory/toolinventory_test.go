package toolinventory

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRecencyRecordTrimsToMaxRecent(t *testing.T) {
	r := NewRecency()
	for i := 0; i < maxRecent+5; i++ {
		r.Record("agent-1", Attachment{ToolName: "tool"})
	}

	all := r.Recent("agent-1", maxRecent+5)
	assert.Len(t, all, maxRecent)
}

func TestRecencyRecordMostRecentFirst(t *testing.T) {
	r := NewRecency()
	r.Record("agent-1", Attachment{ToolName: "first"})
	r.Record("agent-1", Attachment{ToolName: "second"})

	recent := r.Recent("agent-1", 2)
	assert.Equal(t, "second", recent[0].ToolName)
	assert.Equal(t, "first", recent[1].ToolName)
}

func TestRecencyIsolatedPerAgent(t *testing.T) {
	r := NewRecency()
	r.Record("agent-1", Attachment{ToolName: "a"})
	r.Record("agent-2", Attachment{ToolName: "b"})

	assert.Len(t, r.Recent("agent-1", 10), 1)
	assert.Len(t, r.Recent("agent-2", 10), 1)
}

func TestFormatNoToolsAttached(t *testing.T) {
	content := Format(nil, nil, time.Now())
	assert.Equal(t, "Available Tools: None currently attached.", content)
}

func TestCategorizeCoreTool(t *testing.T) {
	assert.Equal(t, "Core", categorize(Tool{Name: "send_message"}))
}

func TestCategorizeByMCPServerName(t *testing.T) {
	assert.Equal(t, "Web Search", categorize(Tool{Name: "search_web", MCPServerName: "searxng"}))
}

func TestCategorizeByTagPrefix(t *testing.T) {
	assert.Equal(t, "Knowledge Graph", categorize(Tool{Name: "kg_search", Tags: []string{"mcp:graphiti"}}))
}

func TestCategorizeUnknownFallsBackToOther(t *testing.T) {
	assert.Equal(t, "Other", categorize(Tool{Name: "mystery_tool"}))
}

func TestFormatGroupsAndListsTotalCount(t *testing.T) {
	tools := []Tool{
		{ID: "1", Name: "send_message"},
		{ID: "2", Name: "search_web", MCPServerName: "searxng"},
		{ID: "3", Name: "custom_tool"},
	}

	content := Format(tools, nil, time.Now())
	assert.Contains(t, content, "Available Tools (3 total)")
	assert.Contains(t, content, "=== Core ===")
	assert.Contains(t, content, "=== Web Search ===")
	assert.Contains(t, content, "send_message")
	assert.Contains(t, content, "search_web")
	assert.Contains(t, content, "custom_tool")
}

func TestFormatRecentlyAttachedSectionAndDedup(t *testing.T) {
	tools := []Tool{
		{ID: "1", Name: "send_message"},
	}
	recent := []Attachment{
		{ToolID: "1", ToolName: "send_message", Reason: "auto: 'foo'", Score: 90, Timestamp: time.Now()},
	}

	content := Format(tools, recent, time.Now())
	assert.Contains(t, content, "=== Recently Attached ===")
	// the recently-attached tool must not also appear under its category section
	assert.Equal(t, 1, strings.Count(content, "- send_message"))
	coreIdx := indexOf(content, "=== Core ===")
	recentIdx := indexOf(content, "=== Recently Attached ===")
	assert.True(t, recentIdx < coreIdx || coreIdx == -1)
}

func TestFormatCapsAtMaxLength(t *testing.T) {
	tools := make([]Tool, 0, 500)
	for i := 0; i < 500; i++ {
		tools = append(tools, Tool{ID: string(rune(i)), Name: "tool_with_a_reasonably_long_name_to_pad_length"})
	}

	content := Format(tools, nil, time.Now())
	assert.LessOrEqual(t, len(content), 4800)
	assert.Contains(t, content, "[CONTENT TRUNCATED]")
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
