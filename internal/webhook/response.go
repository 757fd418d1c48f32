package webhook

// GraphitiResult is the cumulative-context memory-block subsystem outcome.
type GraphitiResult struct {
	Success   bool   `json:"success"`
	BlockID   string `json:"block_id,omitempty"`
	BlockName string `json:"block_name,omitempty"`
	Updated   bool   `json:"updated"`
	Error     string `json:"error,omitempty"`
	// Context is the generated knowledge-graph context text, surfaced even
	// when agent_id is absent and the memory-block write was skipped.
	Context string `json:"context,omitempty"`
}

// AgentDiscoveryResult is the agent-registry discovery subsystem outcome.
type AgentDiscoveryResult struct {
	Success bool   `json:"success"`
	Count   int    `json:"count"`
	BlockID string `json:"block_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ToolAttachmentResult is the tool-attachment subsystem outcome.
type ToolAttachmentResult struct {
	Success   bool     `json:"success"`
	Attached  []string `json:"attached"`
	Preserved []string `json:"preserved"`
	Error     string   `json:"error,omitempty"`
}

// Response is the webhook's response body.
type Response struct {
	Success        bool                 `json:"success"`
	Message        string               `json:"message"`
	Graphiti       GraphitiResult       `json:"graphiti"`
	AgentDiscovery AgentDiscoveryResult `json:"agent_discovery"`
	ToolAttachment ToolAttachmentResult `json:"tool_attachment"`
	AgentID        *string              `json:"agent_id"`
	BlockID        *string              `json:"block_id"`
	BlockName      *string              `json:"block_name"`
}
