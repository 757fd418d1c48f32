// Package pipeline implements the orchestrator that drives the five
// subsystems — agent tracking, context generation, the cumulative-context
// memory block, agent discovery, and tool attachment — in a fixed order,
// assembling the webhook response from each subsystem's structured result.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/clients/graphknowledge"
	"github.com/oculair/context-enrichment-webhook/internal/clients/registry"
	"github.com/oculair/context-enrichment-webhook/internal/clients/runtime"
	"github.com/oculair/context-enrichment-webhook/internal/clients/toolattach"
	"github.com/oculair/context-enrichment-webhook/internal/memoryblock"
	"github.com/oculair/context-enrichment-webhook/internal/toolinventory"
	"github.com/oculair/context-enrichment-webhook/internal/tracker"
	"github.com/oculair/context-enrichment-webhook/internal/webhook"
)

const graphitiLabel = "graphiti_context"
const availableAgentsLabel = "available_agents"
const availableToolsLabel = "available_tools"

// findToolsUtilityFallbackID is the hard-coded fallback used when resolving
// the find-tools utility tool id fails or the tool is absent.
const findToolsUtilityFallbackID = "tool-find-attach-tools"

const findToolsUtilityName = "find_attach_tools"

// GraphClient is the subset of the knowledge-graph client the pipeline uses.
type GraphClient interface {
	Search(ctx context.Context, query string, maxNodes, maxFacts int) (graphknowledge.SearchResult, error)
}

// RegistryClient is the subset of the agent-registry client the pipeline
// uses.
type RegistryClient interface {
	Search(ctx context.Context, query string, limit int, minScore float64) ([]registry.AgentMatch, error)
}

// ToolAttachClient is the subset of the tool-attachment client the pipeline
// uses.
type ToolAttachClient interface {
	Attach(ctx context.Context, req toolattach.Request) (toolattach.Result, error)
}

// ToolLookupClient resolves the find-tools utility id and lists an agent's
// currently attached tools, for the tool-inventory supplement.
type ToolLookupClient interface {
	ResolveFindToolsUtilityID(ctx context.Context, agentID, toolName, fallbackID string) string
	ListAgentTools(ctx context.Context, agentID string) ([]runtime.Tool, error)
}

// Notifier submits a background chat-bridge notification job.
type Notifier interface {
	Submit(agentID string)
}

// Config carries the per-request defaults the orchestrator falls back to
// when a webhook does not override them.
type Config struct {
	GraphitiMaxNodes       int
	GraphitiMaxFacts       int
	AgentRegistryMaxAgents int
	AgentRegistryMinScore  float64
	ToolAttachmentLimit    int
	ToolAttachmentMinScore float64
	ProtectedTools         []string
}

// Orchestrator drives the pipeline's five subsystems in order.
type Orchestrator struct {
	graph      GraphClient
	registry   RegistryClient
	toolAttach ToolAttachClient
	toolLookup ToolLookupClient
	memory     *memoryblock.Manager
	tracker    *tracker.Tracker
	notifier   Notifier
	recency    *toolinventory.Recency
	cfg        Config
	logger     *slog.Logger
}

// New builds an Orchestrator from its wired dependencies.
func New(
	graph GraphClient,
	registryClient RegistryClient,
	toolAttachClient ToolAttachClient,
	toolLookup ToolLookupClient,
	memory *memoryblock.Manager,
	trk *tracker.Tracker,
	notifier Notifier,
	recency *toolinventory.Recency,
	cfg Config,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		graph: graph, registry: registryClient, toolAttach: toolAttachClient,
		toolLookup: toolLookup, memory: memory, tracker: trk, notifier: notifier,
		recency: recency, cfg: cfg, logger: logger,
	}
}

// Handle drives the subsystems in order and assembles the response. It
// returns no error: every subsystem failure is caught at its source and
// folded into its own subobject. Malformed bodies are rejected by the HTTP
// layer before Handle is called.
func (o *Orchestrator) Handle(ctx context.Context, event webhook.Event) webhook.Response {
	agentID := event.AgentID
	query := event.PromptText

	// Track the agent, firing a background notification on first sighting.
	if agentID != "" {
		if o.tracker.Observe(agentID) {
			o.notifier.Submit(agentID)
		}
	}

	// Context generation. Always attempted.
	maxNodes := o.cfg.GraphitiMaxNodes
	if event.MaxNodes != nil && *event.MaxNodes >= 1 {
		maxNodes = *event.MaxNodes
	}
	maxFacts := o.cfg.GraphitiMaxFacts
	if event.MaxFacts != nil && *event.MaxFacts >= 1 {
		maxFacts = *event.MaxFacts
	}

	searchResult, searchErr := o.graph.Search(ctx, query, maxNodes, maxFacts)
	var contextText string
	kgSucceeded := searchErr == nil
	if searchErr != nil {
		contextText = fmt.Sprintf("Error retrieving knowledge-graph context: %v", searchErr)
		o.logger.Warn("pipeline: knowledge-graph search failed", slog.Any("error", searchErr))
	} else {
		contextText = graphknowledge.FormatContext(searchResult, query)
	}

	// Graphiti memory block, append mode. Skipped cleanly if agent_id is
	// absent; the generated context is still reported.
	graphiti := webhook.GraphitiResult{Success: kgSucceeded, Context: contextText}
	overallSuccess := true
	if agentID != "" {
		result, err := o.memory.EnsureBlock(ctx, agentID, graphitiLabel, contextText)
		if err != nil {
			graphiti.Success = false
			graphiti.Error = err.Error()
			overallSuccess = false
			o.logger.Warn("pipeline: graphiti block update failed", slog.String("agent_id", agentID), slog.Any("error", err))
		} else {
			graphiti.BlockID = result.BlockID
			graphiti.BlockName = result.Label
			graphiti.Updated = result.Wrote
			if !kgSucceeded {
				graphiti.Success = false
			}
		}
	}

	// Agent discovery. Non-blocking: any failure is logged into the
	// response and the pipeline continues.
	discovery := o.discoverAgents(ctx, agentID, query)

	// Tool attachment. Non-blocking: same failure policy.
	toolResult := o.attachTools(ctx, agentID, query)

	// Tool inventory refresh, running after tool attachment.
	o.refreshToolInventory(ctx, agentID, query, toolResult)

	resp := webhook.Response{
		Success:        overallSuccess,
		Message:        summarize(graphiti, discovery, toolResult),
		Graphiti:       graphiti,
		AgentDiscovery: discovery,
		ToolAttachment: toolResult,
	}
	if agentID != "" {
		resp.AgentID = &agentID
	}
	if graphiti.BlockID != "" {
		resp.BlockID = &graphiti.BlockID
	}
	if graphiti.BlockName != "" {
		resp.BlockName = &graphiti.BlockName
	}
	return resp
}

func (o *Orchestrator) discoverAgents(ctx context.Context, agentID, query string) webhook.AgentDiscoveryResult {
	matches, err := o.registry.Search(ctx, query, o.cfg.AgentRegistryMaxAgents, o.cfg.AgentRegistryMinScore)
	if err != nil {
		o.logger.Warn("pipeline: agent-registry search failed", slog.Any("error", err))
		return webhook.AgentDiscoveryResult{Success: false, Error: err.Error()}
	}

	result := webhook.AgentDiscoveryResult{Success: true, Count: len(matches)}
	if agentID == "" {
		return result
	}

	content := registry.FormatAvailableAgents(matches)
	blockResult, err := o.memory.ReplaceBlock(ctx, agentID, availableAgentsLabel, content)
	if err != nil {
		o.logger.Warn("pipeline: available_agents block write failed", slog.String("agent_id", agentID), slog.Any("error", err))
		result.Success = false
		result.Error = err.Error()
		return result
	}
	result.BlockID = blockResult.BlockID
	return result
}

func (o *Orchestrator) attachTools(ctx context.Context, agentID, query string) webhook.ToolAttachmentResult {
	if agentID == "" {
		return webhook.ToolAttachmentResult{Success: true}
	}

	utilityID := o.toolLookup.ResolveFindToolsUtilityID(ctx, agentID, findToolsUtilityName, findToolsUtilityFallbackID)
	keepTools := toolattach.BuildKeepTools(utilityID, o.cfg.ProtectedTools)

	result, err := o.toolAttach.Attach(ctx, toolattach.Request{
		Query:            query,
		AgentID:          agentID,
		KeepTools:        keepTools,
		Limit:            o.cfg.ToolAttachmentLimit,
		MinScore:         o.cfg.ToolAttachmentMinScore,
		RequestHeartbeat: false,
	})
	if err != nil {
		o.logger.Warn("pipeline: tool attachment failed", slog.String("agent_id", agentID), slog.Any("error", err))
		return webhook.ToolAttachmentResult{Success: false, Error: err.Error()}
	}

	attachedNames := make([]string, 0, len(result.Attached))
	for _, t := range result.Attached {
		attachedNames = append(attachedNames, t.Name)
	}
	return webhook.ToolAttachmentResult{Success: true, Attached: attachedNames, Preserved: result.Preserved}
}

func (o *Orchestrator) refreshToolInventory(ctx context.Context, agentID, query string, attachResult webhook.ToolAttachmentResult) {
	if agentID == "" {
		return
	}

	for _, name := range attachResult.Attached {
		o.recency.Record(agentID, toolinventory.Attachment{
			ToolName:  name,
			Reason:    reasonFromQuery(query),
			Timestamp: time.Now(),
		})
	}

	tools, err := o.toolLookup.ListAgentTools(ctx, agentID)
	if err != nil {
		o.logger.Warn("pipeline: tool-inventory lookup failed", slog.String("agent_id", agentID), slog.Any("error", err))
		return
	}

	inventoryTools := make([]toolinventory.Tool, 0, len(tools))
	for _, t := range tools {
		inventoryTools = append(inventoryTools, toolinventory.Tool{ID: t.ID, Name: t.Name})
	}

	recent := o.recency.Recent(agentID, 3)
	content := toolinventory.Format(inventoryTools, recent, time.Now())

	if _, err := o.memory.ReplaceBlock(ctx, agentID, availableToolsLabel, content); err != nil {
		o.logger.Warn("pipeline: available_tools block write failed", slog.String("agent_id", agentID), slog.Any("error", err))
	}
}

func reasonFromQuery(query string) string {
	words := strings.Fields(query)
	if len(words) > 3 {
		words = words[:3]
	}
	if len(words) == 0 {
		return "auto"
	}
	return "auto: '" + strings.Join(words, " ") + "'"
}

func summarize(g webhook.GraphitiResult, d webhook.AgentDiscoveryResult, t webhook.ToolAttachmentResult) string {
	var parts []string

	switch {
	case !g.Success:
		parts = append(parts, "context update failed")
	case g.Updated:
		parts = append(parts, "context updated")
	default:
		parts = append(parts, "context unchanged")
	}

	if d.Success {
		parts = append(parts, fmt.Sprintf("%d agents discovered", d.Count))
	} else {
		parts = append(parts, "agent discovery failed")
	}

	if t.Success {
		parts = append(parts, fmt.Sprintf("%d tools attached", len(t.Attached)))
	} else {
		parts = append(parts, "tool attachment failed")
	}

	return strings.Join(parts, "; ")
}
