// Package config loads the service's environment-variable driven
// configuration, with an optional local TOML overlay for development that
// supplies defaults the environment variables then override.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/httpx"
)

// Overlay is the shape of an optional local TOML file read from CONFIG_PATH.
// Every field mirrors one of the service's environment variables; env vars
// always win over an overlay value when both are set.
type Overlay struct {
	Graphiti struct {
		URL      string `toml:"url"`
		MaxNodes int    `toml:"max_nodes"`
		MaxFacts int    `toml:"max_facts"`
	} `toml:"graphiti"`
	Letta struct {
		BaseURL  string `toml:"base_url"`
		Password string `toml:"password"`
	} `toml:"letta"`
	Matrix struct {
		ClientURL string `toml:"client_url"`
	} `toml:"matrix"`
	AgentRegistry struct {
		URL       string  `toml:"url"`
		MaxAgents int     `toml:"max_agents"`
		MinScore  float64 `toml:"min_score"`
	} `toml:"agent_registry"`
	ToolAttachment struct {
		URL      string  `toml:"url"`
		Limit    int     `toml:"limit"`
		MinScore float64 `toml:"min_score"`
	} `toml:"tool_attachment"`
	ProtectedTools string `toml:"protected_tools"`
}

// Config is the fully-resolved configuration the rest of the service reads.
type Config struct {
	GraphitiURL      string
	GraphitiMaxNodes int
	GraphitiMaxFacts int

	LettaBaseURL  string
	LettaPassword string

	MatrixClientURL string

	AgentRegistryURL       string
	AgentRegistryMaxAgents int
	AgentRegistryMinScore  float64

	ToolAttachmentURL      string
	ToolAttachmentLimit    int
	ToolAttachmentMinScore float64

	// ProtectedTools is always folded into keep_tools alongside the "*"
	// wildcard and the find-tools utility id.
	ProtectedTools []string
}

const (
	defaultGraphitiMaxNodes       = 8
	defaultGraphitiMaxFacts       = 20
	defaultAgentRegistryMaxAgents = 10
	defaultAgentRegistryMinScore  = 0.3
	defaultToolAttachmentLimit    = 3
	defaultToolAttachmentMinScore = 70.0
)

// Load resolves configuration from environment variables, layered over an
// optional TOML overlay read from CONFIG_PATH (if set and present). A
// missing or non-absolute GRAPHITI_URL is a ConfigError: the caller must
// refuse to bind a port.
func Load() (*Config, error) {
	overlay, err := loadOverlay(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		GraphitiURL:      firstNonEmpty(os.Getenv("GRAPHITI_URL"), overlay.Graphiti.URL),
		GraphitiMaxNodes: firstPositiveInt(os.Getenv("GRAPHITI_MAX_NODES"), overlay.Graphiti.MaxNodes, defaultGraphitiMaxNodes),
		GraphitiMaxFacts: firstPositiveInt(os.Getenv("GRAPHITI_MAX_FACTS"), overlay.Graphiti.MaxFacts, defaultGraphitiMaxFacts),

		LettaBaseURL:  firstNonEmpty(os.Getenv("LETTA_BASE_URL"), overlay.Letta.BaseURL),
		LettaPassword: firstNonEmpty(os.Getenv("LETTA_PASSWORD"), overlay.Letta.Password),

		MatrixClientURL: firstNonEmpty(os.Getenv("MATRIX_CLIENT_URL"), overlay.Matrix.ClientURL),

		AgentRegistryURL:       firstNonEmpty(os.Getenv("AGENT_REGISTRY_URL"), overlay.AgentRegistry.URL),
		AgentRegistryMaxAgents: firstPositiveInt(os.Getenv("AGENT_REGISTRY_MAX_AGENTS"), overlay.AgentRegistry.MaxAgents, defaultAgentRegistryMaxAgents),
		AgentRegistryMinScore:  firstPositiveFloat(os.Getenv("AGENT_REGISTRY_MIN_SCORE"), overlay.AgentRegistry.MinScore, defaultAgentRegistryMinScore),

		ToolAttachmentURL:      firstNonEmpty(os.Getenv("TOOL_ATTACHMENT_URL"), overlay.ToolAttachment.URL),
		ToolAttachmentLimit:    firstPositiveInt(os.Getenv("TOOL_ATTACHMENT_LIMIT"), overlay.ToolAttachment.Limit, defaultToolAttachmentLimit),
		ToolAttachmentMinScore: firstPositiveFloat(os.Getenv("TOOL_ATTACHMENT_MIN_SCORE"), overlay.ToolAttachment.MinScore, defaultToolAttachmentMinScore),

		ProtectedTools: splitCommaList(firstNonEmpty(os.Getenv("PROTECTED_TOOLS"), overlay.ProtectedTools)),
	}

	if err := httpx.ValidateBaseURL(cfg.GraphitiURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "GRAPHITI_URL", Reason: err.Error()}
	}

	return cfg, nil
}

func loadOverlay(path string) (Overlay, error) {
	var overlay Overlay
	if path == "" {
		return overlay, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return overlay, nil
		}
		return overlay, fmt.Errorf("config: read CONFIG_PATH %q: %w", path, err)
	}
	if err := toml.Unmarshal(data, &overlay); err != nil {
		return overlay, fmt.Errorf("config: parse CONFIG_PATH %q: %w", path, err)
	}
	return overlay, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositiveInt(envValue string, overlayValue, fallback int) int {
	if envValue != "" {
		if n, err := strconv.Atoi(envValue); err == nil && n >= 1 {
			return n
		}
	}
	if overlayValue >= 1 {
		return overlayValue
	}
	return fallback
}

func firstPositiveFloat(envValue string, overlayValue, fallback float64) float64 {
	if envValue != "" {
		if f, err := strconv.ParseFloat(envValue, 64); err == nil && f >= 0 {
			return f
		}
	}
	if overlayValue > 0 {
		return overlayValue
	}
	return fallback
}

func splitCommaList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, tok := range strings.Split(raw, ",") {
		tok = strings.TrimSpace(tok)
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
