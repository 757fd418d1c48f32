// Package runtime is the typed client for the agent runtime's memory-block
// and tool-listing HTTP API. It carries the shared secret and bearer token
// configured for the service, plus a per-request caller-identity header when
// acting on behalf of a specific agent.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/httpx"
	"github.com/oculair/context-enrichment-webhook/internal/jsonutil"
)

const defaultTimeout = 10 * time.Second

const pageSize = 100

// Block mirrors the agent runtime's memory-block representation.
type Block struct {
	ID       string            `json:"id"`
	Label    string            `json:"label"`
	Value    string            `json:"value"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Tool mirrors the subset of the runtime's tool representation the core
// needs to resolve the find-tools utility id.
type Tool struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Client talks to the agent runtime's HTTP API.
type Client struct {
	baseURL  string
	password string
	http     *httpx.Client
}

// New builds a Client for baseURL, authenticating with the configured shared
// secret. baseURL must be non-empty and absolute.
func New(baseURL, password string) (*Client, error) {
	if err := httpx.ValidateBaseURL(baseURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "LETTA_BASE_URL", Reason: err.Error()}
	}
	return &Client{
		baseURL:  baseURL,
		password: password,
		http:     httpx.New(defaultTimeout, httpx.NoRetry),
	}, nil
}

func (c *Client) url(path string) string {
	base := c.baseURL
	for len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + "/v1/" + path
}

func (c *Client) headers(agentID string) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("X-BARE-PASSWORD", "password "+c.password)
	h.Set("Authorization", "Bearer "+c.password)
	if agentID != "" {
		h.Set("user_id", agentID)
	}
	return h
}

func (c *Client) do(ctx context.Context, method, path, agentID string, body any) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("runtime: marshal request: %w", err)
		}
		bodyBytes = b
	}

	return c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		var reader io.Reader
		if bodyBytes != nil {
			reader = bytes.NewReader(bodyBytes)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.url(path), reader)
		if err != nil {
			return nil, err
		}
		req.Header = c.headers(agentID)
		return req, nil
	})
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func asRuntimeError(op string, resp *http.Response, body []byte) error {
	return &apperrors.RuntimeAPIError{Op: op, StatusCode: resp.StatusCode, Body: string(body)}
}

// ListBlocksForAgent returns the blocks currently attached to agentID.
func (c *Client) ListBlocksForAgent(ctx context.Context, agentID string) ([]Block, error) {
	resp, err := c.do(ctx, http.MethodGet, "agents/"+url.PathEscape(agentID)+"/core-memory/blocks", agentID, nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: list agent blocks: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, asRuntimeError("list agent blocks", resp, body)
	}
	return jsonutil.DecodeListOrField[Block](body, "blocks")
}

// ListBlocksGlobal pages through every process-wide block with the given
// label until the runtime reports no further pages.
func (c *Client) ListBlocksGlobal(ctx context.Context, label string) ([]Block, error) {
	var all []Block
	offset := 0
	for {
		path := fmt.Sprintf("blocks?label=%s&templates_only=false&limit=%d&offset=%d",
			url.QueryEscape(label), pageSize, offset)
		resp, err := c.do(ctx, http.MethodGet, path, "", nil)
		if err != nil {
			return nil, fmt.Errorf("runtime: list global blocks: %w", err)
		}
		body, err := readBody(resp)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, asRuntimeError("list global blocks", resp, body)
		}
		page, err := jsonutil.DecodeListOrField[Block](body, "blocks")
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		offset += pageSize
	}
}

// GetBlock fetches a single block by id.
func (c *Client) GetBlock(ctx context.Context, blockID string) (Block, error) {
	resp, err := c.do(ctx, http.MethodGet, "blocks/"+url.PathEscape(blockID), "", nil)
	if err != nil {
		return Block{}, fmt.Errorf("runtime: get block: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return Block{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return Block{}, asRuntimeError("get block", resp, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Block{}, asRuntimeError("get block", resp, body)
	}
	var block Block
	if err := json.Unmarshal(body, &block); err != nil {
		return Block{}, fmt.Errorf("runtime: decode block: %w", err)
	}
	return block, nil
}

// CreateBlock creates a new labeled block with the given value. A non-empty
// agentID is sent as the caller-identity header; the new block is not
// attached to any agent here (see AttachBlock).
func (c *Client) CreateBlock(ctx context.Context, agentID, label, value string) (Block, error) {
	resp, err := c.do(ctx, http.MethodPost, "blocks", agentID, map[string]string{
		"label": label,
		"value": value,
	})
	if err != nil {
		return Block{}, fmt.Errorf("runtime: create block: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return Block{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Block{}, asRuntimeError("create block", resp, body)
	}
	var block Block
	if err := json.Unmarshal(body, &block); err != nil {
		return Block{}, fmt.Errorf("runtime: decode created block: %w", err)
	}
	return block, nil
}

// UpdateBlock overwrites blockID's value via PUT.
func (c *Client) UpdateBlock(ctx context.Context, blockID, value string) (Block, error) {
	resp, err := c.do(ctx, http.MethodPut, "blocks/"+url.PathEscape(blockID), "", map[string]string{
		"value": value,
	})
	if err != nil {
		return Block{}, fmt.Errorf("runtime: update block: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return Block{}, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return Block{}, asRuntimeError("update block", resp, body)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Block{}, asRuntimeError("update block", resp, body)
	}
	var block Block
	if err := json.Unmarshal(body, &block); err != nil {
		return Block{}, fmt.Errorf("runtime: decode updated block: %w", err)
	}
	return block, nil
}

// AttachBlock attaches blockID to agentID. A 409 (already attached) is
// treated as success.
func (c *Client) AttachBlock(ctx context.Context, agentID, blockID string) error {
	path := "agents/" + url.PathEscape(agentID) + "/core-memory/blocks/attach/" + url.PathEscape(blockID)
	resp, err := c.do(ctx, http.MethodPatch, path, agentID, map[string]string{})
	if err != nil {
		return fmt.Errorf("runtime: attach block: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusConflict {
		return nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return asRuntimeError("attach block", resp, body)
	}
	return nil
}

// ListAgentTools fetches every tool currently attached to agentID.
func (c *Client) ListAgentTools(ctx context.Context, agentID string) ([]Tool, error) {
	resp, err := c.do(ctx, http.MethodGet, "agents/"+url.PathEscape(agentID)+"/tools", agentID, nil)
	if err != nil {
		return nil, fmt.Errorf("runtime: list agent tools: %w", err)
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, asRuntimeError("list agent tools", resp, body)
	}
	return jsonutil.DecodeListOrField[Tool](body, "tools")
}

// ResolveFindToolsUtilityID looks up the id of the named tool-search utility
// tool among agentID's attached tools, falling back to a hard-coded default
// when the lookup fails or the tool is absent.
func (c *Client) ResolveFindToolsUtilityID(ctx context.Context, agentID, toolName, fallbackID string) string {
	tools, err := c.ListAgentTools(ctx, agentID)
	if err != nil {
		return fallbackID
	}
	for _, t := range tools {
		if t.Name == toolName {
			return t.ID
		}
	}
	return fallbackID
}
