// Package graphknowledge is the typed client for the knowledge-graph
// service's node/fact semantic search, plus the formatter that turns a
// search result into the human-readable context block the pipeline appends
// to an agent's cumulative-context memory block.
package graphknowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/httpx"
	"github.com/oculair/context-enrichment-webhook/internal/jsonutil"
)

const timeout = 30 * time.Second

// Node is one entity returned by a node search.
type Node struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// Fact is one fact returned by a fact search.
type Fact struct {
	Fact string `json:"fact"`
}

// SearchResult is the combined, deduplicated node/fact result for one query.
type SearchResult struct {
	Nodes []Node
	Facts []Fact
}

// Client talks to the knowledge-graph service. It is the only client that
// retries: three attempts with 1s/2s/4s backoff on {429,500,502,503,504} and
// on connection errors.
type Client struct {
	baseURL string
	http    *httpx.Client
}

// New builds a Client for baseURL, which must be non-empty and absolute.
func New(baseURL string) (*Client, error) {
	if err := httpx.ValidateBaseURL(baseURL); err != nil {
		return nil, &apperrors.ConfigError{Field: "GRAPHITI_URL", Reason: err.Error()}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpx.New(timeout, httpx.KnowledgeGraphRetry),
	}, nil
}

type nodesRequest struct {
	Query    string   `json:"query"`
	MaxNodes int      `json:"max_nodes"`
	GroupIDs []string `json:"group_ids"`
}

type factsRequest struct {
	Query    string   `json:"query"`
	MaxFacts int      `json:"max_facts"`
	GroupIDs []string `json:"group_ids"`
}

// SearchNodes queries the /search/nodes endpoint.
func (c *Client) SearchNodes(ctx context.Context, query string, maxNodes int) ([]Node, error) {
	body, err := c.post(ctx, "/search/nodes", nodesRequest{Query: query, MaxNodes: maxNodes, GroupIDs: []string{}})
	if err != nil {
		return nil, err
	}
	nodes, err := jsonutil.DecodeListOrField[Node](body, "nodes")
	if err != nil {
		return nil, fmt.Errorf("graphknowledge: decode nodes: %w", err)
	}
	if len(nodes) > maxNodes {
		nodes = nodes[:maxNodes]
	}
	return nodes, nil
}

// SearchFacts queries the /search endpoint.
func (c *Client) SearchFacts(ctx context.Context, query string, maxFacts int) ([]Fact, error) {
	body, err := c.post(ctx, "/search", factsRequest{Query: query, MaxFacts: maxFacts, GroupIDs: []string{}})
	if err != nil {
		return nil, err
	}
	facts, err := jsonutil.DecodeListOrField[Fact](body, "facts")
	if err != nil {
		return nil, fmt.Errorf("graphknowledge: decode facts: %w", err)
	}
	facts = dedupFacts(facts)
	if len(facts) > maxFacts {
		facts = facts[:maxFacts]
	}
	return facts, nil
}

func dedupFacts(facts []Fact) []Fact {
	seen := make(map[string]struct{}, len(facts))
	out := make([]Fact, 0, len(facts))
	for _, f := range facts {
		if _, ok := seen[f.Fact]; ok {
			continue
		}
		seen[f.Fact] = struct{}{}
		out = append(out, f)
	}
	return out
}

func (c *Client) post(ctx context.Context, path string, reqBody any) ([]byte, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("graphknowledge: marshal request: %w", err)
	}

	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, &apperrors.UpstreamUnavailableError{Service: "knowledge-graph", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.UpstreamUnavailableError{Service: "knowledge-graph", Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &apperrors.UpstreamUnavailableError{
			Service: "knowledge-graph",
			Cause:   fmt.Errorf("status %d: %s", resp.StatusCode, string(body)),
		}
	}
	return body, nil
}

// Search runs the node and fact searches concurrently, returning the
// combined result once both complete. A failure in either leg fails the
// whole search: the caller folds this into an error-context payload rather
// than aborting the pipeline.
func (c *Client) Search(ctx context.Context, query string, maxNodes, maxFacts int) (SearchResult, error) {
	var result SearchResult
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		nodes, err := c.SearchNodes(gctx, query, maxNodes)
		if err != nil {
			return err
		}
		result.Nodes = nodes
		return nil
	})
	g.Go(func() error {
		facts, err := c.SearchFacts(gctx, query, maxFacts)
		if err != nil {
			return err
		}
		result.Facts = facts
		return nil
	})

	if err := g.Wait(); err != nil {
		return SearchResult{}, err
	}
	return result, nil
}

// FormatContext renders a search result into the exact human-readable block
// the pipeline appends to an agent's cumulative context. The function is
// total: any missing optional field renders as the empty string, and an
// empty result produces an explanatory string rather than an empty payload.
func FormatContext(result SearchResult, query string) string {
	if len(result.Nodes) == 0 && len(result.Facts) == 0 {
		return fmt.Sprintf("No relevant information found in the knowledge graph for query: %q", query)
	}

	var parts []string
	for _, n := range result.Nodes {
		parts = append(parts, fmt.Sprintf("Node: %s\nSummary: %s", n.Name, n.Summary))
	}
	for _, f := range result.Facts {
		parts = append(parts, fmt.Sprintf("Fact: %s", f.Fact))
	}

	return "Relevant Entities from Knowledge Graph:\n" + strings.Join(parts, "\n\n")
}
