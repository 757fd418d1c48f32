// Package memoryblock implements the locate-or-create-or-update discipline
// for a per-agent labeled memory block, ensuring it is attached before any
// write. It also implements the replace-mode variant used by the
// available_agents and available_tools blocks.
package memoryblock

import (
	"context"
	"fmt"
	"time"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
	"github.com/oculair/context-enrichment-webhook/internal/clients/runtime"
	"github.com/oculair/context-enrichment-webhook/internal/cumulctx"
)

// Block is an alias of the agent-runtime client's block representation.
type Block = runtime.Block

// RuntimeClient is the subset of the agent-runtime client the manager needs.
// Implemented by internal/clients/runtime.Client.
type RuntimeClient interface {
	ListBlocksForAgent(ctx context.Context, agentID string) ([]Block, error)
	ListBlocksGlobal(ctx context.Context, label string) ([]Block, error)
	GetBlock(ctx context.Context, blockID string) (Block, error)
	CreateBlock(ctx context.Context, agentID, label, value string) (Block, error)
	UpdateBlock(ctx context.Context, blockID, value string) (Block, error)
	AttachBlock(ctx context.Context, agentID, blockID string) error
}

// Manager drives the locate -> lazy-attach -> update-or-skip -> create
// sequence for a labeled per-agent memory block.
type Manager struct {
	client RuntimeClient
}

// New builds a Manager around client.
func New(client RuntimeClient) *Manager {
	return &Manager{client: client}
}

// Result is the structured outcome of an EnsureBlock or ReplaceBlock call.
type Result struct {
	Created bool
	BlockID string
	Label   string
	Wrote   bool
}

func (m *Manager) locate(ctx context.Context, agentID, label string) (block Block, found, attached bool, err error) {
	if agentID != "" {
		blocks, err := m.client.ListBlocksForAgent(ctx, agentID)
		if err != nil {
			return Block{}, false, false, fmt.Errorf("memoryblock: list agent blocks: %w", err)
		}
		for _, b := range blocks {
			if b.Label == label {
				return b, true, true, nil
			}
		}
	}

	blocks, err := m.client.ListBlocksGlobal(ctx, label)
	if err != nil {
		return Block{}, false, false, fmt.Errorf("memoryblock: list global blocks: %w", err)
	}
	if len(blocks) > 0 {
		return blocks[0], true, false, nil
	}
	return Block{}, false, false, nil
}

// EnsureBlock implements the append-mode flow: locate, lazily attach, append
// newContextValue to the existing value via cumulctx, write only if the
// result differs, or create a new block when none is found.
func (m *Manager) EnsureBlock(ctx context.Context, agentID, label, newContextValue string) (Result, error) {
	block, found, attached, err := m.locate(ctx, agentID, label)
	if err != nil {
		return Result{}, err
	}

	if found {
		if !attached && agentID != "" {
			if err := m.client.AttachBlock(ctx, agentID, block.ID); err != nil {
				return Result{}, fmt.Errorf("memoryblock: attach block %s: %w", block.ID, err)
			}
		}

		current, err := m.client.GetBlock(ctx, block.ID)
		switch {
		case err == nil:
			updated := cumulctx.Append(current.Value, newContextValue, time.Now().UTC())
			if updated == current.Value {
				return Result{Created: false, BlockID: block.ID, Label: label, Wrote: false}, nil
			}
			if _, err := m.client.UpdateBlock(ctx, block.ID, updated); err != nil {
				if apperrors.IsNotFound(err) {
					break
				}
				return Result{}, fmt.Errorf("memoryblock: update block %s: %w", block.ID, err)
			}
			return Result{Created: false, BlockID: block.ID, Label: label, Wrote: true}, nil
		case apperrors.IsNotFound(err):
			// Block was deleted between locate and get; fall through to create.
		default:
			return Result{}, fmt.Errorf("memoryblock: get block %s: %w", block.ID, err)
		}
	}

	created, err := m.client.CreateBlock(ctx, agentID, label, newContextValue)
	if err != nil {
		return Result{}, fmt.Errorf("memoryblock: create block: %w", err)
	}
	if agentID != "" {
		if err := m.client.AttachBlock(ctx, agentID, created.ID); err != nil {
			return Result{}, fmt.Errorf("memoryblock: attach created block %s: %w", created.ID, err)
		}
	}
	return Result{Created: true, BlockID: created.ID, Label: label, Wrote: true}, nil
}

// ReplaceBlock implements the replace-mode flow used by available_agents and
// available_tools: the existing block's value (if any) is overwritten
// rather than appended, subject to the same 4800-byte cap.
func (m *Manager) ReplaceBlock(ctx context.Context, agentID, label, content string) (Result, error) {
	if len(content) > cumulctx.MaxLength {
		content = content[:cumulctx.MaxLength]
	}

	block, found, attached, err := m.locate(ctx, agentID, label)
	if err != nil {
		return Result{}, err
	}

	if found {
		if !attached && agentID != "" {
			if err := m.client.AttachBlock(ctx, agentID, block.ID); err != nil {
				return Result{}, fmt.Errorf("memoryblock: attach block %s: %w", block.ID, err)
			}
		}
		if block.Value == content {
			return Result{Created: false, BlockID: block.ID, Label: label, Wrote: false}, nil
		}
		if _, err := m.client.UpdateBlock(ctx, block.ID, content); err != nil {
			if !apperrors.IsNotFound(err) {
				return Result{}, fmt.Errorf("memoryblock: update block %s: %w", block.ID, err)
			}
			// Block was deleted concurrently; fall through to create.
		} else {
			return Result{Created: false, BlockID: block.ID, Label: label, Wrote: true}, nil
		}
	}

	created, err := m.client.CreateBlock(ctx, agentID, label, content)
	if err != nil {
		return Result{}, fmt.Errorf("memoryblock: create block: %w", err)
	}
	if agentID != "" {
		if err := m.client.AttachBlock(ctx, agentID, created.ID); err != nil {
			return Result{}, fmt.Errorf("memoryblock: attach created block %s: %w", created.ID, err)
		}
	}
	return Result{Created: true, BlockID: created.ID, Label: label, Wrote: true}, nil
}
