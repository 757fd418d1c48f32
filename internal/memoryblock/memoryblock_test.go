package memoryblock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
)

type fakeRuntime struct {
	agentBlocks  map[string][]Block
	globalBlocks map[string][]Block
	blocksByID   map[string]Block
	attached     map[string][]string // agentID -> blockIDs

	getErr    error
	updateErr error
	createErr error
	attachErr error

	createCalls int
	updateCalls int
	attachCalls int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		agentBlocks:  map[string][]Block{},
		globalBlocks: map[string][]Block{},
		blocksByID:   map[string]Block{},
		attached:     map[string][]string{},
	}
}

func (f *fakeRuntime) ListBlocksForAgent(ctx context.Context, agentID string) ([]Block, error) {
	return f.agentBlocks[agentID], nil
}

func (f *fakeRuntime) ListBlocksGlobal(ctx context.Context, label string) ([]Block, error) {
	return f.globalBlocks[label], nil
}

func (f *fakeRuntime) GetBlock(ctx context.Context, blockID string) (Block, error) {
	if f.getErr != nil {
		return Block{}, f.getErr
	}
	b, ok := f.blocksByID[blockID]
	if !ok {
		return Block{}, &apperrors.RuntimeAPIError{Op: "get block", StatusCode: 404}
	}
	return b, nil
}

func (f *fakeRuntime) CreateBlock(ctx context.Context, agentID, label, value string) (Block, error) {
	f.createCalls++
	if f.createErr != nil {
		return Block{}, f.createErr
	}
	b := Block{ID: "new-block-id", Label: label, Value: value}
	f.blocksByID[b.ID] = b
	f.globalBlocks[label] = append(f.globalBlocks[label], b)
	return b, nil
}

func (f *fakeRuntime) UpdateBlock(ctx context.Context, blockID, value string) (Block, error) {
	f.updateCalls++
	if f.updateErr != nil {
		return Block{}, f.updateErr
	}
	b, ok := f.blocksByID[blockID]
	if !ok {
		return Block{}, &apperrors.RuntimeAPIError{Op: "update block", StatusCode: 404}
	}
	b.Value = value
	f.blocksByID[blockID] = b
	return b, nil
}

func (f *fakeRuntime) AttachBlock(ctx context.Context, agentID, blockID string) error {
	f.attachCalls++
	if f.attachErr != nil {
		return f.attachErr
	}
	f.attached[agentID] = append(f.attached[agentID], blockID)
	return nil
}

func TestEnsureBlockCreatesWhenAbsent(t *testing.T) {
	rt := newFakeRuntime()
	m := New(rt)

	result, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", "first context")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.True(t, result.Wrote)
	assert.Equal(t, 1, rt.createCalls)
	assert.Equal(t, 1, rt.attachCalls)
}

func TestEnsureBlockAppendsWhenFoundOnAgent(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "graphiti_context", Value: "old context"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing

	m := New(rt)
	result, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", "new context")
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.True(t, result.Wrote)
	assert.Equal(t, 1, rt.updateCalls)
	assert.Equal(t, 0, rt.attachCalls, "already-attached block must not be re-attached")
}

func TestEnsureBlockSkipsWriteWhenUnchanged(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "graphiti_context", Value: "Relevant Entities from Knowledge Graph:\nsame"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing

	m := New(rt)
	result, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", existing.Value)
	require.NoError(t, err)
	assert.False(t, result.Wrote)
	assert.Equal(t, 0, rt.updateCalls)
}

func TestEnsureBlockLazilyAttachesGlobalMatch(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "graphiti_context", Value: "old"}
	rt.globalBlocks["graphiti_context"] = []Block{existing}
	rt.blocksByID["block-1"] = existing

	m := New(rt)
	_, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", "new")
	require.NoError(t, err)
	assert.Equal(t, 1, rt.attachCalls)
	assert.Contains(t, rt.attached["agent-1"], "block-1")
}

func TestEnsureBlockFallsBackToCreateOn404DuringUpdate(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "graphiti_context", Value: "old"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing
	rt.updateErr = &apperrors.RuntimeAPIError{Op: "update block", StatusCode: 404}

	m := New(rt)
	result, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", "new")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 1, rt.createCalls)
}

func TestEnsureBlockSurfacesNon404UpdateError(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "graphiti_context", Value: "old"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing
	rt.updateErr = &apperrors.RuntimeAPIError{Op: "update block", StatusCode: 500}

	m := New(rt)
	_, err := m.EnsureBlock(context.Background(), "agent-1", "graphiti_context", "new")
	assert.Error(t, err)
	assert.Equal(t, 0, rt.createCalls)
}

func TestEnsureBlockWithoutAgentIDSkipsAttach(t *testing.T) {
	rt := newFakeRuntime()
	m := New(rt)

	result, err := m.EnsureBlock(context.Background(), "", "graphiti_context", "content")
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, 0, rt.attachCalls)
}

func TestReplaceBlockOverwritesRatherThanAppends(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "available_agents", Value: "stale listing"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing

	m := New(rt)
	result, err := m.ReplaceBlock(context.Background(), "agent-1", "available_agents", "fresh listing")
	require.NoError(t, err)
	assert.True(t, result.Wrote)
	assert.Equal(t, "fresh listing", rt.blocksByID["block-1"].Value)
}

func TestReplaceBlockSkipsWriteWhenIdentical(t *testing.T) {
	rt := newFakeRuntime()
	existing := Block{ID: "block-1", Label: "available_agents", Value: "same content"}
	rt.agentBlocks["agent-1"] = []Block{existing}
	rt.blocksByID["block-1"] = existing

	m := New(rt)
	result, err := m.ReplaceBlock(context.Background(), "agent-1", "available_agents", "same content")
	require.NoError(t, err)
	assert.False(t, result.Wrote)
	assert.Equal(t, 0, rt.updateCalls)
}

func TestReplaceBlockTruncatesOversizedContent(t *testing.T) {
	rt := newFakeRuntime()
	m := New(rt)

	huge := make([]byte, 10000)
	for i := range huge {
		huge[i] = 'x'
	}

	result, err := m.ReplaceBlock(context.Background(), "agent-1", "available_tools", string(huge))
	require.NoError(t, err)
	created := rt.blocksByID[result.BlockID]
	assert.LessOrEqual(t, len(created.Value), 4800)
}
