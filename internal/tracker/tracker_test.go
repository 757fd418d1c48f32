package tracker

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObserveFirstSightingOnly(t *testing.T) {
	trk := New()

	assert.True(t, trk.Observe("agent-1"))
	assert.False(t, trk.Observe("agent-1"))
	assert.False(t, trk.Observe("agent-1"))

	assert.True(t, trk.Observe("agent-2"))
}

func TestObserveConcurrentSameAgentSeesExactlyOneTrue(t *testing.T) {
	trk := New()

	var wg sync.WaitGroup
	var mu sync.Mutex
	trueCount := 0

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if trk.Observe("agent-race") {
				mu.Lock()
				trueCount++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, trueCount)
}

func TestReset(t *testing.T) {
	trk := New()
	trk.Observe("agent-1")
	trk.Observe("agent-2")

	count, _ := trk.Status()
	assert.Equal(t, 2, count)

	trk.Reset()
	count, ids := trk.Status()
	assert.Equal(t, 0, count)
	assert.Empty(t, ids)

	assert.True(t, trk.Observe("agent-1"))
}

func TestStatusReturnsAllObservedIDs(t *testing.T) {
	trk := New()
	trk.Observe("agent-1")
	trk.Observe("agent-2")
	trk.Observe("agent-3")

	count, ids := trk.Status()
	assert.Equal(t, 3, count)
	assert.ElementsMatch(t, []string{"agent-1", "agent-2", "agent-3"}, ids)
}
