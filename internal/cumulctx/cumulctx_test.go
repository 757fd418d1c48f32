package cumulctx

import (
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

func TestAppend_EmptyNewIsNoop(t *testing.T) {
	assert.Equal(t, "existing", Append("existing", "   ", fixedNow))
	assert.Equal(t, "existing", Append("existing", "", fixedNow))
}

func TestAppend_EmptyExistingReturnsNew(t *testing.T) {
	assert.Equal(t, "hello", Append("", "hello", fixedNow))
	assert.Equal(t, "hello", Append("   ", "hello", fixedNow))
}

func TestAppend_DistinctEntriesBothPresent(t *testing.T) {
	first := Append("", "Relevant Entities from Knowledge Graph:\nNode: N1\nSummary: S1", fixedNow)
	second := Append(first, "Relevant Entities from Knowledge Graph:\nNode: N2\nSummary: S2", fixedNow.Add(time.Minute))

	assert.Contains(t, second, "N1")
	assert.Contains(t, second, "N2")
	assert.LessOrEqual(t, len(second), MaxLength)
	assert.Contains(t, second, "--- CONTEXT ENTRY (")
}

func TestAppend_DedupSkipsIdenticalEntry(t *testing.T) {
	first := Append("", "Node: N\nSummary: S", fixedNow)
	second := Append(first, "Node: N\nSummary: S", fixedNow.Add(time.Minute))

	assert.Equal(t, first, second)
}

func TestAppend_Idempotent(t *testing.T) {
	once := Append("existing context", "new stuff here", fixedNow)
	twice := Append(once, "new stuff here", fixedNow.Add(time.Second))
	assert.Equal(t, once, twice)
}

func TestAppend_SingleEntryExactBudgetKeptVerbatim(t *testing.T) {
	content := strings.Repeat("a", MaxLength)
	result := Append("", content, fixedNow)
	assert.Equal(t, content, result)
	assert.NotContains(t, result, Marker)
}

func TestAppend_SingleEntryOverBudgetTruncated(t *testing.T) {
	content := strings.Repeat("a", MaxLength+1)
	result := Append("", content, fixedNow)

	assert.LessOrEqual(t, len(result), MaxLength)
	assert.True(t, strings.HasPrefix(result, Marker))
	assert.True(t, strings.HasSuffix(result, "[CONTENT TRUNCATED]"))
}

func TestAppend_NeverExceedsMaxLength(t *testing.T) {
	existing := ""
	for i := 0; i < 40; i++ {
		entryText := strings.Repeat("x", 300) + time.Now().UTC().String()
		existing = Append(existing, entryText, fixedNow.Add(time.Duration(i)*time.Minute))
		require.LessOrEqual(t, len(existing), MaxLength)
	}
}

func TestAppend_TruncationDropsOldestFirst(t *testing.T) {
	existing := ""
	var lastEntry string
	for i := 0; i < 40; i++ {
		lastEntry = "entry payload number " + strconv.Itoa(i) + " " + strings.Repeat("z", 200)
		existing = Append(existing, lastEntry, fixedNow.Add(time.Duration(i)*time.Minute))
	}

	require.LessOrEqual(t, len(existing), MaxLength)
	assert.True(t, strings.HasPrefix(existing, Marker))
	assert.Contains(t, existing, lastEntry)
}

func TestSimilar_ExactMatch(t *testing.T) {
	assert.True(t, Similar("hello world", "hello world"))
}

func TestSimilar_ContainmentAboveThreshold(t *testing.T) {
	long := "this is a fairly long piece of context text right here"
	short := long[:int(float64(len(long))*0.95)]
	assert.True(t, Similar(long, short))
}

func TestSimilar_ShortSubstringBelowThresholdNotSimilar(t *testing.T) {
	long := "this is a fairly long piece of context text describing something entirely different"
	short := "this is a"
	assert.False(t, Similar(long, short))
}

func TestSimilar_DistinguishingTagsOverridesOverlap(t *testing.T) {
	a := "Relevant Entities from Knowledge Graph:\nNode: Weather\nSummary: It rains a lot in the mountains during spring"
	b := "Relevant Entities from Knowledge Graph:\nNode: Finance\nSummary: It rains a lot in the mountains during spring"
	assert.False(t, Similar(a, b))
}

func TestSimilar_EmptyNeverSimilar(t *testing.T) {
	assert.False(t, Similar("", "something"))
	assert.False(t, Similar("something", ""))
}
