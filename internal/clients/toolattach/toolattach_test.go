package toolattach

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oculair/context-enrichment-webhook/internal/apperrors"
)

func TestNewRejectsInvalidBaseURL(t *testing.T) {
	_, err := New("")
	require.Error(t, err)
	var cfgErr *apperrors.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestAttachSendsRequestAndDecodesResult(t *testing.T) {
	var gotReq Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tools/attach", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		json.NewEncoder(w).Encode(Result{
			Success:   true,
			Attached:  []AttachedTool{{ToolID: "t1", Name: "search_web", Score: 88}},
			Preserved: []string{"*"},
		})
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	result, err := client.Attach(context.Background(), Request{
		Query:     "search the web",
		AgentID:   "agent-1",
		KeepTools: []string{"*"},
		Limit:     3,
		MinScore:  70,
	})
	require.NoError(t, err)
	assert.Equal(t, "agent-1", gotReq.AgentID)
	assert.True(t, result.Success)
	require.Len(t, result.Attached, 1)
	assert.Equal(t, "search_web", result.Attached[0].Name)
}

func TestAttachFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, err = client.Attach(context.Background(), Request{Query: "q", AgentID: "agent-1"})
	require.Error(t, err)
	var upstreamErr *apperrors.UpstreamUnavailableError
	assert.ErrorAs(t, err, &upstreamErr)
}

func TestAttachDoesNotRetry(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	_, _ = client.Attach(context.Background(), Request{Query: "q", AgentID: "agent-1"})
	assert.Equal(t, 1, attempts, "tool-attachment client must report the first failure without retrying")
}

func TestBuildKeepToolsOrderAndDedup(t *testing.T) {
	keep := BuildKeepTools("util-id", []string{"protected-1", "util-id", "protected-2"})
	assert.Equal(t, []string{WildcardKeepAll, "util-id", "protected-1", "protected-2"}, keep)
}

func TestBuildKeepToolsSkipsEmptyUtilityID(t *testing.T) {
	keep := BuildKeepTools("", []string{"protected-1"})
	assert.Equal(t, []string{WildcardKeepAll, "protected-1"}, keep)
}
