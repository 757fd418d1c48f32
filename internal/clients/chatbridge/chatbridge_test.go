package chatbridge

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

func TestNotifyNewAgentSendsExpectedPayload(t *testing.T) {
	var gotBody notifyBody
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/notify", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.NotifyNewAgent(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "agent-1", gotBody.AgentID)
	assert.Equal(t, "new_agent_seen", gotBody.Event)
}

func TestNotifyNewAgentFailsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client, err := New(srv.URL)
	require.NoError(t, err)

	err = client.NotifyNewAgent(context.Background(), "agent-1")
	require.Error(t, err)
	var upstreamErr *apperrors.UpstreamUnavailableError
	assert.ErrorAs(t, err, &upstreamErr)
}
