package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/app"
	"github.com/kiranshivaraju/lifeledger/internal/config"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("REDIS_URL", "")
	cfg, err := config.Load()
	require.NoError(t, err)

	a, err := app.New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, &buf))
	return w
}

func TestHealth_MemoryBackend(t *testing.T) {
	a := newTestApp(t)
	router := newRouter(a)

	w := serve(t, router, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body struct {
		Data struct {
			Status   string            `json:"status"`
			Services map[string]string `json:"services"`
			Agents   map[string]any    `json:"agents"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Data.Status)
	assert.Equal(t, map[string]string{"database": "ok"}, body.Data.Services)
	assert.Len(t, body.Data.Agents, 2)
}

func TestEntryFlowThroughAPI(t *testing.T) {
	a := newTestApp(t)
	router := newRouter(a)

	w := serve(t, router, http.MethodPost, "/api/v1/entries", map[string]any{
		"entry_id": "entry-42",
		"user_id":  "user-1",
		"content":  "I will commit to a weekly Family dinner with the kids.",
		"tags":     []map[string]any{{"area_code": "family"}},
	})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var created struct {
		Data struct {
			Jobs map[string]uuid.UUID `json:"jobs"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Len(t, created.Data.Jobs, 2)

	require.NoError(t, a.Orchestrator.RunOnce(context.Background()))

	for agentType, id := range created.Data.Jobs {
		w := serve(t, router, http.MethodGet, "/api/v1/jobs/"+id.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var job struct {
			Data models.Job `json:"data"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &job))
		assert.Equal(t, models.JobStatusCompleted, job.Data.Status, agentType)
	}

	w = serve(t, router, http.MethodGet, "/api/v1/logs?level=info", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Data []models.LogEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	assert.NotEmpty(t, logs.Data)

	commitments, err := a.Store.ListCommitments(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, commitments, 1)
}

func TestCancelThroughAPI(t *testing.T) {
	a := newTestApp(t)
	router := newRouter(a)

	w := serve(t, router, http.MethodPost, "/api/v1/jobs", map[string]any{
		"agent_type": "CommitmentDetector",
		"task":       "detect_commitments",
		"payload":    map[string]string{"entry_id": "e", "user_id": "u", "content": "nothing to see here"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Data struct {
			MessageID uuid.UUID `json:"message_id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))

	w = serve(t, router, http.MethodDelete, "/api/v1/jobs/"+created.Data.MessageID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(t, router, http.MethodDelete, "/api/v1/jobs/"+created.Data.MessageID.String(), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	router := newRouter(newTestApp(t))
	w := serve(t, router, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
