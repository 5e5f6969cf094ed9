// Package handler holds the HTTP handlers for the orchestrator API. Each
// constructor takes the narrow interface it needs so handlers can be tested
// against fakes.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/api/response"
	"github.com/kiranshivaraju/lifeledger/internal/orchestrator"
	"github.com/kiranshivaraju/lifeledger/internal/store"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// JobCreator enqueues jobs.
type JobCreator interface {
	CreateJob(ctx context.Context, job models.NewJob) (uuid.UUID, error)
}

// JobService is the job surface of the orchestrator.
type JobService interface {
	JobCreator
	GetJobStatus(ctx context.Context, id uuid.UUID) (*models.Job, error)
	CancelJob(ctx context.Context, id uuid.UUID) error
}

// LogReader lists agent logs.
type LogReader interface {
	GetLogs(ctx context.Context, filter models.LogFilter) ([]*models.LogEntry, error)
}

// HealthChecker reports per-agent queue health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) orchestrator.Health
}

// Pinger is a backing service with a liveness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// writeServiceError maps orchestrator and store errors onto the API's
// error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, response.CodeNotFound, "Job not found", nil)
	case errors.Is(err, store.ErrInvalidTransition):
		response.Error(w, http.StatusConflict, response.CodeInvalidTransition, err.Error(), nil)
	case errors.Is(err, orchestrator.ErrUnknownAgentType):
		response.BadRequest(w, err.Error())
	default:
		reqID := chimw.GetReqID(r.Context())
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", reqID, "error", err)
		response.Internal(w, reqID)
	}
}
