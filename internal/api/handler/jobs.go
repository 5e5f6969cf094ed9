package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/api/response"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

type createJobRequest struct {
	AgentType       string          `json:"agent_type"`
	Task            string          `json:"task"`
	Intent          string          `json:"intent"`
	Payload         json.RawMessage `json:"payload"`
	Dependencies    []uuid.UUID     `json:"dependencies"`
	RunAt           string          `json:"run_at"`
	TTLSec          int             `json:"ttl_sec"`
	MaxAttempts     int             `json:"max_attempts"`
	BackoffStrategy string          `json:"backoff_strategy"`
}

type createJobResponse struct {
	MessageID uuid.UUID `json:"message_id"`
}

// NewCreateJobHandler returns an http.HandlerFunc for POST /api/v1/jobs.
func NewCreateJobHandler(svc JobCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createJobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}

		if req.AgentType == "" {
			response.BadRequest(w, "agent_type is required")
			return
		}
		if req.Task == "" {
			response.BadRequest(w, "task is required")
			return
		}
		if req.TTLSec < 0 || req.MaxAttempts < 0 {
			response.BadRequest(w, "ttl_sec and max_attempts must not be negative")
			return
		}

		var runAt time.Time
		if req.RunAt != "" {
			t, err := time.Parse(time.RFC3339, req.RunAt)
			if err != nil {
				response.BadRequest(w, "run_at must be a valid RFC3339 timestamp")
				return
			}
			runAt = t
		}

		id, err := svc.CreateJob(r.Context(), models.NewJob{
			AgentType:       models.AgentType(req.AgentType),
			Task:            req.Task,
			Intent:          req.Intent,
			Payload:         req.Payload,
			Dependencies:    req.Dependencies,
			RunAt:           runAt,
			TTLSec:          req.TTLSec,
			MaxAttempts:     req.MaxAttempts,
			BackoffStrategy: req.BackoffStrategy,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Created(w, createJobResponse{MessageID: id})
	}
}

// NewGetJobHandler returns an http.HandlerFunc for GET /api/v1/jobs/{jobID}.
func NewGetJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		job, err := svc.GetJobStatus(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.JSON(w, job)
	}
}

// NewCancelJobHandler returns an http.HandlerFunc for DELETE /api/v1/jobs/{jobID}.
func NewCancelJobHandler(svc JobService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := jobID(w, r)
		if !ok {
			return
		}

		if err := svc.CancelJob(r.Context(), id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		response.NoContent(w)
	}
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.BadRequest(w, "jobID must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
