package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/lifeledger/internal/api/response"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

const (
	TaskClassifyEntry     = "classify_entry"
	TaskDetectCommitments = "detect_commitments"
)

// createEntryRequest is the richer client shape. Only the fields of
// models.JournalEntryPayload reach the agents.
type createEntryRequest struct {
	EntryID string            `json:"entry_id"`
	UserID  string            `json:"user_id"`
	Content string            `json:"content"`
	Date    string            `json:"date"`
	Tags    []models.EntryTag `json:"tags"`
	Title   string            `json:"title"`
	Mood    string            `json:"mood"`
}

type createEntryResponse struct {
	EntryID string                          `json:"entry_id"`
	Jobs    map[models.AgentType]uuid.UUID `json:"jobs"`
}

// NewCreateEntryHandler returns an http.HandlerFunc for POST /api/v1/entries.
// It reduces the entry to a JournalEntryPayload and enqueues one job per
// specialist agent.
func NewCreateEntryHandler(svc JobCreator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEntryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.BadRequest(w, "Invalid JSON body")
			return
		}

		if req.UserID == "" {
			response.BadRequest(w, "user_id is required")
			return
		}
		if strings.TrimSpace(req.Content) == "" {
			response.BadRequest(w, "content is required")
			return
		}
		if req.Date != "" {
			if _, err := time.Parse(time.DateOnly, req.Date); err != nil {
				response.BadRequest(w, "date must be YYYY-MM-DD")
				return
			}
		}
		for _, tag := range req.Tags {
			if tag.AreaCode == "" {
				response.BadRequest(w, "every tag needs an area_code")
				return
			}
			if tag.Strength != nil && (*tag.Strength < 0 || *tag.Strength > 1) {
				response.BadRequest(w, "tag strength must be within [0,1]")
				return
			}
		}

		if req.EntryID == "" {
			req.EntryID = uuid.NewString()
		}

		payload, err := json.Marshal(models.JournalEntryPayload{
			EntryID: req.EntryID,
			UserID:  req.UserID,
			Content: req.Content,
			Date:    req.Date,
			Tags:    req.Tags,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		tasks := []struct {
			agent models.AgentType
			task  string
		}{
			{models.AgentEntryClassifier, TaskClassifyEntry},
			{models.AgentCommitmentDetector, TaskDetectCommitments},
		}

		resp := createEntryResponse{EntryID: req.EntryID, Jobs: make(map[models.AgentType]uuid.UUID, len(tasks))}
		for _, t := range tasks {
			id, err := svc.CreateJob(r.Context(), models.NewJob{
				AgentType: t.agent,
				Task:      t.task,
				Payload:   payload,
			})
			if err != nil {
				writeServiceError(w, r, err)
				return
			}
			resp.Jobs[t.agent] = id
		}

		response.Accepted(w, resp)
	}
}
