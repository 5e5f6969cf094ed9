package handler

import (
	"net/http"
	"strconv"

	"github.com/kiranshivaraju/lifeledger/internal/api/response"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// NewListLogsHandler returns an http.HandlerFunc for
// GET /api/v1/logs?agent_type=&level=&limit=.
func NewListLogsHandler(svc LogReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		level := q.Get("level")
		if level != "" && !models.ValidLogLevel(level) {
			response.BadRequest(w, "level must be one of debug, info, warn, error")
			return
		}

		limit := defaultLogLimit
		if v := q.Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 || n > maxLogLimit {
				response.BadRequest(w, "limit must be an integer between 1 and 1000")
				return
			}
			limit = n
		}

		logs, err := svc.GetLogs(r.Context(), models.LogFilter{
			AgentType: q.Get("agent_type"),
			Level:     level,
			Limit:     limit,
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}

		response.Collection(w, logs, response.ListMeta{Limit: limit, Count: len(logs)})
	}
}
