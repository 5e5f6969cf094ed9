package handler

import (
	"net/http"

	"github.com/kiranshivaraju/lifeledger/internal/api/response"
	"github.com/kiranshivaraju/lifeledger/internal/orchestrator"
	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

type healthResponse struct {
	Status   string                                        `json:"status"`
	Services map[string]string                             `json:"services"`
	Agents   map[models.AgentType]orchestrator.AgentHealth `json:"agents"`
}

// NewHealthHandler returns an http.HandlerFunc for GET /api/v1/health.
// Nil services are skipped.
func NewHealthHandler(checker HealthChecker, services map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string, len(services))
		degraded := false
		for name, svc := range services {
			if svc == nil {
				continue
			}
			checks[name] = "ok"
			if err := svc.Ping(r.Context()); err != nil {
				checks[name] = "degraded"
				degraded = true
			}
		}

		h := checker.HealthCheck(r.Context())
		if !h.Healthy {
			degraded = true
		}

		body := healthResponse{Status: "ok", Services: checks, Agents: h.Agents}
		if degraded {
			body.Status = "degraded"
			response.Error(w, http.StatusServiceUnavailable, response.CodeDegraded,
				"One or more services degraded", body)
			return
		}
		response.JSON(w, body)
	}
}
