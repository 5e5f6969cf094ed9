package orchestrator

import (
	"context"
	"log/slog"

	"github.com/kiranshivaraju/lifeledger/pkg/models"
)

// AgentHealth reports one registered agent type.
type AgentHealth struct {
	Registered  bool   `json:"registered"`
	JobsPending int    `json:"jobs_pending"`
	Error       string `json:"error,omitempty"`
}

// Health is the result of HealthCheck.
type Health struct {
	Healthy bool                             `json:"healthy"`
	Agents  map[models.AgentType]AgentHealth `json:"agents"`
}

// HealthCheck counts pending and ready jobs for every registered agent
// type. A failed count or an invalid agent config marks the whole report
// unhealthy; the remaining types are still checked.
func (o *Orchestrator) HealthCheck(ctx context.Context) Health {
	h := Health{Healthy: true, Agents: make(map[models.AgentType]AgentHealth)}

	for _, t := range o.registeredTypes() {
		ah := AgentHealth{Registered: true}

		if reg := o.registration(t); reg != nil && reg.cfgErr != nil {
			ah.Error = reg.cfgErr.Error()
			h.Healthy = false
		}

		n, err := o.store.CountPendingReady(ctx, t)
		if err != nil {
			slog.Warn("health check count failed", "agent_type", t, "error", err)
			ah.Error = err.Error()
			h.Healthy = false
		} else {
			ah.JobsPending = n
		}

		h.Agents[t] = ah
	}
	return h
}
