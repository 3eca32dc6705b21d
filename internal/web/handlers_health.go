package web

import (
	"context"
	"net/http"
	"time"

	"github.com/JonMunkholm/dataghost/internal/answer"
	"github.com/JonMunkholm/dataghost/internal/core"
)

// healthProbeTimeout bounds the Answer Service probe.
const healthProbeTimeout = 3 * time.Second

// gatewayHealth is the body of GET /health.
type gatewayHealth struct {
	Status        string                   `json:"status"`
	Service       string                   `json:"service"`
	Sessions      int                      `json:"sessions"`
	Ingest        core.IngestStatus `json:"ingest"`
	AnswerService answer.ComponentHealth   `json:"answer_service"`
}

// handleHealth reports gateway liveness and probes the Answer Service.
// The gateway stays "healthy" when it can serve; an unreachable Answer
// Service only degrades it since questions still settle with the fallback.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := gatewayHealth{
		Status:   answer.StatusHealthy,
		Service:  "Data Ghost Gateway",
		Sessions: s.sessions.Len(),
		Ingest:   s.sessions.LimiterStatus(),
	}

	if s.remote == nil {
		resp.AnswerService = answer.ComponentHealth{Status: "unchecked"}
		writeJSON(w, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
	defer cancel()

	remote, err := s.remote.Health(ctx)
	switch {
	case err != nil:
		resp.Status = answer.StatusDegraded
		resp.AnswerService = answer.ComponentHealth{
			Status: answer.StatusUnhealthy,
			Error:  core.MapError(err).Message,
		}
	case remote.Status != answer.StatusHealthy:
		resp.Status = answer.StatusDegraded
		resp.AnswerService = answer.ComponentHealth{Status: remote.Status}
	default:
		resp.AnswerService = answer.ComponentHealth{
			Status:  remote.Status,
			Details: map[string]any{"service": remote.Service, "version": remote.Version},
		}
	}

	writeJSON(w, resp)
}
