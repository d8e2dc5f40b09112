package httpapi

import (
	"context"
	"net/http"
	"time"

	"credit_audit/internal/utils"
)

type healthResponse struct {
	Status     string `json:"status"`
	Database   string `json:"database"`
	Redis      string `json:"redis"`
	QueueDepth int    `json:"queue_depth"`
}

// handleHealth reports database and redis reachability plus the ingest
// queue backlog. Redis trouble degrades the answer but keeps it 200:
// the synchronous insert path works without it.
func (deps *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	health := healthResponse{Status: "ok", Database: "ok", Redis: "ok"}
	code := http.StatusOK

	if err := deps.DB.Health(ctx); err != nil {
		health.Status = "unavailable"
		health.Database = err.Error()
		code = http.StatusServiceUnavailable
	}

	if err := deps.Redis.Health(ctx); err != nil {
		health.Redis = err.Error()
		if health.Status == "ok" {
			health.Status = "degraded"
		}
	}

	if depth, err := deps.Worker.QueueLength(ctx); err == nil {
		health.QueueDepth = depth
		deps.Metrics.SetQueueDepth(depth)
	}

	utils.RespondWithJSON(w, code, health)
}
