package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// healthTimeout bounds the storage ping so a wedged database cannot hang the
// health endpoint.
const healthTimeout = 2 * time.Second

// Pinger is anything that can report whether its backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type healthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthHandler reports storage reachability for load balancers and
// operators.
type HealthHandler struct {
	store  Pinger
	logger *slog.Logger
}

func NewHealthHandler(store Pinger, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{store: store, logger: logger}
}

// HandleHealth pings the store.
//
// HTTP: GET /api/health
// RESPONSE: 200 {"status":"up"} or 503 {"status":"down","error":"..."}
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{
			Status: "down",
			Error:  "storage unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "up"})
}
