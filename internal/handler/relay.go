// Package handler contains the HTTP handlers of the marketplace API.
//
// HANDLER RESPONSIBILITIES:
//  1. Parse the incoming request (path params, query, JSON body)
//  2. Call the service with the authenticated member
//  3. Write the response through writeJSON / writeError
//
// Handlers hold no business rules. Every rule lives in internal/service.
package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/sakif/skillswap/internal/relay"
)

// Pinger reports whether a backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler serves the liveness probe and the relay WebSocket.
type SystemHandler struct {
	db     Pinger
	ws     *relay.Server
	logger *slog.Logger
}

func NewSystemHandler(db Pinger, ws *relay.Server, logger *slog.Logger) *SystemHandler {
	return &SystemHandler{db: db, ws: ws, logger: logger}
}

// HandleHealthz: GET /healthz
//
// 200 {"status":"ok"} when the database answers, 503 otherwise.
func (h *SystemHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRelay: GET /ws
//
// Upgrades to a WebSocket bound to the authenticated member. The connection
// identity is always the signed-in member, whatever the frames claim.
func (h *SystemHandler) HandleRelay(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	h.ws.Serve(w, r, user)
}
