package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/crossarb/internal/engine"
)

// Engine is the part of the poll loop the admin API reads and controls.
type Engine interface {
	Status() engine.Status
	RequestReset() bool
}

// StatusHandler serves engine status and the breaker reset.
type StatusHandler struct {
	engine Engine
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler over e.
func NewStatusHandler(e Engine, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{engine: e, logger: logger.With(slog.String("handler", "status"))}
}

// GetStatus responds with breaker, portfolio and loop state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Status())
}

// ResetBreaker queues a manual breaker reset for the poll loop. It answers
// 409 when the breaker is closed or a reset is already queued.
// POST /api/breaker/reset
func (h *StatusHandler) ResetBreaker(w http.ResponseWriter, r *http.Request) {
	st := h.engine.Status()
	if !st.Breaker.Open() {
		writeError(w, http.StatusConflict, "breaker is not open")
		return
	}
	if !h.engine.RequestReset() {
		writeError(w, http.StatusConflict, "reset already pending")
		return
	}
	h.logger.WarnContext(r.Context(), "breaker reset requested",
		slog.String("remote_addr", r.RemoteAddr),
		slog.String("halt_reason", st.Breaker.HaltReason),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset queued"})
}
