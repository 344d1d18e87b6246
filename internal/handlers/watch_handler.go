package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"fluxboard/internal/service"
)

// WatchHandler exposes supervisor control over HTTP. All process-level
// serialization lives in the supervisor; handlers are thin
// pass-throughs.
type WatchHandler struct {
	sup *service.Supervisor
}

func NewWatchHandler(sup *service.Supervisor) *WatchHandler {
	return &WatchHandler{sup: sup}
}

type controlResponse struct {
	Status string `json:"status"`
	Pid    int    `json:"pid,omitempty"`
}

func (h *WatchHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sup.Status())
}

func (h *WatchHandler) Start(w http.ResponseWriter, r *http.Request) {
	pid, err := h.sup.Start()
	if err != nil {
		if errors.Is(err, service.ErrWorkerAlreadyRunning) {
			writeError(w, http.StatusConflict, err, "worker already running")
			return
		}
		writeError(w, http.StatusInternalServerError, err, "failed to start worker")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: "started", Pid: pid})
}

func (h *WatchHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if err := h.sup.Stop(0); err != nil {
		if errors.Is(err, service.ErrWorkerNotRunning) {
			writeError(w, http.StatusConflict, err, "worker not running")
			return
		}
		writeError(w, http.StatusInternalServerError, err, "failed to stop worker")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: "stopped"})
}

func (h *WatchHandler) Restart(w http.ResponseWriter, r *http.Request) {
	pid, err := h.sup.Restart()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err, "failed to restart worker")
		return
	}
	writeJSON(w, http.StatusOK, controlResponse{Status: "restarted", Pid: pid})
}

// Logs returns recent supervisor and worker-output log entries.
func (h *WatchHandler) Logs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	writeJSON(w, http.StatusOK, h.sup.Logs(limit))
}
