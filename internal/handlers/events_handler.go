package handlers

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"fluxboard/internal/datafile"
)

// EventsHandler streams change-file notifications to the dashboard as
// server-sent events, so the page can refresh as soon as the worker
// rewrites the file instead of relying on its poll interval alone.
type EventsHandler struct {
	watcher   *datafile.Watcher
	logger    *slog.Logger
	heartbeat time.Duration
}

func NewEventsHandler(watcher *datafile.Watcher, logger *slog.Logger) *EventsHandler {
	return &EventsHandler{
		watcher:   watcher,
		logger:    logger,
		heartbeat: 30 * time.Second,
	}
}

func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, cancel := h.watcher.Subscribe()
	defer cancel()

	fmt.Fprint(w, "event: ready\ndata: {}\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-h.watcher.Done():
			return
		case <-ch:
			fmt.Fprintf(w, "event: change\ndata: {\"time\":%q}\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}
