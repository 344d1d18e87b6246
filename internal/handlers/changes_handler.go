package handlers

import (
	"errors"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/dustin/go-humanize"

	"fluxboard/internal/datafile"
	"fluxboard/internal/metrics"
)

// ChangesHandler serves the worker's change file, read fresh on every
// request. The worker may rewrite the file between requests, so nothing
// is cached.
type ChangesHandler struct {
	dataFile string
	logger   *slog.Logger
}

func NewChangesHandler(dataFile string, logger *slog.Logger) *ChangesHandler {
	return &ChangesHandler{dataFile: dataFile, logger: logger}
}

// GetCSV streams the change file verbatim.
func (h *ChangesHandler) GetCSV(w http.ResponseWriter, r *http.Request) {
	f, err := os.Open(h.dataFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.DataFileReads.WithLabelValues("missing").Inc()
			writeError(w, http.StatusNotFound, err, "change file not found")
			return
		}
		metrics.DataFileReads.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, err, "failed to open change file")
		return
	}
	defer f.Close()

	if fi, statErr := f.Stat(); statErr == nil {
		h.logger.Debug("serving change file", "size", humanize.Bytes(uint64(fi.Size())))
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="changes.csv"`)
	if _, err := io.Copy(w, f); err != nil {
		h.logger.Warn("failed to stream change file", "error", err)
		return
	}
	metrics.DataFileReads.WithLabelValues("ok").Inc()
}

// GetJSON parses the change file and returns its rows as records, with
// explicit nulls for missing cells.
func (h *ChangesHandler) GetJSON(w http.ResponseWriter, r *http.Request) {
	records, err := datafile.ReadRecords(h.dataFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			metrics.DataFileReads.WithLabelValues("missing").Inc()
			writeError(w, http.StatusNotFound, err, "change file not found")
			return
		}
		metrics.DataFileReads.WithLabelValues("parse_error").Inc()
		h.logger.Error("failed to parse change file", "error", err)
		writeError(w, http.StatusInternalServerError, err, "failed to parse change file")
		return
	}

	metrics.DataFileReads.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, records)
}
