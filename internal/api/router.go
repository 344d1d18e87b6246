package api

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fluxboard/internal/config"
	"fluxboard/internal/datafile"
	"fluxboard/internal/handlers"
	"fluxboard/internal/middleware"
	"fluxboard/internal/service"
)

type Router struct {
	*mux.Router
}

func NewRouter(cfg *config.Config, sup *service.Supervisor, watcher *datafile.Watcher, logger *slog.Logger, templatesFS, staticFS fs.FS) (*Router, error) {
	r := mux.NewRouter()

	tmplHandler, err := handlers.NewTemplateHandler(templatesFS, sup, cfg.Data.RefreshInterval, logger)
	if err != nil {
		return nil, err
	}

	changesHandler := handlers.NewChangesHandler(cfg.Data.File, logger)
	watchHandler := handlers.NewWatchHandler(sup)
	eventsHandler := handlers.NewEventsHandler(watcher, logger)

	// Health check endpoints
	r.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)
	r.HandleFunc("/ready", handlers.ReadyCheck).Methods(http.MethodGet)

	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Dashboard
	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/changes_by_concept", http.StatusFound)
	}).Methods(http.MethodGet)
	r.HandleFunc("/changes_by_concept", tmplHandler.ServeTemplate("dashboard", "Changes by Concept")).Methods(http.MethodGet)

	// Serve static files (CSS, JS)
	staticHandler := http.FileServer(http.FS(staticFS))
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", staticHandler))

	// API routes
	apiRouter := r.PathPrefix("/api").Subrouter()
	apiRouter.HandleFunc("/changes/csv", changesHandler.GetCSV).Methods(http.MethodGet)
	apiRouter.HandleFunc("/changes/json", changesHandler.GetJSON).Methods(http.MethodGet)
	apiRouter.HandleFunc("/changes/events", eventsHandler.Stream).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watch/status", watchHandler.Status).Methods(http.MethodGet)
	apiRouter.HandleFunc("/watch/start", watchHandler.Start).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watch/stop", watchHandler.Stop).Methods(http.MethodPost)
	apiRouter.HandleFunc("/watch/restart", watchHandler.Restart).Methods(http.MethodPost)
	apiRouter.HandleFunc("/logs", watchHandler.Logs).Methods(http.MethodGet)

	// Apply middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Logging(logger))

	return &Router{Router: r}, nil
}
