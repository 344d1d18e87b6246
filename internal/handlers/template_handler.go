package handlers

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"fluxboard/internal/models"
	"fluxboard/internal/service"
)

// PageData feeds the dashboard template. The change table itself is
// rendered client-side from /api/changes/json; only the chrome is
// server-rendered.
type PageData struct {
	Title           string
	PageTitle       string
	RefreshInterval int // seconds between dashboard polls
	Watch           models.WatchStatus
}

type TemplateHandler struct {
	templates       *template.Template
	sup             *service.Supervisor
	refreshInterval int
	logger          *slog.Logger
}

func NewTemplateHandler(templatesFS fs.FS, sup *service.Supervisor, refreshInterval int, logger *slog.Logger) (*TemplateHandler, error) {
	tmpl, err := template.ParseFS(templatesFS, "*.html")
	if err != nil {
		return nil, err
	}

	return &TemplateHandler{
		templates:       tmpl,
		sup:             sup,
		refreshInterval: refreshInterval,
		logger:          logger,
	}, nil
}

func (th *TemplateHandler) ServeTemplate(templateName, pageTitle string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := PageData{
			Title:           "Fluxboard - " + pageTitle,
			PageTitle:       pageTitle,
			RefreshInterval: th.refreshInterval,
			Watch:           th.sup.Status(),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := th.templates.ExecuteTemplate(w, templateName+".html", data); err != nil {
			th.logger.Error("failed to execute template", "template", templateName, "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		}
	}
}
