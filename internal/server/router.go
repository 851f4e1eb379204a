// Package server exposes the workspace over a JSON HTTP API.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"formgenie/internal/app"
)

type Config struct {
	Workspace   *app.Workspace
	Logger      zerolog.Logger
	HealthPath  string
	MetricsPath string
	// Metrics serves the scrape endpoint; promhttp.Handler() when nil.
	Metrics http.Handler
}

func New(cfg Config) *chi.Mux {
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/healthz"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.Metrics == nil {
		cfg.Metrics = promhttp.Handler()
	}
	logger := cfg.Logger.With().Str("component", "http").Logger()
	h := &handler{ws: cfg.Workspace, logger: logger}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(Logger(logger))

	r.Get(cfg.HealthPath, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle(cfg.MetricsPath, cfg.Metrics)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Put("/tab", h.SetTab)
		r.Post("/session/login", h.Login)
		r.Post("/session/logout", h.Logout)

		// Uploads
		r.Post("/uploads", h.Upload)
		r.Post("/uploads/confirm", h.ConfirmUpload)
		r.Delete("/uploads/pending", h.CancelUpload)
		r.Post("/drive/import", h.ImportFromDrive)

		// Editor
		r.Get("/form", h.GetForm)
		r.Put("/form/title", h.SetTitle)
		r.Put("/form/description", h.SetDescription)
		r.Post("/form/refine", h.Refine)
		r.Post("/form/questions", h.AddQuestion)
		r.Patch("/form/questions/{questionId}", h.UpdateQuestion)
		r.Delete("/form/questions/{questionId}", h.RemoveQuestion)
		r.Post("/form/questions/{questionId}/move", h.MoveQuestion)
		r.Post("/form/questions/{questionId}/options", h.AddOption)
		r.Put("/form/questions/{questionId}/options/{index}", h.EditOption)
		r.Delete("/form/questions/{questionId}/options/{index}", h.RemoveOption)
		r.Get("/form/script", h.DownloadScript)
		r.Post("/form/script/drive", h.SaveScriptToDrive)

		// History
		r.Get("/history", h.ListHistory)
		r.Delete("/history", h.ClearHistory)
		r.Post("/history/{historyId}/open", h.OpenSaved)
		r.Delete("/history/{historyId}", h.RemoveSaved)

		// Assistant
		r.Get("/assistant", h.AssistantState)
		r.Post("/assistant/messages", h.SendAssistant)
		r.Post("/assistant/skip", h.SkipField)
		r.Post("/assistant/sessions", h.NewAssistantSession)
		r.Post("/assistant/sessions/{sessionId}/load", h.LoadAssistantSession)
		r.Delete("/assistant/sessions/{sessionId}", h.DeleteAssistantSession)

		// Document chat
		r.Get("/docchat", h.DocChatState)
		r.Post("/docchat/messages", h.SendDocChat)
		r.Post("/docchat/sessions", h.NewDocChatSession)
		r.Post("/docchat/sessions/{sessionId}/load", h.LoadDocChatSession)
		r.Delete("/docchat/sessions/{sessionId}", h.DeleteDocChatSession)
		r.Get("/docchat/questionnaire.csv", h.DownloadQuestionnaire)
		r.Post("/docchat/questionnaire/transfer", h.TransferQuestionnaire)

		// Search
		r.Post("/search", h.Search)
		r.Get("/search", h.SearchResults)
		r.Post("/search/sources/{index}/form", h.SearchToForm)
		r.Post("/search/sources/{index}/draft", h.DraftFromSearch)
	})

	return r
}
