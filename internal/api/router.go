package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/notebundle/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, sessions *Sessions, authEnabled bool, token string, sseHandler http.Handler, logger *slog.Logger) chi.Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	h := NewHandler(svc, sessions, logger)

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	r.Use(AuthMiddleware(authEnabled, token))

	// Catalog.
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)
	r.Patch("/documents/*", h.MoveDocument)
	r.Get("/search", h.Search)
	r.Get("/locations", h.Locations)

	// Editing sessions.
	r.Post("/sessions", h.OpenSession)
	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.CloseSession)
		r.Put("/text", h.UpdateText)
		r.Post("/save", h.SaveSession)
		r.Get("/attachments", h.ListAttachments)
		r.Post("/attachments", h.UploadAttachment)
		r.Get("/attachments/{name}", h.AttachmentContent)
		r.Delete("/attachments/{name}", h.DeleteAttachment)
		r.Get("/attachments/{name}/action", h.AttachmentAction)
		r.Post("/attachments/{name}/open", h.OpenAttachment)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
