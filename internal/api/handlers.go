package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/starford/notebundle/internal/noteservice"
	"github.com/starford/notebundle/internal/richtext"
)

// Handler holds API route handlers.
type Handler struct {
	svc      *noteservice.Service
	sessions *Sessions
	logger   *slog.Logger
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service, sessions *Sessions, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, logger: logger}
}

// documentPath extracts the package path from the URL (everything after
// /documents/).
func documentPath(r *http.Request) string {
	return strings.TrimPrefix(chi.URLParam(r, "*"), "/")
}

// ListDocuments handles GET /documents.
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListDocuments(r.Context(), limit, offset, q.Get("tag"), q.Get("sort"))
	if err != nil {
		writeError(w, "list documents", err)
		return
	}
	writeJSON(w, http.StatusOK, DocumentListResponse{Documents: items, Total: total})
}

// GetDocument handles GET /documents/*.
func (h *Handler) GetDocument(w http.ResponseWriter, r *http.Request) {
	path := documentPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.svc.GetDocument(r.Context(), path)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// MoveDocument handles PATCH /documents/* and returns the document at its
// new path.
func (h *Handler) MoveDocument(w http.ResponseWriter, r *http.Request) {
	from := documentPath(r)
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req MoveDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if from == "" || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.MoveDocument(r.Context(), from, req.Path); err != nil {
		writeError(w, "move document", err)
		return
	}
	h.logger.Info("document moved", slog.String("from", from), slog.String("to", req.Path))
	doc, err := h.svc.GetDocument(r.Context(), req.Path)
	if err != nil {
		writeError(w, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// Search handles GET /search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err)
		return
	}
	out := SearchResponse{Results: make([]SearchResult, len(results))}
	for i, res := range results {
		out.Results[i] = SearchResult{Path: res.Path, Title: res.Title, Snippet: res.Snippet}
	}
	writeJSON(w, http.StatusOK, out)
}

// Locations handles GET /locations.
func (h *Handler) Locations(w http.ResponseWriter, r *http.Request) {
	locs, err := h.svc.Locations(r.Context())
	if err != nil {
		writeError(w, "locations", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"locations": locs})
}

// OpenSession handles POST /sessions.
func (h *Handler) OpenSession(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req OpenSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}

	var (
		doc *noteservice.Document
		err error
	)
	if req.Create {
		doc, err = h.svc.CreateDocument(r.Context(), req.Path, richtext.Text(req.Text))
	} else {
		doc, err = h.svc.OpenDocument(r.Context(), req.Path)
	}
	if err != nil {
		writeError(w, "open session", err)
		return
	}

	sess := h.sessions.Add(req.Path, doc)
	h.logger.Info("session opened", slog.String("session", sess.ID), slog.String("path", req.Path))
	h.writeSession(w, http.StatusCreated, sess)
}

// GetSession handles GET /sessions/{id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	h.writeSession(w, http.StatusOK, sess)
}

// UpdateText handles PUT /sessions/{id}/text.
func (h *Handler) UpdateText(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req UpdateTextRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := sess.Doc.SetText(richtext.Text(req.Text)); err != nil {
		writeError(w, "update text", err)
		return
	}
	h.writeSession(w, http.StatusOK, sess)
}

// SaveSession handles POST /sessions/{id}/save.
func (h *Handler) SaveSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Doc.SavePackage(r.Context()); err != nil {
		writeError(w, "save session", err)
		return
	}
	if err := h.svc.Reindex(r.Context(), sess.Path); err != nil {
		h.logger.Warn("reindex after save failed", slog.String("path", sess.Path), slog.String("error", err.Error()))
	}
	h.writeSession(w, http.StatusOK, sess)
}

// CloseSession handles DELETE /sessions/{id}.
func (h *Handler) CloseSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(chi.URLParam(r, "id")); err != nil {
		writeError(w, "close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListAttachments handles GET /sessions/{id}/attachments.
func (h *Handler) ListAttachments(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	atts := sess.Doc.Attachments()
	if atts == nil {
		atts = []noteservice.AttachmentInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"attachments": atts})
}

// DeleteAttachment handles DELETE /sessions/{id}/attachments/{name}.
func (h *Handler) DeleteAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := sess.Doc.RemoveAttachment(chi.URLParam(r, "name")); err != nil {
		writeError(w, "delete attachment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AttachmentAction handles GET /sessions/{id}/attachments/{name}/action.
func (h *Handler) AttachmentAction(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	action, err := sess.Doc.ResolveOpenAction(chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "resolve attachment", err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(action))
}

// OpenAttachment handles POST /sessions/{id}/attachments/{name}/open and
// hands the attachment to an application on the server host.
func (h *Handler) OpenAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	action, err := sess.Doc.OpenAttachment(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "open attachment", err)
		return
	}
	writeJSON(w, http.StatusOK, actionResponse(action))
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*Session, bool) {
	sess, err := h.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "session", err)
		return nil, false
	}
	return sess, true
}

func (h *Handler) writeSession(w http.ResponseWriter, status int, sess *Session) {
	resp, err := sessionResponse(sess)
	if err != nil {
		writeError(w, "session", err)
		return
	}
	writeJSON(w, status, resp)
}
