package api

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
)

const maxUploadBytes = 50 << 20 // 50 MB

// UploadAttachment handles POST /sessions/{id}/attachments
// (multipart/form-data, field "file"). The stored name may differ from the
// uploaded one when it collides with an existing attachment.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read upload"))
		return
	}

	name, err := sess.Doc.AddAttachmentBytes(filepath.Base(header.Filename), data)
	if err != nil {
		writeError(w, "upload attachment", err)
		return
	}

	writeJSON(w, http.StatusCreated, AttachmentUploadResponse{Name: name, Size: int64(len(data))})
}

// AttachmentContent handles GET /sessions/{id}/attachments/{name}.
func (h *Handler) AttachmentContent(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "name")
	data, err := sess.Doc.AttachmentBytes(name)
	if err != nil {
		writeError(w, "attachment content", err)
		return
	}
	ctype := mime.TypeByExtension(filepath.Ext(name))
	if ctype == "" {
		ctype = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": name}))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, bytes.NewReader(data))
}
