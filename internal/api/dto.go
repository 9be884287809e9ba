package api

import (
	"time"

	"github.com/starford/notebundle/internal/noteservice"
)

// OpenSessionRequest opens an existing package or, with Create, makes a
// new one holding Text.
type OpenSessionRequest struct {
	Path   string `json:"path"`
	Create bool   `json:"create,omitempty"`
	Text   string `json:"text,omitempty"`
}

// MoveDocumentRequest names the new library path of a package.
type MoveDocumentRequest struct {
	Path string `json:"path"`
}

// UpdateTextRequest replaces a session's text.
type UpdateTextRequest struct {
	Text string `json:"text"`
}

// SessionResponse describes an open session.
type SessionResponse struct {
	ID          string                       `json:"id"`
	Path        string                       `json:"path"`
	State       string                       `json:"state"`
	Text        string                       `json:"text"`
	Attachments []noteservice.AttachmentInfo `json:"attachments"`
	OpenedAt    time.Time                    `json:"opened_at"`
}

// DocumentListResponse wraps paginated document listings.
type DocumentListResponse struct {
	Documents []noteservice.DocumentListItem `json:"documents"`
	Total     int                            `json:"total"`
}

// SearchResult is a single search hit in the API response.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// AttachmentUploadResponse is returned after a successful attachment upload.
type AttachmentUploadResponse struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ActionResponse tells the client how to open an attachment.
type ActionResponse struct {
	Action string  `json:"action"`
	Path   string  `json:"path,omitempty"`
	Lat    float64 `json:"lat,omitempty"`
	Long   float64 `json:"long,omitempty"`
}

func actionResponse(a noteservice.OpenAction) ActionResponse {
	switch a := a.(type) {
	case noteservice.OpenLocation:
		return ActionResponse{Action: "open_location", Lat: a.Lat, Long: a.Long}
	case noteservice.OpenExternally:
		return ActionResponse{Action: "open_externally", Path: a.Path}
	}
	return ActionResponse{}
}

func sessionResponse(s *Session) (SessionResponse, error) {
	text, err := s.Doc.Text()
	if err != nil {
		return SessionResponse{}, err
	}
	atts := s.Doc.Attachments()
	if atts == nil {
		atts = []noteservice.AttachmentInfo{}
	}
	return SessionResponse{
		ID:          s.ID,
		Path:        s.Path,
		State:       s.Doc.State().String(),
		Text:        string(text),
		Attachments: atts,
		OpenedAt:    s.Opened,
	}, nil
}
