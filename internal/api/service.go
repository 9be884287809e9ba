package api

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/noteservice"
)

// Publisher receives document session events. *sse.Broker implements it.
type Publisher interface {
	PublishSessionEvent(session, kind string, data map[string]any)
}

// Session is an open document addressed by id.
type Session struct {
	ID     string
	Path   string
	Doc    *noteservice.Document
	Opened time.Time

	unsubscribe func()
}

// Sessions is the registry of open document sessions.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
	pub      Publisher
}

// NewSessions creates a registry. pub may be nil.
func NewSessions(pub Publisher) *Sessions {
	return &Sessions{sessions: make(map[string]*Session), pub: pub}
}

// Add registers doc, opened from the library path rel, and returns its
// session.
func (s *Sessions) Add(rel string, doc *noteservice.Document) *Session {
	sess := &Session{ID: uuid.NewString(), Path: rel, Doc: doc, Opened: time.Now()}
	if s.pub != nil {
		sess.unsubscribe = doc.Subscribe(func(c noteservice.Change) {
			s.pub.PublishSessionEvent(sess.ID, string(c.Event), map[string]any{
				"path":        rel,
				"state":       c.State.String(),
				"attachments": c.Attachments,
			})
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.ID] = sess
	return sess
}

// Get returns the session with the given id.
func (s *Sessions) Get(id string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("api: session %q: %w", id, apperr.ErrNotFound)
	}
	return sess, nil
}

// Close drops a session. Unsaved changes are discarded.
func (s *Sessions) Close(id string) error {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	delete(s.sessions, id)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("api: session %q: %w", id, apperr.ErrNotFound)
	}
	if sess.unsubscribe != nil {
		sess.unsubscribe()
	}
	return nil
}

// Len returns the number of open sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
