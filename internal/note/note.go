// Package note holds the in-memory document: formatted text plus its
// attachment set, the editing state machine and change observers.
package note

import (
	"fmt"
	"path/filepath"

	"github.com/starford/notebundle/internal/models"
	"github.com/starford/notebundle/internal/richtext"
)

// AttachmentsDir is the package subdirectory holding attachments.
const AttachmentsDir = models.AttachmentsDir

// State is the lifecycle state of a document.
type State int

const (
	Unloaded State = iota
	Loaded
	Dirty
	Saving
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loaded:
		return "loaded"
	case Dirty:
		return "dirty"
	case Saving:
		return "saving"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Event names a change observers are told about.
type Event string

const (
	EventLoaded             Event = "document.loaded"
	EventDirty              Event = "document.dirty"
	EventSaved              Event = "document.saved"
	EventSaveFailed         Event = "document.save_failed"
	EventTextChanged        Event = "text.changed"
	EventAttachmentsChanged Event = "attachments.changed"
)

// Observer is called synchronously after a change.
type Observer func(ev Event, n *Note)

// Note is a document's text and attachments. A Note is not safe for
// concurrent use; callers serialize access.
type Note struct {
	text        richtext.Text
	attachments *Store
	state       State
	origin      string
	observers   map[int]Observer
	nextID      int
}

// New returns an empty document ready for editing.
func New() *Note {
	return newNote("", NewStore(), Loaded, "")
}

// Restore builds a note read from the package at root.
func Restore(text richtext.Text, store *Store, root string) *Note {
	return newNote(text, store, Loaded, root)
}

func newNote(text richtext.Text, store *Store, state State, origin string) *Note {
	n := &Note{
		text:        text,
		attachments: store,
		state:       state,
		origin:      origin,
		observers:   make(map[int]Observer),
	}
	store.onChange = func() {
		n.touch(EventAttachmentsChanged)
	}
	return n
}

// Text returns the current text.
func (n *Note) Text() richtext.Text { return n.text }

// SetText replaces the text and marks the note dirty.
func (n *Note) SetText(t richtext.Text) {
	if t == n.text {
		return
	}
	n.text = t
	n.touch(EventTextChanged)
}

// Attachments returns the note's attachment store.
func (n *Note) Attachments() *Store { return n.attachments }

// State returns the lifecycle state.
func (n *Note) State() State { return n.state }

// Origin returns the package root the note was loaded from or last saved
// to, or "" for a new document.
func (n *Note) Origin() string { return n.origin }

// Subscribe registers fn and returns a function that removes it.
func (n *Note) Subscribe(fn Observer) func() {
	id := n.nextID
	n.nextID++
	n.observers[id] = fn
	return func() { delete(n.observers, id) }
}

// BeginSave moves the note into Saving.
func (n *Note) BeginSave() error {
	switch n.state {
	case Unloaded:
		return fmt.Errorf("note: cannot save an unloaded document")
	case Saving:
		return fmt.Errorf("note: save already in progress")
	}
	n.state = Saving
	return nil
}

// FinishSave ends a save started with BeginSave. On success the note is
// clean and bound to root; on failure it stays dirty with everything it held
// in memory, so the caller can retry.
func (n *Note) FinishSave(root string, err error) {
	if err != nil {
		n.state = Dirty
		n.notify(EventSaveFailed)
		return
	}
	n.origin = root
	n.attachments.MarkPersisted(filepath.Join(root, AttachmentsDir))
	n.state = Loaded
	n.notify(EventSaved)
}

func (n *Note) touch(ev Event) {
	n.notify(ev)
	if n.state == Loaded {
		n.state = Dirty
		n.notify(EventDirty)
	}
}

func (n *Note) notify(ev Event) {
	for id := 0; id < n.nextID; id++ {
		if fn, ok := n.observers[id]; ok {
			fn(ev, n)
		}
	}
}
