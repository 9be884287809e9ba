// Package noteservice is the surface UI code drives: an editing session over
// one document package, and a library service that finds, creates and
// catalogs packages.
package noteservice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/note"
	"github.com/starford/notebundle/internal/pkgcodec"
	"github.com/starford/notebundle/internal/richtext"
)

var (
	// ErrUnloaded is returned by operations that need a document.
	ErrUnloaded = errors.New("noteservice: no document loaded")
	// ErrNoPath is returned by SavePackage for a document never saved.
	ErrNoPath = errors.New("noteservice: document has no package path")
)

// maxLocationBytes bounds how much is read to classify an attachment.
const maxLocationBytes = 64 << 10

// AttachmentInfo describes one attachment.
type AttachmentInfo struct {
	Name      string `json:"name"`
	Type      string `json:"type,omitempty"`
	Persisted bool   `json:"persisted"`
	Path      string `json:"path,omitempty"`
}

// Change is passed to observers after the document changed.
type Change struct {
	Event       note.Event
	State       note.State
	Path        string
	Attachments int
}

// Document is an editing session over one note. All methods are safe for
// concurrent use; calls are serialized.
//
// Observers run synchronously while the session is locked and must not call
// back into the Document.
type Document struct {
	mu     sync.Mutex
	note   *note.Note
	cancel func()
	opts   *options

	observers map[int]func(Change)
	nextID    int
}

// NewDocument returns an Unloaded session.
func NewDocument(opts ...Option) *Document {
	return &Document{opts: buildOptions(opts), observers: make(map[int]func(Change))}
}

// Blank returns a session holding a new, empty, unsaved document.
func Blank(opts ...Option) *Document {
	d := NewDocument(opts...)
	d.Reset()
	return d
}

// Open returns a session over the package at path.
func Open(ctx context.Context, path string, opts ...Option) (*Document, error) {
	d := NewDocument(opts...)
	if err := d.LoadPackage(ctx, path); err != nil {
		return nil, err
	}
	return d, nil
}

// Reset replaces the document with a new empty one.
func (d *Document) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attach(note.New())
	d.emit(note.EventLoaded)
}

// LoadPackage replaces the document with the package at path. On failure
// the current document is kept.
func (d *Document) LoadPackage(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	n, err := pkgcodec.Load(ctx, path, d.opts.codecOptions()...)
	if err != nil {
		return err
	}
	d.attach(n)
	d.emit(note.EventLoaded)
	return nil
}

// SavePackage writes the document back to where it was loaded from or last
// saved.
func (d *Document) SavePackage(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return ErrUnloaded
	}
	if d.note.Origin() == "" {
		return ErrNoPath
	}
	return pkgcodec.Save(ctx, d.note, d.note.Origin(), d.opts.codecOptions()...)
}

// SavePackageAs writes the document to path and binds the session to it.
func (d *Document) SavePackageAs(ctx context.Context, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return ErrUnloaded
	}
	return pkgcodec.Save(ctx, d.note, path, d.opts.codecOptions()...)
}

// State returns the lifecycle state.
func (d *Document) State() note.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return note.Unloaded
	}
	return d.note.State()
}

// Path returns the package path, or "" for an unsaved document.
func (d *Document) Path() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return ""
	}
	return d.note.Origin()
}

// Text returns the document text.
func (d *Document) Text() (richtext.Text, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return "", ErrUnloaded
	}
	return d.note.Text(), nil
}

// SetText replaces the document text.
func (d *Document) SetText(t richtext.Text) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return ErrUnloaded
	}
	d.note.SetText(t)
	return nil
}

// AddAttachment copies the file at path into the document under its base
// name and returns the name it was stored as.
func (d *Document) AddAttachment(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("noteservice: read %s: %w", path, err)
	}
	return d.AddAttachmentBytes(filepath.Base(path), data)
}

// AddAttachmentBytes stores data under name.
func (d *Document) AddAttachmentBytes(name string, data []byte) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return "", ErrUnloaded
	}
	final, err := d.note.Attachments().Add(name, data)
	if err != nil {
		return "", err
	}
	d.opts.logger.Debug("attachment added", slog.String("name", final), slog.Int("bytes", len(data)))
	return final, nil
}

// AddLocation stores loc as a location attachment. name defaults to
// "location.loc"; a name without the location extension gets it appended.
func (d *Document) AddLocation(name string, loc classify.Location) (string, error) {
	data, err := loc.Encode()
	if err != nil {
		return "", err
	}
	if name == "" {
		name = "location"
	}
	if typ, ok := classify.TypeForName(name); !ok || typ != classify.TypeLocation {
		name += ".loc"
	}
	return d.AddAttachmentBytes(name, data)
}

// ListAttachments returns the attachment names in display order.
func (d *Document) ListAttachments() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return nil
	}
	return d.note.Attachments().Names()
}

// Attachments describes every attachment in display order.
func (d *Document) Attachments() []AttachmentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return nil
	}
	var out []AttachmentInfo
	for a := range d.note.Attachments().All() {
		out = append(out, describe(a))
	}
	return out
}

// AttachmentAt describes the attachment at index i of ListAttachments.
func (d *Document) AttachmentAt(i int) (AttachmentInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return AttachmentInfo{}, ErrUnloaded
	}
	a, err := d.note.Attachments().Get(i)
	if err != nil {
		return AttachmentInfo{}, err
	}
	return describe(a), nil
}

// AttachmentBytes returns a copy of an attachment's content.
func (d *Document) AttachmentBytes(name string) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	data, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(data), nil
}

// RemoveAttachment drops an attachment. A saved file is deleted on the next
// save.
func (d *Document) RemoveAttachment(name string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.note == nil {
		return ErrUnloaded
	}
	return d.note.Attachments().Remove(name)
}

// ResolveOpenAction decides how the named attachment opens. Location
// attachments yield OpenLocation; anything else yields OpenExternally with
// the on-disk path, which requires the attachment to have been saved.
func (d *Document) ResolveOpenAction(name string) (OpenAction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, err := d.lookup(name)
	if err != nil {
		return nil, err
	}
	if classify.CanHoldLocation(a.Name()) && smallEnough(a) {
		data, err := a.Bytes()
		if err != nil {
			return nil, err
		}
		if loc, err := classify.ParseLocation(data); err == nil {
			return OpenLocation{Lat: loc.Lat, Long: loc.Long}, nil
		}
	}
	if !a.Persisted() {
		return nil, fmt.Errorf("noteservice: open %s: %w", name, apperr.ErrNotPersisted)
	}
	return OpenExternally{Path: a.Path()}, nil
}

// OpenAttachment resolves the attachment and hands it to the matching
// collaborator.
func (d *Document) OpenAttachment(ctx context.Context, name string) (OpenAction, error) {
	action, err := d.ResolveOpenAction(name)
	if err != nil {
		return nil, err
	}
	switch a := action.(type) {
	case OpenLocation:
		if d.opts.maps == nil {
			return action, ErrNoHandler
		}
		err = d.opts.maps.OpenLocation(ctx, a.Lat, a.Long)
	case OpenExternally:
		if d.opts.opener == nil {
			return action, ErrNoHandler
		}
		err = d.opts.opener.OpenExternally(ctx, a.Path)
	}
	return action, err
}

// Subscribe registers fn for document changes and returns a function that
// removes it. Subscriptions survive LoadPackage and Reset.
func (d *Document) Subscribe(fn func(Change)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextID
	d.nextID++
	d.observers[id] = fn
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		delete(d.observers, id)
	}
}

// attach swaps in n and forwards its events. Callers hold d.mu.
func (d *Document) attach(n *note.Note) {
	if d.cancel != nil {
		d.cancel()
	}
	d.note = n
	d.cancel = n.Subscribe(func(ev note.Event, _ *note.Note) { d.emit(ev) })
}

// emit notifies observers. Callers hold d.mu.
func (d *Document) emit(ev note.Event) {
	c := Change{Event: ev}
	if d.note != nil {
		c.State = d.note.State()
		c.Path = d.note.Origin()
		c.Attachments = d.note.Attachments().Len()
	}
	for id := 0; id < d.nextID; id++ {
		if fn, ok := d.observers[id]; ok {
			fn(c)
		}
	}
}

func (d *Document) lookup(name string) (*note.Attachment, error) {
	if d.note == nil {
		return nil, ErrUnloaded
	}
	a, ok := d.note.Attachments().Lookup(name)
	if !ok {
		return nil, fmt.Errorf("noteservice: attachment %q: %w", name, apperr.ErrNotFound)
	}
	return a, nil
}

func smallEnough(a *note.Attachment) bool {
	if !a.Persisted() {
		return true
	}
	info, err := os.Stat(a.Path())
	return err == nil && info.Size() <= maxLocationBytes
}

func describe(a *note.Attachment) AttachmentInfo {
	typ, _ := classify.TypeForName(a.Name())
	return AttachmentInfo{
		Name:      a.Name(),
		Type:      typ,
		Persisted: a.Persisted(),
		Path:      a.Path(),
	}
}
