package note

import (
	"bytes"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/models"
)

// Attachment is a file embedded in a note.
type Attachment struct {
	name string
	data []byte // in-memory content; nil for entries loaded from disk
	path string // on-disk location once persisted
}

// Name is the unique file name of the attachment inside the package.
func (a *Attachment) Name() string { return a.name }

// Ext returns the inferred extension, if any.
func (a *Attachment) Ext() (string, bool) { return classify.InferExtension(a.name) }

// Path returns where the attachment lives on disk, or "" if it has not been
// saved yet.
func (a *Attachment) Path() string { return a.path }

// Persisted reports whether the attachment exists in a saved package.
func (a *Attachment) Persisted() bool { return a.path != "" }

// Bytes returns the attachment content. The slice is a read-only view owned
// by the store; callers must not modify it or keep it across mutations.
func (a *Attachment) Bytes() ([]byte, error) {
	if a.data != nil {
		return a.data, nil
	}
	if a.path == "" {
		return []byte{}, nil
	}
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("note: read attachment %s: %w", a.name, err)
	}
	return data, nil
}

// Store is the name-keyed attachment set of a note. Enumeration is sorted by
// name so index-based lookups stay valid between mutations of other entries.
//
// A Store is not safe for concurrent use.
type Store struct {
	dir      string // backing Attachments directory; "" for an unsaved note
	entries  map[string]*Attachment
	added    map[string]struct{}
	removed  map[string]struct{}
	onChange func()
}

// NewStore returns an empty, unbound store.
func NewStore() *Store {
	return &Store{
		entries: make(map[string]*Attachment),
		added:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Bind points the store at its on-disk Attachments directory. The directory
// itself is not created.
func (s *Store) Bind(dir string) { s.dir = dir }

// Dir returns the bound Attachments directory.
func (s *Store) Dir() string { return s.dir }

// Adopt registers an attachment that already exists on disk. It does not
// count as a change.
func (s *Store) Adopt(name, path string) {
	s.entries[name] = &Attachment{name: name, path: path}
}

// Add stores a copy of data under a name derived from name and returns the
// final name. A name already in use gets a numeric suffix: "photo.jpg"
// becomes "photo-2.jpg".
func (s *Store) Add(name string, data []byte) (string, error) {
	base, err := cleanName(name)
	if err != nil {
		return "", err
	}
	if err := s.checkDir(); err != nil {
		return "", err
	}

	buf := bytes.Clone(data)
	if buf == nil {
		buf = []byte{}
	}
	final := s.uniqueName(base)
	s.entries[final] = &Attachment{name: final, data: buf}
	// A pending removal of the same name stays queued: save deletes the old
	// file before writing the new one.
	s.added[final] = struct{}{}
	s.changed()
	return final, nil
}

// Remove deletes the named attachment. Persisted files are removed on the
// next save.
func (s *Store) Remove(name string) error {
	if _, ok := s.entries[name]; !ok {
		return fmt.Errorf("note: attachment %q: %w", name, apperr.ErrNotFound)
	}
	delete(s.entries, name)
	if _, pending := s.added[name]; pending {
		delete(s.added, name)
	} else {
		s.removed[name] = struct{}{}
	}
	s.changed()
	return nil
}

// Lookup returns the attachment with the given name.
func (s *Store) Lookup(name string) (*Attachment, bool) {
	a, ok := s.entries[name]
	return a, ok
}

// Get returns the attachment at index i of List.
func (s *Store) Get(i int) (*Attachment, error) {
	names := s.Names()
	if i < 0 || i >= len(names) {
		return nil, fmt.Errorf("note: attachment %d of %d: %w", i, len(names), apperr.ErrIndexOutOfRange)
	}
	return s.entries[names[i]], nil
}

// Names returns the attachment names in enumeration order.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.entries))
	for n := range s.entries {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// List returns the attachments in enumeration order.
func (s *Store) List() []*Attachment {
	return slices.Collect(s.All())
}

// All is a restartable sequence over the attachments in enumeration order.
func (s *Store) All() iter.Seq[*Attachment] {
	return func(yield func(*Attachment) bool) {
		for _, n := range s.Names() {
			a, ok := s.entries[n]
			if !ok {
				continue
			}
			if !yield(a) {
				return
			}
		}
	}
}

// Len returns the number of attachments.
func (s *Store) Len() int { return len(s.entries) }

// Pending returns the attachments added and the names removed since the
// last successful save.
func (s *Store) Pending() (added []*Attachment, removed []string) {
	for n := range s.added {
		if a, ok := s.entries[n]; ok {
			added = append(added, a)
		}
	}
	for n := range s.removed {
		removed = append(removed, n)
	}
	slices.SortFunc(added, func(a, b *Attachment) int { return strings.Compare(a.name, b.name) })
	slices.Sort(removed)
	return added, removed
}

// HasPending reports whether a save has attachment work to do.
func (s *Store) HasPending() bool { return len(s.added) > 0 || len(s.removed) > 0 }

// MarkPersisted records a successful save into dir: every entry now lives
// at dir/<name> and nothing is pending.
func (s *Store) MarkPersisted(dir string) {
	s.dir = dir
	for n, a := range s.entries {
		a.path = filepath.Join(dir, n)
	}
	clear(s.added)
	clear(s.removed)
}

func (s *Store) changed() {
	if s.onChange != nil {
		s.onChange()
	}
}

// checkDir fails when the bound directory exists but cannot hold
// attachments. A missing directory is fine; it is created lazily on save.
func (s *Store) checkDir() error {
	if s.dir == "" {
		return nil
	}
	info, err := os.Stat(s.dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return apperr.E(apperr.CannotAccessAttachments, "add attachment", s.dir, err)
	case !info.IsDir():
		return apperr.E(apperr.CannotAccessAttachments, "add attachment", s.dir, errors.New("not a directory"))
	}
	return nil
}

func (s *Store) taken(name string) bool {
	for n := range s.entries {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}

func (s *Store) uniqueName(name string) string {
	if !s.taken(name) {
		return name
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if stem == "" {
		stem, ext = name, ""
	}
	for i := 2; ; i++ {
		candidate := stem + "-" + strconv.Itoa(i) + ext
		if !s.taken(candidate) {
			return candidate
		}
	}
}

// cleanName reduces name to a plain file name and rejects names that cannot
// be stored in the Attachments directory.
func cleanName(name string) (string, error) {
	base := filepath.Base(filepath.Clean(strings.TrimSpace(name)))
	switch base {
	case "", ".", "..", string(filepath.Separator):
		return "", fmt.Errorf("note: %w %q", apperr.ErrInvalidName, name)
	}
	if strings.HasPrefix(base, models.TempPrefix) {
		return "", fmt.Errorf("note: %w %q: reserved prefix", apperr.ErrInvalidName, name)
	}
	return base, nil
}
