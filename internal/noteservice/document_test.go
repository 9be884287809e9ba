package noteservice

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/starford/notebundle/internal/apperr"
	"github.com/starford/notebundle/internal/classify"
	"github.com/starford/notebundle/internal/note"
)

type fakeMaps struct {
	lat, long float64
	calls     int
}

func (f *fakeMaps) OpenLocation(_ context.Context, lat, long float64) error {
	f.lat, f.long = lat, long
	f.calls++
	return nil
}

type fakeOpener struct {
	paths []string
}

func (f *fakeOpener) OpenExternally(_ context.Context, path string) error {
	f.paths = append(f.paths, path)
	return nil
}

func TestNewDocumentIsUnloaded(t *testing.T) {
	d := NewDocument()
	if d.State() != note.Unloaded {
		t.Fatalf("state = %v, want Unloaded", d.State())
	}
	if _, err := d.Text(); !errors.Is(err, ErrUnloaded) {
		t.Errorf("Text err = %v, want ErrUnloaded", err)
	}
	if _, err := d.AddAttachmentBytes("a.txt", []byte("x")); !errors.Is(err, ErrUnloaded) {
		t.Errorf("AddAttachmentBytes err = %v, want ErrUnloaded", err)
	}
	if err := d.SavePackage(context.Background()); !errors.Is(err, ErrUnloaded) {
		t.Errorf("SavePackage err = %v, want ErrUnloaded", err)
	}
}

func TestSavePackageNeedsPath(t *testing.T) {
	d := Blank()
	if err := d.SavePackage(context.Background()); !errors.Is(err, ErrNoPath) {
		t.Fatalf("SavePackage err = %v, want ErrNoPath", err)
	}
}

func TestDocumentLifecycle(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "shopping.pkg")

	d := Blank()
	var events []note.Event
	cancel := d.Subscribe(func(c Change) { events = append(events, c.Event) })
	defer cancel()

	if err := d.SetText("Groceries"); err != nil {
		t.Fatal(err)
	}
	name, err := d.AddAttachmentBytes("list.txt", []byte("milk"))
	if err != nil {
		t.Fatal(err)
	}
	if name != "list.txt" {
		t.Errorf("name = %q", name)
	}
	if d.State() != note.Dirty {
		t.Fatalf("state = %v, want Dirty", d.State())
	}
	if err := d.SavePackageAs(ctx, root); err != nil {
		t.Fatalf("SavePackageAs: %v", err)
	}
	if d.State() != note.Loaded || d.Path() != root {
		t.Fatalf("after save: state %v path %q", d.State(), d.Path())
	}

	for _, want := range []note.Event{note.EventTextChanged, note.EventDirty, note.EventAttachmentsChanged, note.EventSaved} {
		if !slices.Contains(events, want) {
			t.Errorf("missing event %q in %v", want, events)
		}
	}

	reopened, err := Open(ctx, root)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	text, _ := reopened.Text()
	if text != "Groceries" {
		t.Errorf("text = %q", text)
	}
	if got := reopened.ListAttachments(); !slices.Equal(got, []string{"list.txt"}) {
		t.Errorf("attachments = %v", got)
	}
}

func TestLoadFailureKeepsDocument(t *testing.T) {
	d := Blank()
	_ = d.SetText("keep me")
	err := d.LoadPackage(context.Background(), filepath.Join(t.TempDir(), "missing.pkg"))
	if !errors.Is(err, apperr.CannotAccessDocument) {
		t.Fatalf("err = %v, want CannotAccessDocument", err)
	}
	if text, _ := d.Text(); text != "keep me" {
		t.Errorf("text = %q, want document kept", text)
	}
}

func TestObserversSurviveReload(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "a.pkg")
	if err := Blank().SavePackageAs(ctx, root); err != nil {
		t.Fatal(err)
	}

	d := NewDocument()
	var got []Change
	d.Subscribe(func(c Change) { got = append(got, c) })
	if err := d.LoadPackage(ctx, root); err != nil {
		t.Fatal(err)
	}
	if _, err := d.AddAttachmentBytes("x.txt", []byte("x")); err != nil {
		t.Fatal(err)
	}
	if len(got) == 0 || got[0].Event != note.EventLoaded || got[0].Path != root {
		t.Fatalf("first change = %+v", got)
	}
	last := got[len(got)-1]
	if last.Event != note.EventDirty || last.Attachments != 1 {
		t.Errorf("last change = %+v", last)
	}
}

func TestUnsubscribe(t *testing.T) {
	d := Blank()
	calls := 0
	cancel := d.Subscribe(func(Change) { calls++ })
	_ = d.SetText("one")
	cancel()
	_ = d.SetText("two")
	if calls != 2 {
		t.Errorf("calls = %d, want 2 (text.changed + dirty)", calls)
	}
}

func TestAddAttachmentFromFile(t *testing.T) {
	src := filepath.Join(t.TempDir(), "photo.jpg")
	if err := os.WriteFile(src, []byte("jpeg"), 0o644); err != nil {
		t.Fatal(err)
	}
	d := Blank()
	name, err := d.AddAttachment(context.Background(), src)
	if err != nil {
		t.Fatalf("AddAttachment: %v", err)
	}
	if name != "photo.jpg" {
		t.Errorf("name = %q", name)
	}
	data, err := d.AttachmentBytes(name)
	if err != nil || string(data) != "jpeg" {
		t.Errorf("bytes = %q, %v", data, err)
	}
	data[0] = 'X'
	again, _ := d.AttachmentBytes(name)
	if string(again) != "jpeg" {
		t.Errorf("AttachmentBytes returned shared slice")
	}

	if _, err := d.AddAttachment(context.Background(), filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("expected error for missing source file")
	}
}

func TestAttachmentAtAndRemove(t *testing.T) {
	d := Blank()
	_, _ = d.AddAttachmentBytes("a.txt", []byte("a"))
	_, _ = d.AddAttachmentBytes("b.pdf", []byte("b"))

	info, err := d.AttachmentAt(1)
	if err != nil {
		t.Fatal(err)
	}
	if info.Name != "b.pdf" || info.Type != "com.adobe.pdf" || info.Persisted {
		t.Errorf("info = %+v", info)
	}
	if _, err := d.AttachmentAt(5); !errors.Is(err, apperr.ErrIndexOutOfRange) {
		t.Errorf("err = %v, want ErrIndexOutOfRange", err)
	}
	if err := d.RemoveAttachment("a.txt"); err != nil {
		t.Fatal(err)
	}
	if got := d.ListAttachments(); !slices.Equal(got, []string{"b.pdf"}) {
		t.Errorf("attachments = %v", got)
	}
	if err := d.RemoveAttachment("a.txt"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestResolveOpenAction(t *testing.T) {
	ctx := context.Background()
	root := filepath.Join(t.TempDir(), "trip.pkg")

	d := Blank()
	_, _ = d.AddAttachmentBytes("map.loc", []byte(`{"lat":37.33,"long":-122.03}`))
	_, _ = d.AddAttachmentBytes("photo.jpg", []byte(`{"lat":1,"long":2}`))
	_, _ = d.AddAttachmentBytes("notes.txt", []byte("plain"))

	action, err := d.ResolveOpenAction("map.loc")
	if err != nil {
		t.Fatalf("resolve map.loc: %v", err)
	}
	if loc, ok := action.(OpenLocation); !ok || loc.Lat != 37.33 || loc.Long != -122.03 {
		t.Errorf("map.loc action = %#v", action)
	}

	if _, err := d.ResolveOpenAction("photo.jpg"); !errors.Is(err, apperr.ErrNotPersisted) {
		t.Errorf("unsaved photo err = %v, want ErrNotPersisted", err)
	}
	if _, err := d.ResolveOpenAction("missing"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v, want ErrNotFound", err)
	}

	if err := d.SavePackageAs(ctx, root); err != nil {
		t.Fatal(err)
	}
	action, err = d.ResolveOpenAction("photo.jpg")
	if err != nil {
		t.Fatalf("resolve photo.jpg: %v", err)
	}
	want := filepath.Join(root, "Attachments", "photo.jpg")
	if ext, ok := action.(OpenExternally); !ok || ext.Path != want {
		t.Errorf("photo.jpg action = %#v, want path %s", action, want)
	}
	action, _ = d.ResolveOpenAction("map.loc")
	if _, ok := action.(OpenLocation); !ok {
		t.Errorf("saved map.loc action = %#v", action)
	}
}

func TestOpenAttachmentDispatch(t *testing.T) {
	ctx := context.Background()
	maps := &fakeMaps{}
	opener := &fakeOpener{}
	d := Blank(WithMapHandoff(maps), WithExternalOpener(opener))
	_, _ = d.AddAttachmentBytes("home.loc", []byte(`{"lat":51.5,"long":-0.12}`))
	_, _ = d.AddAttachmentBytes("doc.txt", []byte("hi"))
	if err := d.SavePackageAs(ctx, filepath.Join(t.TempDir(), "x.pkg")); err != nil {
		t.Fatal(err)
	}

	if _, err := d.OpenAttachment(ctx, "home.loc"); err != nil {
		t.Fatal(err)
	}
	if maps.calls != 1 || maps.lat != 51.5 || maps.long != -0.12 {
		t.Errorf("maps = %+v", maps)
	}
	if _, err := d.OpenAttachment(ctx, "doc.txt"); err != nil {
		t.Fatal(err)
	}
	if len(opener.paths) != 1 || filepath.Base(opener.paths[0]) != "doc.txt" {
		t.Errorf("opener = %v", opener.paths)
	}

	bare := Blank()
	_, _ = bare.AddAttachmentBytes("home.loc", []byte(`{"lat":1,"long":1}`))
	action, err := bare.OpenAttachment(ctx, "home.loc")
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("err = %v, want ErrNoHandler", err)
	}
	if _, ok := action.(OpenLocation); !ok {
		t.Errorf("action = %#v, want OpenLocation", action)
	}
}

func TestAddLocation(t *testing.T) {
	d := Blank()

	name, err := d.AddLocation("", classify.Location{Lat: 48.85, Long: 2.35})
	if err != nil {
		t.Fatalf("AddLocation: %v", err)
	}
	if name != "location.loc" {
		t.Errorf("default name = %q", name)
	}
	action, err := d.ResolveOpenAction(name)
	if err != nil {
		t.Fatal(err)
	}
	if loc, ok := action.(OpenLocation); !ok || loc.Lat != 48.85 || loc.Long != 2.35 {
		t.Errorf("action = %#v", action)
	}

	if name, _ := d.AddLocation("paris", classify.Location{Lat: 1, Long: 1}); name != "paris.loc" {
		t.Errorf("name = %q, want paris.loc", name)
	}
	if name, _ := d.AddLocation("home.loc", classify.Location{Lat: 1, Long: 1}); name != "home.loc" {
		t.Errorf("name = %q, want home.loc", name)
	}

	if _, err := d.AddLocation("bad", classify.Location{Lat: 0, Long: 200}); err == nil {
		t.Error("longitude 200 accepted")
	}
	if slices.Contains(d.ListAttachments(), "bad.loc") {
		t.Error("invalid location was stored")
	}
}
