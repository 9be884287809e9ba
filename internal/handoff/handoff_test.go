package handoff

import (
	"context"
	"errors"
	"slices"
	"testing"
)

type recorder struct {
	name string
	args []string
	err  error
}

func (r *recorder) run(_ context.Context, name string, args ...string) error {
	r.name, r.args = name, args
	return r.err
}

func TestOpenLocation(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{"darwin", "open", []string{"maps://?ll=37.33,-122.03"}},
		{"linux", "xdg-open", []string{"geo:37.33,-122.03"}},
		{"windows", "cmd", []string{"/c", "start", "", "geo:37.33,-122.03"}},
	}
	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			rec := &recorder{}
			s := New(WithGOOS(tt.goos), WithRunner(rec.run))
			if err := s.OpenLocation(context.Background(), 37.33, -122.03); err != nil {
				t.Fatal(err)
			}
			if rec.name != tt.wantName || !slices.Equal(rec.args, tt.wantArgs) {
				t.Errorf("ran %s %v, want %s %v", rec.name, rec.args, tt.wantName, tt.wantArgs)
			}
		})
	}
}

func TestOpenExternally(t *testing.T) {
	rec := &recorder{}
	s := New(WithGOOS("darwin"), WithRunner(rec.run))
	if err := s.OpenExternally(context.Background(), "/lib/a.pkg/Attachments/photo.jpg"); err != nil {
		t.Fatal(err)
	}
	if rec.name != "open" || !slices.Equal(rec.args, []string{"/lib/a.pkg/Attachments/photo.jpg"}) {
		t.Errorf("ran %s %v", rec.name, rec.args)
	}
}

func TestRunnerErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	s := New(WithGOOS("linux"), WithRunner((&recorder{err: boom}).run))
	if err := s.OpenExternally(context.Background(), "x"); !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped boom", err)
	}
}

func TestUnsupportedOS(t *testing.T) {
	rec := &recorder{}
	s := New(WithGOOS("plan9"), WithRunner(rec.run))
	if err := s.OpenExternally(context.Background(), "x"); err == nil {
		t.Error("expected error")
	}
	if rec.name != "" {
		t.Errorf("runner called with %s", rec.name)
	}
}

func TestStartHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := start(ctx, "true"); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}
