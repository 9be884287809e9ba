package apperr

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

func TestErrorIsKind(t *testing.T) {
	err := E(CannotLoadText, "load", "/tmp/a.pkg", os.ErrNotExist)
	if !errors.Is(err, CannotLoadText) {
		t.Fatal("expected errors.Is to match kind")
	}
	if errors.Is(err, CannotSaveText) {
		t.Error("unexpected match on a different kind")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestKindOfWrapped(t *testing.T) {
	inner := E(CannotAccessAttachments, "add", "", nil)
	wrapped := fmt.Errorf("service: %w", inner)
	if got := KindOf(wrapped); got != CannotAccessAttachments {
		t.Errorf("KindOf = %v, want %v", got, CannotAccessAttachments)
	}
	if KindOf(errors.New("plain")) != 0 {
		t.Error("plain error should have no kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := E(CannotSaveText, "save", "doc.pkg", errors.New("disk full"))
	msg := err.Error()
	for _, want := range []string{"save", "cannot save text", "doc.pkg", "disk full"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q missing %q", msg, want)
		}
	}
}
