// Package apperr defines the error kinds surfaced by document operations.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrAlreadyExists   = errors.New("already exists")
	ErrIndexOutOfRange = errors.New("index out of range")
	ErrNotPersisted    = errors.New("attachment not saved to disk yet")
	ErrInvalidName     = errors.New("invalid attachment name")
)

// Kind classifies a document failure.
type Kind int

const (
	// CannotAccessDocument: the package root could not be found at all.
	CannotAccessDocument Kind = iota + 1
	// CannotLoadFileWrappers: the package root could not be enumerated.
	CannotLoadFileWrappers
	// CannotLoadText: Text.rtf is missing or unparseable.
	CannotLoadText
	// CannotAccessAttachments: the Attachments directory is unusable.
	CannotAccessAttachments
	// CannotSaveText: the text could not be serialized or written.
	CannotSaveText
	// CannotSaveAttachment: an attachment or derived artifact could not be written.
	CannotSaveAttachment
)

var kindNames = map[Kind]string{
	CannotAccessDocument:    "cannot access document",
	CannotLoadFileWrappers:  "cannot load package entries",
	CannotLoadText:          "cannot load text",
	CannotAccessAttachments: "cannot access attachments",
	CannotSaveText:          "cannot save text",
	CannotSaveAttachment:    "cannot save attachment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error lets a Kind be used directly as an errors.Is target.
func (k Kind) Error() string { return k.String() }

// Error carries a Kind together with the failing operation and its cause.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// E builds an *Error.
func E(kind Kind, op, path string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: cause}
}

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare Kind target, so errors.Is(err, apperr.CannotLoadText) works.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf returns the Kind of the first *Error in err's chain, or 0.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
