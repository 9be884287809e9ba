package noteservice

import (
	"context"
	"errors"
)

// ErrNoHandler is returned by Document.OpenAttachment when no collaborator
// is configured for the resolved action.
var ErrNoHandler = errors.New("noteservice: no handler for open action")

// OpenAction is what the UI should do to open an attachment: either
// OpenExternally or OpenLocation.
type OpenAction interface {
	isOpenAction()
}

// OpenExternally hands a file to the system's default application.
type OpenExternally struct {
	Path string
}

// OpenLocation hands coordinates to a maps application.
type OpenLocation struct {
	Lat  float64
	Long float64
}

func (OpenExternally) isOpenAction() {}
func (OpenLocation) isOpenAction()   {}

// MapHandoff shows a coordinate in a maps application.
type MapHandoff interface {
	OpenLocation(ctx context.Context, lat, long float64) error
}

// ExternalOpener opens a file with the default application.
type ExternalOpener interface {
	OpenExternally(ctx context.Context, path string) error
}
