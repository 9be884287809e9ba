package pkgcodec

import (
	"log/slog"

	"github.com/starford/notebundle/internal/richtext"
	"github.com/starford/notebundle/internal/thumbnail"
)

// Thumbnailer renders Thumbnail.png. *thumbnail.Generator implements it.
type Thumbnailer interface {
	Build(text string, first thumbnail.Attachment, size int) ([]byte, error)
}

type options struct {
	logger        *slog.Logger
	codec         richtext.Codec
	icons         thumbnail.IconProvider
	thumbnails    Thumbnailer
	thumbnailSize int
	strictPreview bool
}

// Option configures Load and Save.
type Option func(*options)

// WithLogger sets the logger. Defaults to discarding output.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodec replaces the RTF text codec.
func WithCodec(c richtext.Codec) Option {
	return func(o *options) { o.codec = c }
}

// WithIcons sets the icon provider used for non-image attachments in the
// thumbnail.
func WithIcons(p thumbnail.IconProvider) Option {
	return func(o *options) { o.icons = p }
}

// WithThumbnailer replaces the thumbnail renderer. WithIcons is ignored
// when it is set.
func WithThumbnailer(t Thumbnailer) Option {
	return func(o *options) { o.thumbnails = t }
}

// WithThumbnailSize sets the edge length of Thumbnail.png.
func WithThumbnailSize(px int) Option {
	return func(o *options) { o.thumbnailSize = px }
}

// WithStrictPreview makes a QuickLook failure fail the save. By default it is
// logged and the previous preview is left in place.
func WithStrictPreview() Option {
	return func(o *options) { o.strictPreview = true }
}

func buildOptions(opts []Option) *options {
	o := &options{
		logger:        slog.New(slog.DiscardHandler),
		codec:         richtext.NewRTF(),
		thumbnailSize: thumbnail.DefaultSize,
	}
	for _, fn := range opts {
		fn(o)
	}
	if o.thumbnails == nil {
		o.thumbnails = thumbnail.New(o.icons)
	}
	return o
}
