package noteservice

import (
	"log/slog"

	"github.com/starford/notebundle/internal/pkgcodec"
)

type options struct {
	logger *slog.Logger
	codec  []pkgcodec.Option
	maps   MapHandoff
	opener ExternalOpener
}

// Option configures a Document.
type Option func(*options)

// WithLogger sets the logger used by the document and its codec.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithCodecOptions passes options through to pkgcodec.Load and Save.
func WithCodecOptions(opts ...pkgcodec.Option) Option {
	return func(o *options) { o.codec = append(o.codec, opts...) }
}

// WithMapHandoff sets the collaborator for location attachments.
func WithMapHandoff(m MapHandoff) Option {
	return func(o *options) { o.maps = m }
}

// WithExternalOpener sets the collaborator for every other attachment.
func WithExternalOpener(e ExternalOpener) Option {
	return func(o *options) { o.opener = e }
}

func buildOptions(opts []Option) *options {
	o := &options{logger: slog.New(slog.DiscardHandler)}
	for _, fn := range opts {
		fn(o)
	}
	return o
}

func (o *options) codecOptions() []pkgcodec.Option {
	return append([]pkgcodec.Option{pkgcodec.WithLogger(o.logger)}, o.codec...)
}
