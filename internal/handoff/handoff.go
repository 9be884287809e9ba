// Package handoff passes attachments to other applications on the host: a
// maps application for locations and the default handler for everything
// else.
package handoff

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
)

// Runner starts a command without waiting for it to finish.
type Runner func(ctx context.Context, name string, args ...string) error

// System opens files and coordinates with the host's launcher
// (open, xdg-open or start).
type System struct {
	goos   string
	run    Runner
	logger *slog.Logger
}

// Option configures a System.
type Option func(*System)

// WithRunner replaces the command runner.
func WithRunner(r Runner) Option {
	return func(s *System) { s.run = r }
}

// WithGOOS overrides the target operating system.
func WithGOOS(goos string) Option {
	return func(s *System) { s.goos = goos }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *System) { s.logger = l }
}

// New returns a System for the running operating system.
func New(opts ...Option) *System {
	s := &System{goos: runtime.GOOS, run: start, logger: slog.New(slog.DiscardHandler)}
	for _, fn := range opts {
		fn(s)
	}
	return s
}

// OpenLocation shows lat/long in the maps application.
func (s *System) OpenLocation(ctx context.Context, lat, long float64) error {
	return s.launch(ctx, MapsURL(s.goos, lat, long))
}

// OpenExternally opens path with its default application.
func (s *System) OpenExternally(ctx context.Context, path string) error {
	return s.launch(ctx, path)
}

func (s *System) launch(ctx context.Context, target string) error {
	name, args, err := command(s.goos, target)
	if err != nil {
		return err
	}
	s.logger.Debug("handoff", slog.String("cmd", name), slog.String("target", target))
	if err := s.run(ctx, name, args...); err != nil {
		return fmt.Errorf("handoff: %s %s: %w", name, target, err)
	}
	return nil
}

// MapsURL builds the URL a maps application opens for lat/long. macOS gets
// the maps: scheme; other systems get a geo: URI.
func MapsURL(goos string, lat, long float64) string {
	ll := strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(long, 'f', -1, 64)
	if goos == "darwin" {
		return "maps://?ll=" + ll
	}
	return "geo:" + ll
}

func command(goos, target string) (string, []string, error) {
	switch goos {
	case "darwin":
		return "open", []string{target}, nil
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{target}, nil
	case "windows":
		return "cmd", []string{"/c", "start", "", target}, nil
	default:
		return "", nil, fmt.Errorf("handoff: unsupported operating system: %s", goos)
	}
}

// start detaches the launcher from ctx once it is running.
func start(ctx context.Context, name string, args ...string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(name, args...)
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return err
	}
	go cmd.Wait() //nolint:errcheck // launcher exit status is not interesting
	return nil
}
