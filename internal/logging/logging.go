// Package logging builds the process logger: a text or JSON slog handler on
// stderr, mirrored into an in-memory buffer served by the admin API.
package logging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level       string
	JSON        bool
	Out         io.Writer
	BufferLines int
}

// ParseLevel accepts DEBUG, INFO, WARN/WARNING and ERROR in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.New("unknown log level " + s)
}

// New returns a logger writing to opts.Out and to the returned buffer.
func New(opts Options) (*slog.Logger, *Buffer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	out := opts.Out
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	var primary slog.Handler
	if opts.JSON {
		primary = slog.NewJSONHandler(out, hopts)
	} else {
		primary = slog.NewTextHandler(out, hopts)
	}
	buf := NewBuffer(opts.BufferLines)
	return slog.New(fanout{primary, NewBufferHandler(buf, level)}), buf, nil
}

type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
