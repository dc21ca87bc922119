package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

const (
	DefaultBufferLines = 5000
	DefaultTail        = 500
)

// ClampTail maps out-of-range tail requests to DefaultTail.
func ClampTail(n int) int {
	if n < 1 || n > DefaultBufferLines {
		return DefaultTail
	}
	return n
}

// Buffer keeps the most recent log lines in a ring.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	next  int
	full  bool
}

func NewBuffer(max int) *Buffer {
	if max <= 0 {
		max = DefaultBufferLines
	}
	return &Buffer{lines: make([]string, max)}
}

func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines[b.next] = line
	b.next = (b.next + 1) % len(b.lines)
	if b.next == 0 {
		b.full = true
	}
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.lines)
	}
	return b.next
}

// Tail returns up to n lines, oldest first.
func (b *Buffer) Tail(n int) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	size := b.next
	if b.full {
		size = len(b.lines)
	}
	if n > size {
		n = size
	}
	out := make([]string, 0, n)
	for i := size - n; i < size; i++ {
		idx := i
		if b.full {
			idx = (b.next + i) % len(b.lines)
		}
		out = append(out, b.lines[idx])
	}
	return out
}

func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		b.lines[i] = ""
	}
	b.next = 0
	b.full = false
}

// BufferHandler formats records as "time | LEVEL | msg k=v" lines.
type BufferHandler struct {
	buf    *Buffer
	level  slog.Leveler
	attrs  []slog.Attr
	prefix string
}

func NewBufferHandler(buf *Buffer, level slog.Leveler) *BufferHandler {
	return &BufferHandler{buf: buf, level: level}
}

func (h *BufferHandler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level.Level()
}

func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s | %s | %s", r.Time.UTC().Format("2006-01-02 15:04:05"), r.Level.String(), r.Message)
	for _, a := range h.attrs {
		writeAttr(&sb, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&sb, h.prefix, a)
		return true
	})
	h.buf.Append(sb.String())
	return nil
}

func writeAttr(sb *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			writeAttr(sb, prefix+a.Key+".", ga)
		}
		return
	}
	fmt.Fprintf(sb, " %s%s=%v", prefix, a.Key, a.Value.Any())
}

func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.attrs = append(append([]slog.Attr{}, h.attrs...), prefixed(h.prefix, attrs)...)
	return &cp
}

func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	cp := *h
	cp.prefix = h.prefix + name + "."
	return &cp
}

func prefixed(prefix string, attrs []slog.Attr) []slog.Attr {
	if prefix == "" {
		return attrs
	}
	out := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		out[i] = slog.Attr{Key: prefix + a.Key, Value: a.Value}
	}
	return out
}
