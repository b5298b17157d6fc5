package logging

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// LogCallback receives every entry written to the history buffer.
type LogCallback func(entry LogEntry)

// BufferHandler records slog records into the shared history buffer.
// The buffer and callback are looked up per record so handlers built
// before Initialize still reach the history once it exists.
type BufferHandler struct {
	level  slog.Leveler
	attrs  []slog.Attr
	groups []string
	sink   func() (*RingBuffer[LogEntry], LogCallback)
}

// NewBufferHandler creates a handler writing into the global history buffer.
func NewBufferHandler(level slog.Leveler) *BufferHandler {
	return &BufferHandler{level: level, sink: currentSink}
}

// newBufferHandlerTo writes into a fixed buffer, used by tests.
func newBufferHandlerTo(buf *RingBuffer[LogEntry], level slog.Leveler) *BufferHandler {
	return &BufferHandler{
		level: level,
		sink:  func() (*RingBuffer[LogEntry], LogCallback) { return buf, nil },
	}
}

// Enabled implements slog.Handler.
func (h *BufferHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *BufferHandler) Handle(_ context.Context, r slog.Record) error {
	buf, callback := h.sink()
	if buf == nil {
		return nil
	}

	entry := LogEntry{
		Timestamp:  r.Time,
		Level:      levelName(r.Level),
		Module:     "app",
		Message:    r.Message,
		Attributes: make(map[string]any),
	}
	collect := func(a slog.Attr, groups []string) {
		if a.Key == "module" && len(groups) == 0 {
			entry.Module = a.Value.String()
			return
		}
		flattenAttr(entry.Attributes, groups, a)
	}
	for _, a := range h.attrs {
		collect(a, nil)
	}
	r.Attrs(func(a slog.Attr) bool {
		collect(a, h.groups)
		return true
	})
	if len(entry.Attributes) == 0 {
		entry.Attributes = nil
	}

	buf.Write(entry)
	if callback != nil {
		callback(entry)
	}
	return nil
}

// WithAttrs implements slog.Handler.
func (h *BufferHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append(slices.Clone(h.attrs), attrs...)
	return &next
}

// WithGroup implements slog.Handler.
func (h *BufferHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.groups = append(slices.Clone(h.groups), name)
	return &next
}

func flattenAttr(dst map[string]any, groups []string, a slog.Attr) {
	key := a.Key
	if len(groups) > 0 {
		key = strings.Join(groups, ".") + "." + key
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindGroup:
		sub := append(slices.Clone(groups), a.Key)
		for _, ga := range v.Group() {
			flattenAttr(dst, sub, ga)
		}
	case slog.KindTime:
		dst[key] = v.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = v.Duration().String()
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = v.Any()
		}
	default:
		dst[key] = v.Any()
	}
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	default:
		return "debug"
	}
}

// FormatLogLine renders an entry as a single human-readable line.
func FormatLogLine(entry LogEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s",
		entry.Timestamp.Format(time.RFC3339Nano),
		strings.ToUpper(entry.Level),
		entry.Module,
		entry.Message,
	)

	keys := make([]string, 0, len(entry.Attributes))
	for k := range entry.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry.Attributes[k])
	}
	return sb.String()
}
