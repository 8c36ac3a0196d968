package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// CaptureHandler is a slog.Handler that stores records in a History and
// forwards them to an optional sink.
type CaptureHandler struct {
	history *History
	level   slog.Leveler
	sink    EntrySink
	module  string
	attrs   []slog.Attr
	prefix  string
}

// NewCaptureHandler creates a handler writing into history.
func NewCaptureHandler(history *History, level slog.Leveler, sink EntrySink) *CaptureHandler {
	return &CaptureHandler{history: history, level: level, sink: sink, module: "app"}
}

// Enabled implements slog.Handler.
func (h *CaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	e := Entry{
		Time:       r.Time,
		Level:      strings.ToLower(r.Level.String()),
		Module:     h.module,
		Message:    r.Message,
		Attributes: make(map[string]any, len(h.attrs)+r.NumAttrs()),
	}
	for _, a := range h.attrs {
		flatten(e.Attributes, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		if a.Key == "module" {
			e.Module = a.Value.String()
			return true
		}
		flatten(e.Attributes, h.prefix, a)
		return true
	})

	h.history.Add(e)
	if h.sink != nil {
		h.sink(e)
	}
	return nil
}

// WithAttrs implements slog.Handler. A "module" attribute names the entry's
// module instead of becoming an attribute.
func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == "module" && h.prefix == "" {
			c.module = a.Value.String()
			continue
		}
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		c.attrs = append(c.attrs, a)
	}
	return &c
}

// WithGroup implements slog.Handler.
func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := *h
	c.prefix = h.prefix + name + "."
	return &c
}

// flatten stores a under dotted keys.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := prefix + a.Key

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			flatten(dst, key+".", ga)
		}
	case slog.KindTime:
		dst[key] = a.Value.Time().Format(time.RFC3339Nano)
	case slog.KindDuration:
		dst[key] = a.Value.Duration().String()
	case slog.KindAny:
		if err, ok := a.Value.Any().(error); ok {
			dst[key] = err.Error()
		} else {
			dst[key] = a.Value.Any()
		}
	default:
		dst[key] = a.Value.Any()
	}
}
