package logging

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/journal"
)

// SyslogIdentifier tags every journal entry written by this process.
const SyslogIdentifier = "framebus"

// JournalHandler is a slog.Handler that writes to the systemd journal.
type JournalHandler struct {
	level  slog.Leveler
	fields map[string]string
	prefix string
}

// NewJournalHandler creates a journal handler filtering below level.
func NewJournalHandler(level slog.Leveler) *JournalHandler {
	return &JournalHandler{level: level, fields: map[string]string{}}
}

// Enabled implements slog.Handler.
func (h *JournalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle implements slog.Handler.
func (h *JournalHandler) Handle(_ context.Context, r slog.Record) error {
	fields := make(map[string]string, len(h.fields)+r.NumAttrs()+1)
	for k, v := range h.fields {
		fields[k] = v
	}
	fields["SYSLOG_IDENTIFIER"] = SyslogIdentifier
	r.Attrs(func(a slog.Attr) bool {
		journalFields(fields, h.prefix, a)
		return true
	})
	return journal.Send(r.Message, journalPriority(r.Level), fields)
}

// WithAttrs implements slog.Handler.
func (h *JournalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make(map[string]string, len(h.fields)+len(attrs))
	for k, v := range h.fields {
		fields[k] = v
	}
	for _, a := range attrs {
		journalFields(fields, h.prefix, a)
	}
	return &JournalHandler{level: h.level, fields: fields, prefix: h.prefix}
}

// WithGroup implements slog.Handler.
func (h *JournalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &JournalHandler{level: h.level, fields: h.fields, prefix: h.prefix + name + "_"}
}

func journalPriority(level slog.Level) journal.Priority {
	switch {
	case level >= slog.LevelError:
		return journal.PriErr
	case level >= slog.LevelWarn:
		return journal.PriWarning
	case level >= slog.LevelInfo:
		return journal.PriInfo
	default:
		return journal.PriDebug
	}
}

// journalFields converts a into upper-case journal fields. Group members are
// joined with underscores.
func journalFields(fields map[string]string, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	key := strings.ToUpper(prefix + a.Key)

	switch a.Value.Kind() {
	case slog.KindGroup:
		for _, ga := range a.Value.Group() {
			journalFields(fields, prefix+a.Key+"_", ga)
		}
	case slog.KindInt64:
		fields[key] = strconv.FormatInt(a.Value.Int64(), 10)
	case slog.KindUint64:
		fields[key] = strconv.FormatUint(a.Value.Uint64(), 10)
	case slog.KindFloat64:
		fields[key] = strconv.FormatFloat(a.Value.Float64(), 'f', -1, 64)
	case slog.KindBool:
		fields[key] = strconv.FormatBool(a.Value.Bool())
	case slog.KindTime:
		fields[key] = a.Value.Time().Format(time.RFC3339Nano)
	default:
		fields[key] = a.Value.String()
	}
}

// IsJournalAvailable reports whether journald is reachable.
func IsJournalAvailable() bool {
	return journal.Enabled()
}
