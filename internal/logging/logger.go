package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultHistorySize = 512

// Config selects the global level, output format and per-module overrides.
type Config struct {
	Level   string            `toml:"level" json:"level"`
	Format  string            `toml:"format" json:"format"`
	Modules map[string]string `toml:"modules" json:"modules,omitempty"`
}

// modules is the process-wide logger table.
type modules struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	global      *slog.LevelVar
	history     *History
	sink        EntrySink
	out         io.Writer
}

var std = newModules()

func newModules() *modules {
	return &modules{
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
		global:  &slog.LevelVar{},
		history: NewHistory(defaultHistorySize),
		out:     os.Stdout,
	}
}

// Initialize applies cfg to every existing and future module logger and
// installs a matching slog default logger.
func Initialize(cfg Config) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.cfg = cfg
	std.initialized = true
	std.global.Set(levelOr(cfg.Level, slog.LevelInfo))

	// Loggers created earlier keep their pointer; only level and handler
	// chain are refreshed.
	for module, lv := range std.levels {
		lv.Set(std.levelFor(module))
		std.loggers[module] = slog.New(std.handler(lv)).With("module", module)
	}

	slog.SetDefault(slog.New(std.handler(std.global)))
}

// GetLogger returns the logger for module, creating it on first use.
func GetLogger(module string) *slog.Logger {
	std.mu.RLock()
	logger, ok := std.loggers[module]
	std.mu.RUnlock()
	if ok {
		return logger
	}

	std.mu.Lock()
	defer std.mu.Unlock()

	if logger, ok := std.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(std.levelFor(module))
	logger = slog.New(std.handler(lv)).With("module", module)
	std.loggers[module] = logger
	std.levels[module] = lv
	return logger
}

// SetLevel changes the level of one module at runtime. An empty module name
// changes the global level.
func SetLevel(module, level string) error {
	parsed, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	std.mu.Lock()
	defer std.mu.Unlock()

	if module == "" {
		std.global.Set(parsed)
		std.cfg.Level = level
		return nil
	}
	if std.cfg.Modules == nil {
		std.cfg.Modules = make(map[string]string)
	}
	std.cfg.Modules[module] = level
	if lv, ok := std.levels[module]; ok {
		lv.Set(parsed)
	}
	return nil
}

// Recent returns History entries, oldest first.
func Recent() []Entry {
	return std.history.Entries()
}

// SetSink registers a function called for every captured entry. Pass nil to
// remove it.
func SetSink(sink EntrySink) {
	std.mu.Lock()
	defer std.mu.Unlock()
	std.sink = sink
}

func currentSink() EntrySink {
	std.mu.RLock()
	defer std.mu.RUnlock()
	return std.sink
}

// levelFor resolves the effective level of module. Caller holds mu.
func (m *modules) levelFor(module string) slog.Level {
	if !m.initialized {
		return slog.LevelInfo
	}
	level := levelOr(m.cfg.Level, slog.LevelInfo)
	if s, ok := m.cfg.Modules[module]; ok {
		level = levelOr(s, level)
	}
	return level
}

// handler builds the output chain for one level variable.
func (m *modules) handler(level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if writerAvailable(m.out) {
		if m.cfg.Format == "json" {
			handlers = append(handlers, slog.NewJSONHandler(m.out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(m.out, opts))
		}
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewCaptureHandler(m.history, level, currentSinkFunc))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return NewMultiHandler(handlers...)
}

// currentSinkFunc defers the sink lookup to log time so SetSink applies to
// loggers created before it.
func currentSinkFunc(e Entry) {
	if sink := currentSink(); sink != nil {
		sink(e)
	}
}

// writerAvailable reports whether w is worth writing to. /dev/null and closed
// descriptors are skipped.
func writerAvailable(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return w != nil
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&os.ModeCharDevice != 0 || mode&os.ModeNamedPipe != 0 ||
		mode&os.ModeSocket != 0 || mode.IsRegular()
}

func levelOr(s string, fallback slog.Level) slog.Level {
	if l, ok := parseLevel(s); ok {
		return l
	}
	return fallback
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
