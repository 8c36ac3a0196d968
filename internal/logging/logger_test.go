package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

// resetModules swaps in a fresh logger table writing to buf.
func resetModules(t *testing.T, buf *bytes.Buffer) {
	t.Helper()
	prev := std
	std = newModules()
	std.out = buf
	t.Cleanup(func() { std = prev })
}

func TestModuleLevelOverride(t *testing.T) {
	var buf bytes.Buffer
	resetModules(t, &buf)

	Initialize(Config{
		Level:  "info",
		Format: "text",
		Modules: map[string]string{
			"eventbus": "debug",
			"api":      "warn",
		},
	})

	tests := []struct {
		module    string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{"eventbus", true, true, true},
		{"api", false, false, true},
		{"sim", false, true, true},
	}

	ctx := context.Background()
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			h := GetLogger(tt.module).Handler()
			if got := h.Enabled(ctx, slog.LevelDebug); got != tt.wantDebug {
				t.Errorf("Debug enabled = %v, want %v", got, tt.wantDebug)
			}
			if got := h.Enabled(ctx, slog.LevelInfo); got != tt.wantInfo {
				t.Errorf("Info enabled = %v, want %v", got, tt.wantInfo)
			}
			if got := h.Enabled(ctx, slog.LevelWarn); got != tt.wantWarn {
				t.Errorf("Warn enabled = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	var buf bytes.Buffer
	resetModules(t, &buf)

	before := GetLogger("eventbus")
	if before.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("logger created before Initialize should default to info")
	}

	Initialize(Config{Level: "info", Modules: map[string]string{"eventbus": "debug"}})

	after := GetLogger("eventbus")
	if after != before {
		t.Error("GetLogger() returned a new logger after Initialize")
	}
	if !after.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("cached logger did not pick up the module level")
	}
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	resetModules(t, &buf)
	Initialize(Config{Level: "info"})

	logger := GetLogger("sim")
	if err := SetLevel("sim", "debug"); err != nil {
		t.Fatalf("SetLevel() failed: %v", err)
	}
	logger.Debug("after raise")
	if !strings.Contains(buf.String(), "after raise") {
		t.Errorf("debug record missing after SetLevel. Output: %s", buf.String())
	}

	if err := SetLevel("sim", "loud"); err == nil {
		t.Error("SetLevel() with unknown level should fail")
	}
}

func TestTextOutputCarriesModule(t *testing.T) {
	var buf bytes.Buffer
	resetModules(t, &buf)
	Initialize(Config{Level: "debug", Format: "text"})

	GetLogger("eventbus").Debug("Channel created", "type_id", 3)

	out := buf.String()
	if !strings.Contains(out, "module=eventbus") || !strings.Contains(out, "type_id=3") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestHistoryCapture(t *testing.T) {
	var buf bytes.Buffer
	resetModules(t, &buf)
	Initialize(Config{Level: "info"})

	var sunk []Entry
	SetSink(func(e Entry) { sunk = append(sunk, e) })
	t.Cleanup(func() { SetSink(nil) })

	GetLogger("sim").Info("Frame processed", "frame", 3, slog.Group("arena", "used", 16))

	entries := Recent()
	if len(entries) != 1 {
		t.Fatalf("Recent() returned %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Module != "sim" || e.Level != "info" || e.Message != "Frame processed" {
		t.Errorf("entry = %+v", e)
	}
	if e.Attributes["frame"] != int64(3) {
		t.Errorf("frame attribute = %v (%T), want int64 3", e.Attributes["frame"], e.Attributes["frame"])
	}
	if e.Attributes["arena.used"] != int64(16) {
		t.Errorf("arena.used attribute = %v, want 16", e.Attributes["arena.used"])
	}
	if _, ok := e.Attributes["module"]; ok {
		t.Error("module leaked into attributes")
	}
	if len(sunk) != 1 {
		t.Errorf("sink received %d entries, want 1", len(sunk))
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(3)
	for i := range 5 {
		h.Add(Entry{Message: fmt.Sprintf("m%d", i)})
	}

	got := h.Entries()
	if len(got) != 3 || h.Len() != 3 {
		t.Fatalf("history holds %d entries, want 3", len(got))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if got[i].Message != want {
			t.Errorf("entry %d = %q, want %q", i, got[i].Message, want)
		}
	}
}

func TestMultiHandlerRespectsEachLevel(t *testing.T) {
	var buf bytes.Buffer
	debug := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	info := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})

	logger := slog.New(NewMultiHandler(debug, info)).With("module", "test")
	logger.Debug("debug only")
	logger.Info("both")

	out := buf.String()
	if n := strings.Count(out, "debug only"); n != 1 {
		t.Errorf("debug record written %d times, want 1", n)
	}
	if n := strings.Count(out, "both"); n != 2 {
		t.Errorf("info record written %d times, want 2", n)
	}
}

func TestJournalFields(t *testing.T) {
	fields := map[string]string{}
	journalFields(fields, "", slog.Int("type_id", 4))
	journalFields(fields, "", slog.Float64("ratio", 0.5))
	journalFields(fields, "", slog.Bool("closed", true))
	journalFields(fields, "", slog.Group("arena", slog.Int("used", 64)))
	journalFields(fields, "bus_", slog.String("policy", "posted"))

	want := map[string]string{
		"TYPE_ID":    "4",
		"RATIO":      "0.5",
		"CLOSED":     "true",
		"ARENA_USED": "64",
		"BUS_POLICY": "posted",
	}
	for k, v := range want {
		if fields[k] != v {
			t.Errorf("fields[%s] = %q, want %q", k, fields[k], v)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
		ok    bool
	}{
		{"debug", slog.LevelDebug, true},
		{"INFO", slog.LevelInfo, true},
		{"warning", slog.LevelWarn, true},
		{" error ", slog.LevelError, true},
		{"trace", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseLevel(tt.input)
		if ok != tt.ok || (ok && got != tt.want) {
			t.Errorf("parseLevel(%q) = %v, %v; want %v, %v", tt.input, got, ok, tt.want, tt.ok)
		}
	}
}
