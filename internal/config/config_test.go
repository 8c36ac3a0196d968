package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	Port       string   `toml:"server.port" env:"SERVER_PORT"`
	Watch      bool     `toml:"sim.watch" env:"SIM_WATCH"`
	Frames     int      `toml:"sim.frames" env:"SIM_FRAMES"`
	Ratio      float64  `toml:"sim.ratio" env:"SIM_RATIO"`
	Modules    []string `toml:"logging.enabled" env:"LOGGING_ENABLED"`
	Untagged   string
	unexported string `toml:"server.hidden"`
}

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "framebus.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

const sampleTOML = `
[server]
port = ":9000"
hidden = "secret"

[sim]
watch = true
frames = 120
ratio = 2

[logging]
enabled = ["eventbus", "sim"]
`

func TestLoadConfigFromTOML(t *testing.T) {
	opts := &testOptions{Config: writeTOML(t, sampleTOML)}

	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if opts.Port != ":9000" {
		t.Errorf("Port = %q, want :9000", opts.Port)
	}
	if !opts.Watch {
		t.Error("Watch = false, want true")
	}
	if opts.Frames != 120 {
		t.Errorf("Frames = %d, want 120", opts.Frames)
	}
	if opts.Ratio != 2 {
		t.Errorf("Ratio = %v, want 2", opts.Ratio)
	}
	if !reflect.DeepEqual(opts.Modules, []string{"eventbus", "sim"}) {
		t.Errorf("Modules = %v", opts.Modules)
	}
	if opts.unexported != "" {
		t.Error("unexported field was set")
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	t.Setenv("FRAMEBUS_SERVER_PORT", ":7000")
	t.Setenv("FRAMEBUS_SIM_WATCH", "false")
	t.Setenv("FRAMEBUS_LOGGING_ENABLED", "api, metrics")

	opts := &testOptions{Config: writeTOML(t, sampleTOML)}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if opts.Port != ":7000" {
		t.Errorf("Port = %q, want env value", opts.Port)
	}
	if opts.Watch {
		t.Error("Watch = true, want env false")
	}
	if opts.Frames != 120 {
		t.Errorf("Frames = %d, want TOML value 120", opts.Frames)
	}
	if !reflect.DeepEqual(opts.Modules, []string{"api", "metrics"}) {
		t.Errorf("Modules = %v, want trimmed env list", opts.Modules)
	}
}

func TestLoadConfigChangedFlagsWin(t *testing.T) {
	t.Setenv("FRAMEBUS_SIM_FRAMES", "5")

	opts := &testOptions{Config: writeTOML(t, sampleTOML)}
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().StringVar(&opts.Port, "port", "", "")
	cmd.Flags().IntVar(&opts.Frames, "frames", 0, "")
	if err := cmd.Flags().Parse([]string{"--port", ":1234", "--frames", "9"}); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}
	if opts.Port != ":1234" {
		t.Errorf("Port = %q, want CLI value", opts.Port)
	}
	if opts.Frames != 9 {
		t.Errorf("Frames = %d, want CLI value over env and TOML", opts.Frames)
	}
	if !opts.Watch {
		t.Error("Watch should still come from TOML")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		toml string
		env  map[string]string
	}{
		{"wrong TOML type", "[sim]\nframes = \"many\"\n", nil},
		{"bad env int", "", map[string]string{"FRAMEBUS_SIM_FRAMES": "many"}},
		{"broken TOML", "[sim\n", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			opts := &testOptions{Config: writeTOML(t, tt.toml)}
			if err := LoadConfig(opts, nil); err == nil {
				t.Error("LoadConfig() succeeded, want error")
			}
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	opts := &testOptions{Config: filepath.Join(t.TempDir(), "absent.toml"), Port: ":8090"}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig() with a missing file failed: %v", err)
	}
	if opts.Port != ":8090" {
		t.Errorf("default Port overwritten: %q", opts.Port)
	}
}

func TestLoadConfigRejectsNonPointer(t *testing.T) {
	if err := LoadConfig(testOptions{}, nil); err == nil {
		t.Error("LoadConfig() accepted a struct value")
	}
}

func TestFlagName(t *testing.T) {
	tests := map[string]string{
		"Port":                "port",
		"SimTickInterval":     "sim-tick-interval",
		"BusPayloadArenaSize": "bus-payload-arena-size",
	}
	for in, want := range tests {
		if got := flagName(in); got != want {
			t.Errorf("flagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLookupPath(t *testing.T) {
	doc := map[string]any{
		"root": "r",
		"a":    map[string]any{"b": map[string]any{"c": int64(3)}, "s": "x"},
	}

	tests := []struct {
		path   string
		want   any
		wantOK bool
	}{
		{"root", "r", true},
		{"a.s", "x", true},
		{"a.b.c", int64(3), true},
		{"a.missing", nil, false},
		{"root.child", nil, false},
	}
	for _, tt := range tests {
		got, ok := lookupPath(doc, tt.path)
		if ok != tt.wantOK || got != tt.want {
			t.Errorf("lookupPath(%q) = %v, %v; want %v, %v", tt.path, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeTOML(t, `
[logging]
level = "debug"

[logging.modules]
eventbus = "warn"
`)

	cfg, err := LoadLoggingConfig(path)
	if err != nil {
		t.Fatalf("LoadLoggingConfig() failed: %v", err)
	}
	if cfg.Level != "debug" || cfg.Format != "text" {
		t.Errorf("cfg = %+v, want debug level with default text format", cfg)
	}
	if cfg.Modules["eventbus"] != "warn" {
		t.Errorf("module override missing: %v", cfg.Modules)
	}

	cfg, err = LoadLoggingConfig("")
	if err != nil || cfg.Level != "info" {
		t.Errorf("LoadLoggingConfig(\"\") = %+v, %v; want defaults", cfg, err)
	}
}
