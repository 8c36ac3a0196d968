package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/framebus/pkg/eventbus"
)

// Binding kinds for consumers.
const (
	BindMethod = "method"
	BindFunc   = "func"
)

// Bus is the [bus] table of a scenario file. Zero values take the library
// defaults.
type Bus struct {
	MaxChannels      int    `toml:"max_channels,omitempty" json:"max_channels,omitempty"`
	PayloadArenaSize int    `toml:"payload_arena_size,omitempty" json:"payload_arena_size,omitempty"`
	HeapArenaSize    int    `toml:"heap_arena_size,omitempty" json:"heap_arena_size,omitempty"`
	BlockCapacity    int    `toml:"block_capacity,omitempty" json:"block_capacity,omitempty"`
	Policy           string `toml:"policy,omitempty" json:"policy,omitempty" enum:"current,posted"`
}

// EventBus converts b into a bus configuration, filling defaults.
func (b Bus) EventBus() (eventbus.Config, error) {
	cfg := eventbus.DefaultConfig()
	if b.MaxChannels != 0 {
		cfg.MaxChannels = b.MaxChannels
	}
	if b.PayloadArenaSize != 0 {
		cfg.PayloadArenaSize = b.PayloadArenaSize
	}
	if b.HeapArenaSize != 0 {
		cfg.HeapArenaSize = b.HeapArenaSize
	}
	if b.BlockCapacity != 0 {
		cfg.BlockCapacity = b.BlockCapacity
	}
	policy, err := eventbus.ParsePolicy(b.Policy)
	if err != nil {
		return cfg, err
	}
	cfg.Policy = policy
	return cfg, cfg.Validate()
}

// Producer posts Count records of Event every Every frames.
type Producer struct {
	Name  string `toml:"name,omitempty" json:"name,omitempty"`
	Event string `toml:"event" json:"event"`
	Count int    `toml:"count" json:"count"`
	Every int    `toml:"every,omitempty" json:"every,omitempty"`
}

// Consumer subscribes to Event. A non-zero LeaveAfter unsubscribes it once
// that many frames have run.
type Consumer struct {
	Name       string `toml:"name,omitempty" json:"name,omitempty"`
	Event      string `toml:"event" json:"event"`
	Binding    string `toml:"binding,omitempty" json:"binding,omitempty" enum:"method,func"`
	LeaveAfter int    `toml:"leave_after,omitempty" json:"leave_after,omitempty"`
}

// Scenario is a simulation workload.
type Scenario struct {
	Name         string     `toml:"name" json:"name,omitempty"`
	Frames       int        `toml:"frames,omitempty" json:"frames,omitempty"`
	TickInterval string     `toml:"tick_interval,omitempty" json:"tick_interval,omitempty"`
	Bus          Bus        `toml:"bus" json:"bus,omitempty"`
	Producers    []Producer `toml:"producers" json:"producers,omitempty"`
	Consumers    []Consumer `toml:"consumers" json:"consumers,omitempty"`
}

// Tick returns the parsed tick interval. Zero means run frames back to back.
func (s Scenario) Tick() (time.Duration, error) {
	if s.TickInterval == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s.TickInterval)
	if err != nil {
		return 0, fmt.Errorf("invalid tick_interval %q: %w", s.TickInterval, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("tick_interval must not be negative, got %s", d)
	}
	return d, nil
}

// Validate checks structure. Event names are resolved by the simulator.
func (s Scenario) Validate() error {
	var errs []error
	if _, err := s.Bus.EventBus(); err != nil {
		errs = append(errs, fmt.Errorf("bus: %w", err))
	}
	if _, err := s.Tick(); err != nil {
		errs = append(errs, err)
	}
	if s.Frames < 0 {
		errs = append(errs, fmt.Errorf("frames must not be negative, got %d", s.Frames))
	}
	for i, p := range s.Producers {
		if p.Event == "" {
			errs = append(errs, fmt.Errorf("producer %d: event is required", i))
		}
		if p.Count <= 0 {
			errs = append(errs, fmt.Errorf("producer %d: count must be positive", i))
		}
		if p.Every < 0 {
			errs = append(errs, fmt.Errorf("producer %d: every must not be negative", i))
		}
	}
	for i, c := range s.Consumers {
		if c.Event == "" {
			errs = append(errs, fmt.Errorf("consumer %d: event is required", i))
		}
		switch c.Binding {
		case "", BindMethod, BindFunc:
		default:
			errs = append(errs, fmt.Errorf("consumer %d: unknown binding %q", i, c.Binding))
		}
		if c.LeaveAfter < 0 {
			errs = append(errs, fmt.Errorf("consumer %d: leave_after must not be negative", i))
		}
	}
	return errors.Join(errs...)
}

// LoadScenario reads and validates a scenario file.
func LoadScenario(path string) (Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scenario{}, fmt.Errorf("failed to read scenario: %w", err)
	}
	var s Scenario
	if err := toml.Unmarshal(data, &s); err != nil {
		return Scenario{}, fmt.Errorf("failed to parse scenario: %w", err)
	}
	if s.Name == "" {
		s.Name = filepath.Base(path)
	}
	if err := s.Validate(); err != nil {
		return Scenario{}, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return s, nil
}

// SaveScenario writes s to path, creating parent directories. The file is
// replaced atomically.
func SaveScenario(path string, s Scenario) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create scenario directory: %w", err)
	}
	data, err := toml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write scenario: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace scenario: %w", err)
	}
	return nil
}
