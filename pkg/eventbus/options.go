package eventbus

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/smazurov/framebus/pkg/arena"
)

// Defaults used by DefaultConfig.
const (
	DefaultMaxChannels      = 256
	DefaultPayloadArenaSize = 8 << 20
	DefaultHeapArenaSize    = 1 << 20
	DefaultBlockCapacity    = 1024
)

// Upper bounds accepted by Config.Validate.
const (
	MaxChannelLimit  = 1 << 16
	MaxArenaSize     = 1 << 30
	MaxBlockCapacity = 1 << 20
)

// Policy decides which buffered records a subscriber receives.
type Policy uint8

const (
	// DeliverToCurrent delivers every buffered record to the subscribers
	// present when ProcessAll runs. Unsubscribing before ProcessAll
	// suppresses records that were already buffered.
	DeliverToCurrent Policy = iota
	// DeliverAsPosted delivers each record to the subscribers present when
	// it was posted. An unsubscribed callback still receives what was
	// buffered before it left; a late subscriber misses what came before.
	DeliverAsPosted
)

// String returns the policy name used in configuration files.
func (p Policy) String() string {
	switch p {
	case DeliverAsPosted:
		return "posted"
	default:
		return "current"
	}
}

// ParsePolicy parses "current" or "posted".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "current":
		return DeliverToCurrent, nil
	case "posted":
		return DeliverAsPosted, nil
	default:
		return DeliverToCurrent, NewError(CodeInvalidConfig,
			fmt.Sprintf("unknown delivery policy %q", s), map[string]any{"policy": s})
	}
}

// Config sizes a bus. All values are fixed at creation.
type Config struct {
	MaxChannels      int    `toml:"max_channels" json:"max_channels"`
	PayloadArenaSize int    `toml:"payload_arena_size" json:"payload_arena_size"`
	HeapArenaSize    int    `toml:"heap_arena_size" json:"heap_arena_size"`
	BlockCapacity    int    `toml:"block_capacity" json:"block_capacity"`
	Policy           Policy `toml:"-" json:"-"`
}

// DefaultConfig returns the stock sizing: 256 channels, 8 MiB of payload,
// 1 MiB of heap and 1024 records per block.
func DefaultConfig() Config {
	return Config{
		MaxChannels:      DefaultMaxChannels,
		PayloadArenaSize: DefaultPayloadArenaSize,
		HeapArenaSize:    DefaultHeapArenaSize,
		BlockCapacity:    DefaultBlockCapacity,
		Policy:           DeliverToCurrent,
	}
}

// Validate checks that every size is positive and within its limit.
func (c Config) Validate() error {
	check := func(name string, v, limit int) error {
		if v <= 0 {
			return NewError(CodeInvalidConfig, name+" must be positive", map[string]any{name: v})
		}
		if v > limit {
			return NewError(CodeInvalidConfig, fmt.Sprintf("%s must be at most %d", name, limit),
				map[string]any{name: v, "limit": limit})
		}
		return nil
	}
	if err := check("max_channels", c.MaxChannels, MaxChannelLimit); err != nil {
		return err
	}
	if err := check("payload_arena_size", c.PayloadArenaSize, MaxArenaSize); err != nil {
		return err
	}
	if err := check("heap_arena_size", c.HeapArenaSize, MaxArenaSize); err != nil {
		return err
	}
	if err := check("block_capacity", c.BlockCapacity, MaxBlockCapacity); err != nil {
		return err
	}
	if c.Policy > DeliverAsPosted {
		return NewError(CodeInvalidConfig, "unknown delivery policy", map[string]any{"policy": int(c.Policy)})
	}
	return nil
}

// Hooks are called synchronously from inside bus operations. Every field is
// optional. Hooks must not call back into the bus.
type Hooks struct {
	ChannelCreated func(ChannelInfo)
	PostFailed     func(info ChannelInfo, err error)
	Processed      func(PassInfo)
	PayloadReset   func(before arena.Stats)
}

// Option configures a Bus.
type Option func(*Bus)

// WithRegistry shares a type registry between buses. By default every bus
// gets its own.
func WithRegistry(r *Registry) Option {
	return func(b *Bus) {
		if r != nil {
			b.registry = r
		}
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.logger = l
		}
	}
}

// WithHooks installs observation hooks.
func WithHooks(h Hooks) Option {
	return func(b *Bus) {
		b.hooks = h
	}
}
