package eventbus

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/delegate"
)

// Bus routes posted records to per-type channels and delivers them in
// ProcessAll. It owns the payload arena (record blocks) and the heap arena
// (channel headers and subscriber nodes).
//
// A Bus is not safe for concurrent use.
type Bus struct {
	cfg      Config
	registry *Registry
	payload  *arena.Arena
	heap     *arena.Arena
	channels []dispatcher
	count    int
	logger   *slog.Logger
	hooks    Hooks

	processing  bool
	closed      bool
	released    bool
	posted      uint64
	failedPosts uint64
	delivered   uint64
	passes      uint64
}

// New creates a bus with both arenas allocated and an empty channel table.
func New(cfg Config, opts ...Option) (*Bus, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bus{
		cfg:      cfg,
		registry: NewRegistry(),
		payload:  arena.New(cfg.PayloadArenaSize),
		heap:     arena.New(cfg.HeapArenaSize),
		channels: make([]dispatcher, cfg.MaxChannels),
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.logger.Debug("Event bus created",
		"max_channels", cfg.MaxChannels,
		"payload_arena", cfg.PayloadArenaSize,
		"heap_arena", cfg.HeapArenaSize,
		"block_capacity", cfg.BlockCapacity,
		"policy", cfg.Policy.String())
	return b, nil
}

// Config returns the configuration the bus was created with.
func (b *Bus) Config() Config {
	return b.cfg
}

// Registry returns the type registry used by the bus.
func (b *Bus) Registry() *Registry {
	return b.registry
}

// TypeIDOf returns the TypeID of T on b's registry, assigning it on first use.
func TypeIDOf[T any](b *Bus) TypeID {
	return IDOf[T](b.registry)
}

// lookup returns the channel for T without creating it.
func lookup[T any](b *Bus) *channel[T] {
	id, ok := b.registry.Lookup(reflect.TypeFor[T]())
	if !ok || int(id) >= len(b.channels) {
		return nil
	}
	ch, _ := b.channels[id].(*channel[T])
	return ch
}

// getOrCreate returns the channel for T, creating and registering it on
// first use.
func getOrCreate[T any](b *Bus) (*channel[T], error) {
	if b.closed {
		return nil, ErrClosed
	}

	id := IDOf[T](b.registry)
	if int(id) >= len(b.channels) {
		err := NewError(CodeCapacityExceeded,
			fmt.Sprintf("type id %d exceeds channel table of %d", id, len(b.channels)),
			map[string]any{"type_id": id, "type": reflect.TypeFor[T]().String(), "max_channels": len(b.channels)})
		b.logger.Warn("Channel table full", "type_id", id, "type", reflect.TypeFor[T]().String(),
			"max_channels", len(b.channels))
		return nil, err
	}

	if d := b.channels[id]; d != nil {
		ch, ok := d.(*channel[T])
		if !ok {
			return nil, NewError(CodeInvalidConfig, "registry shared with a bus of different types",
				map[string]any{"type_id": id})
		}
		return ch, nil
	}

	if err := checkPlainData(reflect.TypeFor[T]()); err != nil {
		return nil, err
	}
	if err := b.heap.Reserve(channelHeaderSize[T]()); err != nil {
		b.logger.Warn("Heap arena exhausted creating channel", "type_id", id, "error", err)
		return nil, NewErrorWithCause(CodeOutOfMemory, "heap arena exhausted", err,
			map[string]any{"type_id": id, "arena": "heap"})
	}

	ch := newChannel[T](id, b.payload, b.heap, b.cfg.BlockCapacity, b.cfg.Policy)
	ch.closed = &b.closed
	b.channels[id] = ch
	b.count++

	info := ch.info()
	b.logger.Debug("Channel created", "type_id", id, "type", info.Type, "record_size", info.RecordSize)
	if b.hooks.ChannelCreated != nil {
		b.hooks.ChannelCreated(info)
	}
	return ch, nil
}

// Post copies ev into its channel for delivery on the next ProcessAll. It
// never invokes a subscriber. On error nothing was buffered.
//
// Every failure except ErrClosed reaches Hooks.PostFailed. When the channel
// could not be created the info carries only the type id and name.
func Post[T any](b *Bus, ev T) error {
	ch, err := getOrCreate[T](b)
	if err != nil {
		b.failedPosts++
		if b.hooks.PostFailed != nil && !errors.Is(err, ErrClosed) {
			b.hooks.PostFailed(ChannelInfo{
				ID:   IDOf[T](b.registry),
				Type: reflect.TypeFor[T]().String(),
			}, err)
		}
		return err
	}
	if err := ch.post(ev); err != nil {
		b.failedPosts++
		info := ch.info()
		wrapped := NewErrorWithCause(CodeOutOfMemory, "payload arena exhausted", err,
			map[string]any{"type_id": info.ID, "type": info.Type, "arena": "payload"})
		b.logger.Warn("Payload arena exhausted", "type_id", info.ID, "type", info.Type,
			"pending", info.Pending, "used", b.payload.Used(), "capacity", b.payload.Cap())
		if b.hooks.PostFailed != nil {
			b.hooks.PostFailed(info, wrapped)
		}
		return wrapped
	}
	b.posted++
	return nil
}

// Subscribe adds cb to T's channel, creating the channel if needed. It
// reports false without error when an equal callback is already subscribed.
func Subscribe[T any](b *Bus, cb delegate.Callback[T]) (bool, error) {
	if !cb.IsSet() {
		return false, ErrInvalidCallback
	}
	ch, err := getOrCreate[T](b)
	if err != nil {
		return false, err
	}
	added, err := ch.addSubscriber(cb)
	if err != nil {
		b.logger.Warn("Heap arena exhausted adding subscriber", "type_id", ch.id, "error", err)
		return false, NewErrorWithCause(CodeOutOfMemory, "heap arena exhausted", err,
			map[string]any{"type_id": ch.id, "arena": "heap"})
	}
	return added, nil
}

// SubscribeFunc subscribes a free function.
func SubscribeFunc[T any](b *Bus, fn func(T)) (bool, error) {
	return Subscribe(b, delegate.Func(fn))
}

// SubscribeMethod subscribes method m bound to obj.
func SubscribeMethod[O, T any](b *Bus, obj *O, m func(*O, T)) (bool, error) {
	return Subscribe(b, delegate.Method(obj, m))
}

// Unsubscribe removes cb from T's channel and reports whether it was found.
func Unsubscribe[T any](b *Bus, cb delegate.Callback[T]) bool {
	if b.closed {
		return false
	}
	ch := lookup[T](b)
	if ch == nil {
		return false
	}
	return ch.removeSubscriber(cb)
}

// UnsubscribeFunc removes a free-function subscription.
func UnsubscribeFunc[T any](b *Bus, fn func(T)) bool {
	return Unsubscribe(b, delegate.Func(fn))
}

// UnsubscribeMethod removes a bound-method subscription.
func UnsubscribeMethod[O, T any](b *Bus, obj *O, m func(*O, T)) bool {
	return Unsubscribe(b, delegate.Method(obj, m))
}

// ProcessAll dispatches every non-empty channel in id order and returns the
// number of records delivered. It is the only place subscribers run. Calls
// made from inside a subscriber return 0.
func (b *Bus) ProcessAll() int {
	if b.closed || b.processing {
		return 0
	}
	b.processing = true
	defer func() {
		b.processing = false
		if b.closed {
			b.release()
		}
	}()

	start := time.Now()
	records, channels := 0, 0
	// Channels created by subscribers during the pass are picked up because
	// the table is walked by index.
	for i := 0; i < len(b.channels) && !b.closed; i++ {
		d := b.channels[i]
		if d == nil || d.pendingRecords() == 0 {
			continue
		}
		records += d.dispatch()
		channels++
	}

	b.passes++
	b.delivered += uint64(records)

	pass := PassInfo{
		Pass:      b.passes,
		Channels:  channels,
		Records:   records,
		Duration:  time.Since(start),
		Remaining: b.Pending(),
	}
	if b.hooks.Processed != nil {
		b.hooks.Processed(pass)
	}
	return records
}

// Pending returns the number of buffered records across all channels.
func (b *Bus) Pending() int {
	n := 0
	for _, d := range b.channels {
		if d != nil {
			n += d.pendingRecords()
		}
	}
	return n
}

// ResetPayload reclaims the payload arena. It must be called at a
// processing boundary: it fails while any record is buffered or while
// ProcessAll is running.
func (b *Bus) ResetPayload() error {
	if b.closed {
		return ErrClosed
	}
	if b.processing {
		return NewError(CodePendingRecords, "cannot reset during ProcessAll", nil)
	}
	if n := b.Pending(); n > 0 {
		return NewError(CodePendingRecords,
			fmt.Sprintf("%d records still buffered", n), map[string]any{"pending": n})
	}

	before := b.payload.Stats()
	b.payload.Reset()
	b.logger.Debug("Payload arena reset", "used", before.Used, "allocations", before.Allocations)
	if b.hooks.PayloadReset != nil {
		b.hooks.PayloadReset(before)
	}
	return nil
}

// Channel returns details for the channel registered under id.
func (b *Bus) Channel(id TypeID) (ChannelInfo, bool) {
	if int(id) >= len(b.channels) || b.channels[id] == nil {
		return ChannelInfo{}, false
	}
	return b.channels[id].info(), true
}

// Stats returns a snapshot of counters and arena usage.
func (b *Bus) Stats() Stats {
	s := Stats{
		Channels:    b.count,
		MaxChannels: b.cfg.MaxChannels,
		Posted:      b.posted,
		FailedPosts: b.failedPosts,
		Delivered:   b.delivered,
		Passes:      b.passes,
		Closed:      b.closed,
		Payload:     b.payload.Stats(),
		Heap:        b.heap.Stats(),
		PerChannel:  make([]ChannelInfo, 0, b.count),
	}
	for _, d := range b.channels {
		if d == nil {
			continue
		}
		info := d.info()
		s.Pending += info.Pending
		s.PerChannel = append(s.PerChannel, info)
	}
	return s
}

// Teardown tears down every channel and releases both arenas. Buffered
// records are discarded. Further posts and subscriptions fail with ErrClosed.
//
// Called from a subscriber, the bus closes at once and no further channel is
// dispatched. Memory is released when ProcessAll returns.
func (b *Bus) Teardown() {
	if b.closed {
		return
	}
	b.closed = true
	if b.processing {
		b.logger.Debug("Event bus teardown deferred to end of pass")
		return
	}
	b.release()
}

func (b *Bus) release() {
	if b.released {
		return
	}
	b.released = true
	for _, d := range b.channels {
		if d != nil {
			d.teardown()
		}
	}
	b.payload.Release()
	b.heap.Release()
	b.logger.Debug("Event bus torn down", "channels", b.count, "passes", b.passes)
}
