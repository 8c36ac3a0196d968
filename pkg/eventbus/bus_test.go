package eventbus

import (
	"errors"
	"testing"

	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/delegate"
)

type eventA struct {
	Seq   int64
	Value float64
}

type eventB struct {
	Seq int32
}

type withString struct {
	Name string
}

// recorder collects delivered records through a bound method.
type recorder[T any] struct {
	got []T
}

func (r *recorder[T]) On(ev T) { r.got = append(r.got, ev) }

func newTestBus(t *testing.T, cfg Config, opts ...Option) *Bus {
	t.Helper()
	bus, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	t.Cleanup(bus.Teardown)
	return bus
}

func smallConfig() Config {
	return Config{
		MaxChannels:      4,
		PayloadArenaSize: 4096,
		HeapArenaSize:    4096,
		BlockCapacity:    8,
	}
}

func mustSubscribe[T any](t *testing.T, bus *Bus, cb delegate.Callback[T]) {
	t.Helper()
	added, err := Subscribe(bus, cb)
	if err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}
	if !added {
		t.Fatal("Subscribe() reported duplicate for a new callback")
	}
}

func mustPost[T any](t *testing.T, bus *Bus, ev T) {
	t.Helper()
	if err := Post(bus, ev); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero block capacity", func(c *Config) { c.BlockCapacity = 0 }},
		{"huge block capacity", func(c *Config) { c.BlockCapacity = 1 << 61 }},
		{"huge payload arena", func(c *Config) { c.PayloadArenaSize = 1 << 62 }},
		{"huge heap arena", func(c *Config) { c.HeapArenaSize = MaxArenaSize + 1 }},
		{"too many channels", func(c *Config) { c.MaxChannels = MaxChannelLimit + 1 }},
		{"negative channels", func(c *Config) { c.MaxChannels = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			if _, err := New(cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestNew_AcceptsLimits(t *testing.T) {
	cfg := Config{
		MaxChannels:      MaxChannelLimit,
		PayloadArenaSize: 64,
		HeapArenaSize:    4096,
		BlockCapacity:    MaxBlockCapacity,
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() at the limits = %v, want nil", err)
	}
}

func TestScenarioA_PostOrderWithinOneChannel(t *testing.T) {
	bus := newTestBus(t, Config{
		MaxChannels:      1,
		PayloadArenaSize: 4096,
		HeapArenaSize:    4096,
		BlockCapacity:    DefaultBlockCapacity,
	})

	rec := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(rec, (*recorder[eventA]).On))

	for i := range 5 {
		mustPost(t, bus, eventA{Seq: int64(i), Value: float64(i) * 1.5})
	}
	if len(rec.got) != 0 {
		t.Fatal("Post() invoked a subscriber synchronously")
	}

	if n := bus.ProcessAll(); n != 5 {
		t.Errorf("ProcessAll() = %d, want 5", n)
	}
	if len(rec.got) != 5 {
		t.Fatalf("subscriber invoked %d times, want 5", len(rec.got))
	}
	for i, ev := range rec.got {
		if ev.Seq != int64(i) || ev.Value != float64(i)*1.5 {
			t.Errorf("record %d = %+v, out of post order", i, ev)
		}
	}
}

func TestScenarioB_TypesAreIsolated(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	y := &recorder[eventB]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))
	mustSubscribe(t, bus, delegate.Method(y, (*recorder[eventB]).On))

	mustPost(t, bus, eventA{Seq: 7})
	mustPost(t, bus, eventB{Seq: 9})
	bus.ProcessAll()

	if len(x.got) != 1 || x.got[0].Seq != 7 {
		t.Errorf("X received %+v, want one eventA{Seq:7}", x.got)
	}
	if len(y.got) != 1 || y.got[0].Seq != 9 {
		t.Errorf("Y received %+v, want one eventB{Seq:9}", y.got)
	}
}

func TestScenarioC_DeliverToCurrentSuppressesBuffered(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	cb := delegate.Method(x, (*recorder[eventA]).On)
	mustSubscribe(t, bus, cb)

	mustPost(t, bus, eventA{Seq: 1})
	if !Unsubscribe(bus, cb) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	mustPost(t, bus, eventA{Seq: 2})
	bus.ProcessAll()

	if len(x.got) != 0 {
		t.Errorf("X invoked %d times after unsubscribe, want 0", len(x.got))
	}
}

func TestScenarioC_DeliverAsPostedKeepsBuffered(t *testing.T) {
	cfg := smallConfig()
	cfg.Policy = DeliverAsPosted
	bus := newTestBus(t, cfg)

	x := &recorder[eventA]{}
	cb := delegate.Method(x, (*recorder[eventA]).On)
	mustSubscribe(t, bus, cb)

	mustPost(t, bus, eventA{Seq: 1})
	if !Unsubscribe(bus, cb) {
		t.Fatal("Unsubscribe() = false, want true")
	}
	if Unsubscribe(bus, cb) {
		t.Error("second Unsubscribe() = true, want false")
	}
	mustPost(t, bus, eventA{Seq: 2})
	bus.ProcessAll()

	if len(x.got) != 1 || x.got[0].Seq != 1 {
		t.Fatalf("X received %+v, want only the first record", x.got)
	}

	// The retired node is gone after the pass.
	mustPost(t, bus, eventA{Seq: 3})
	bus.ProcessAll()
	if len(x.got) != 1 {
		t.Errorf("X invoked again after retiring: %+v", x.got)
	}
}

func TestDeliverAsPosted_LateSubscriberAndResubscribe(t *testing.T) {
	cfg := smallConfig()
	cfg.Policy = DeliverAsPosted
	bus := newTestBus(t, cfg)

	early := &recorder[eventA]{}
	late := &recorder[eventA]{}
	earlyCb := delegate.Method(early, (*recorder[eventA]).On)
	mustSubscribe(t, bus, earlyCb)

	mustPost(t, bus, eventA{Seq: 1})
	mustSubscribe(t, bus, delegate.Method(late, (*recorder[eventA]).On))

	// Leave and come back while the first record is still buffered.
	Unsubscribe(bus, earlyCb)
	mustSubscribe(t, bus, earlyCb)
	mustPost(t, bus, eventA{Seq: 2})
	bus.ProcessAll()

	if len(late.got) != 1 || late.got[0].Seq != 2 {
		t.Errorf("late subscriber received %+v, want only Seq 2", late.got)
	}
	if len(early.got) != 2 || early.got[0].Seq != 1 || early.got[1].Seq != 2 {
		t.Errorf("resubscribed callback received %+v, want Seq 1 then 2 exactly once", early.got)
	}
}

func TestDeliverToCurrent_LateSubscriberSeesBuffered(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	mustPost(t, bus, eventA{Seq: 1})
	late := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(late, (*recorder[eventA]).On))
	bus.ProcessAll()

	if len(late.got) != 1 {
		t.Errorf("late subscriber invoked %d times, want 1", len(late.got))
	}
}

func TestSubscribe_DuplicateIsIdempotent(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))

	added, err := SubscribeMethod(bus, x, (*recorder[eventA]).On)
	if err != nil {
		t.Fatalf("duplicate Subscribe() error: %v", err)
	}
	if added {
		t.Error("duplicate Subscribe() = true, want false")
	}

	mustPost(t, bus, eventA{Seq: 1})
	mustPost(t, bus, eventA{Seq: 2})
	bus.ProcessAll()

	if len(x.got) != 2 {
		t.Errorf("subscriber invoked %d times, want 2", len(x.got))
	}
	info, _ := bus.Channel(TypeIDOf[eventA](bus))
	if info.Subscribers != 1 {
		t.Errorf("Subscribers = %d, want 1", info.Subscribers)
	}
}

func TestSubscribe_UnsetCallback(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	if _, err := Subscribe(bus, delegate.Callback[eventA]{}); !errors.Is(err, ErrInvalidCallback) {
		t.Errorf("Subscribe(unset) error = %v, want ErrInvalidCallback", err)
	}
}

func TestUnsubscribe_Unknown(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	if UnsubscribeMethod(bus, x, (*recorder[eventA]).On) {
		t.Error("Unsubscribe() on unknown type = true")
	}

	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))
	other := &recorder[eventA]{}
	if UnsubscribeMethod(bus, other, (*recorder[eventA]).On) {
		t.Error("Unsubscribe() of a different object = true")
	}
}

func TestDispatch_SubscriberOrderMostRecentFirst(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	var order []string
	first := &struct{ name string }{"first"}
	second := &struct{ name string }{"second"}
	note := func(o *struct{ name string }, _ eventA) { order = append(order, o.name) }

	mustSubscribe(t, bus, delegate.Method(first, note))
	mustSubscribe(t, bus, delegate.Method(second, note))

	mustPost(t, bus, eventA{})
	mustPost(t, bus, eventA{})
	bus.ProcessAll()

	want := []string{"second", "first", "second", "first"}
	if len(order) != len(want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("order = %v, want %v", order, want)
		}
	}
}

func TestDispatch_PostOrderAcrossBlocks(t *testing.T) {
	cfg := smallConfig()
	cfg.BlockCapacity = 4
	bus := newTestBus(t, cfg)

	x := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))

	for i := range 10 {
		mustPost(t, bus, eventA{Seq: int64(i)})
	}
	info, _ := bus.Channel(TypeIDOf[eventA](bus))
	if info.Blocks != 3 || info.State != "buffering" {
		t.Errorf("channel info = %+v, want 3 blocks buffering", info)
	}

	bus.ProcessAll()
	for i, ev := range x.got {
		if ev.Seq != int64(i) {
			t.Fatalf("record %d has Seq %d, want post order", i, ev.Seq)
		}
	}
	if len(x.got) != 10 {
		t.Errorf("received %d records, want 10", len(x.got))
	}
}

func TestProcessAll_NoPostsReturnsToEmpty(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))
	mustPost(t, bus, eventA{})
	bus.ProcessAll()

	if n := bus.ProcessAll(); n != 0 {
		t.Errorf("second ProcessAll() = %d, want 0", n)
	}
	if len(x.got) != 1 {
		t.Errorf("subscriber invoked %d times, want 1", len(x.got))
	}
	info, ok := bus.Channel(TypeIDOf[eventA](bus))
	if !ok || info.State != "empty" || info.Pending != 0 {
		t.Errorf("channel info = %+v, want empty", info)
	}
}

func TestPost_OutOfMemoryKeepsBufferedRecords(t *testing.T) {
	var failed []ChannelInfo
	bus := newTestBus(t, Config{
		MaxChannels:      2,
		PayloadArenaSize: 64,
		HeapArenaSize:    4096,
		BlockCapacity:    2,
	}, WithHooks(Hooks{
		PostFailed: func(info ChannelInfo, _ error) { failed = append(failed, info) },
	}))

	x := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))

	for i := range 4 {
		mustPost(t, bus, eventA{Seq: int64(i)})
	}

	err := Post(bus, eventA{Seq: 99})
	if !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Post() past capacity error = %v, want ErrOutOfMemory", err)
	}
	if !errors.Is(err, arena.ErrOutOfMemory) {
		t.Error("error does not wrap arena.ErrOutOfMemory")
	}
	if len(failed) != 1 {
		t.Errorf("PostFailed hook called %d times, want 1", len(failed))
	}

	bus.ProcessAll()
	if len(x.got) != 4 {
		t.Fatalf("received %d records, want the 4 buffered before exhaustion", len(x.got))
	}
	for i, ev := range x.got {
		if ev.Seq != int64(i) {
			t.Errorf("record %d corrupted: %+v", i, ev)
		}
	}
	if s := bus.Stats(); s.FailedPosts != 1 || s.Posted != 4 {
		t.Errorf("stats posted/failed = %d/%d, want 4/1", s.Posted, s.FailedPosts)
	}
}

func TestPost_BlockShrinksToFitArena(t *testing.T) {
	bus := newTestBus(t, Config{
		MaxChannels:      1,
		PayloadArenaSize: 48,
		HeapArenaSize:    4096,
		BlockCapacity:    1024,
	})

	for i := range 3 {
		mustPost(t, bus, eventA{Seq: int64(i)})
	}
	if err := Post(bus, eventA{}); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("fourth Post() error = %v, want ErrOutOfMemory", err)
	}
}

func TestPost_FullArenaWithLargeBlockCapacity(t *testing.T) {
	x := &recorder[eventB]{}
	bus := newTestBus(t, Config{
		MaxChannels:      1,
		PayloadArenaSize: 64,
		HeapArenaSize:    4096,
		BlockCapacity:    MaxBlockCapacity,
	})
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventB]).On))

	for i := range 8 {
		mustPost(t, bus, eventB{Seq: int32(i)})
	}
	if err := Post(bus, eventB{Seq: 8}); !errors.Is(err, ErrOutOfMemory) {
		t.Fatalf("Post() into a full arena error = %v, want ErrOutOfMemory", err)
	}

	s := bus.Stats()
	if s.Payload.Used != 64 || s.Payload.Allocations != 1 {
		t.Errorf("payload = %+v, want one 64-byte block", s.Payload)
	}
	if n := bus.ProcessAll(); n != 8 {
		t.Errorf("ProcessAll() = %d, want 8", n)
	}
	for i, ev := range x.got {
		if ev.Seq != int32(i) {
			t.Errorf("record %d = %+v", i, ev)
		}
	}
}

func TestHeapArenaExhausted(t *testing.T) {
	bus := newTestBus(t, Config{
		MaxChannels:      1,
		PayloadArenaSize: 4096,
		HeapArenaSize:    8,
		BlockCapacity:    8,
	})

	_, err := SubscribeFunc(bus, func(eventA) {})
	if !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("Subscribe() error = %v, want ErrOutOfMemory", err)
	}
}

func TestSubscriberSlotsAreReused(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	x := &recorder[eventA]{}
	cb := delegate.Method(x, (*recorder[eventA]).On)
	mustSubscribe(t, bus, cb)
	used := bus.Stats().Heap.Used

	for range 10 {
		Unsubscribe(bus, cb)
		mustSubscribe(t, bus, cb)
	}
	if got := bus.Stats().Heap.Used; got != used {
		t.Errorf("heap used grew from %d to %d on subscribe churn", used, got)
	}
}

func TestCapacityExceeded(t *testing.T) {
	cfg := smallConfig()
	cfg.MaxChannels = 1
	bus := newTestBus(t, cfg)

	mustPost(t, bus, eventA{})
	if err := Post(bus, eventB{}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Post() of second type error = %v, want ErrCapacityExceeded", err)
	}
	if _, err := SubscribeFunc(bus, func(eventB) {}); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("Subscribe() of second type error = %v, want ErrCapacityExceeded", err)
	}
}

func TestCapacityExceeded_FiresPostFailed(t *testing.T) {
	var failed []ChannelInfo
	cfg := smallConfig()
	cfg.MaxChannels = 1
	bus := newTestBus(t, cfg, WithHooks(Hooks{
		PostFailed: func(info ChannelInfo, err error) {
			if !errors.Is(err, ErrCapacityExceeded) {
				t.Errorf("hook error = %v, want ErrCapacityExceeded", err)
			}
			failed = append(failed, info)
		},
	}))

	mustPost(t, bus, eventA{})
	_ = Post(bus, eventB{})

	if len(failed) != 1 {
		t.Fatalf("PostFailed hook called %d times, want 1", len(failed))
	}
	if failed[0].ID != TypeIDOf[eventB](bus) || failed[0].Type != "eventbus.eventB" {
		t.Errorf("hook info = %+v, want eventB", failed[0])
	}
	if s := bus.Stats(); s.FailedPosts != 1 {
		t.Errorf("FailedPosts = %d, want 1", s.FailedPosts)
	}
}

func TestPost_RejectsPointerTypes(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	err := Post(bus, withString{Name: "x"})
	if !errors.Is(err, ErrNotPlainData) {
		t.Fatalf("Post() error = %v, want ErrNotPlainData", err)
	}
	var busErr *Error
	if !errors.As(err, &busErr) || busErr.Context["field"] != "eventbus.withString.Name" {
		t.Errorf("error context = %+v, want field path", busErr)
	}
}

func TestDispatch_PostFromSubscriberWaitsForNextPass(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	var got []int64
	echo := func(ev eventA) {
		got = append(got, ev.Seq)
		if ev.Seq < 2 {
			if err := Post(bus, eventA{Seq: ev.Seq + 1}); err != nil {
				t.Errorf("Post() from subscriber failed: %v", err)
			}
		}
	}
	if _, err := SubscribeFunc(bus, echo); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	mustPost(t, bus, eventA{Seq: 0})
	if n := bus.ProcessAll(); n != 1 {
		t.Errorf("first pass delivered %d, want 1", n)
	}
	if bus.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", bus.Pending())
	}
	bus.ProcessAll()
	bus.ProcessAll()

	if len(got) != 3 || got[2] != 2 {
		t.Errorf("got %v, want [0 1 2]", got)
	}
}

func TestDispatch_UnsubscribeDuringPass(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	victim := &recorder[eventA]{}
	victimCb := delegate.Method(victim, (*recorder[eventA]).On)
	mustSubscribe(t, bus, victimCb)

	killer := func(eventA) { Unsubscribe(bus, victimCb) }
	if _, err := SubscribeFunc(bus, killer); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	// The killer subscribed last, so it runs first on every record and the
	// victim never sees one.
	mustPost(t, bus, eventA{Seq: 1})
	mustPost(t, bus, eventA{Seq: 2})
	bus.ProcessAll()

	if len(victim.got) != 0 {
		t.Errorf("victim received %d records after being unsubscribed", len(victim.got))
	}
}

func TestDispatch_SubscribeDuringPassStartsAtNextRecord(t *testing.T) {
	bus := newTestBus(t, smallConfig())

	joiner := &recorder[eventA]{}
	joined := false
	host := func(eventA) {
		if !joined {
			joined = true
			if _, err := SubscribeMethod(bus, joiner, (*recorder[eventA]).On); err != nil {
				t.Errorf("Subscribe() during pass failed: %v", err)
			}
		}
	}
	if _, err := SubscribeFunc(bus, host); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	for i := range 3 {
		mustPost(t, bus, eventA{Seq: int64(i)})
	}
	bus.ProcessAll()

	if len(joiner.got) != 2 || joiner.got[0].Seq != 1 {
		t.Errorf("joiner received %+v, want records 1 and 2", joiner.got)
	}
}

func TestResetPayload(t *testing.T) {
	var resets int
	bus := newTestBus(t, smallConfig(), WithHooks(Hooks{
		PayloadReset: func(arena.Stats) { resets++ },
	}))

	mustPost(t, bus, eventA{})
	if err := bus.ResetPayload(); !errors.Is(err, ErrPendingRecords) {
		t.Fatalf("ResetPayload() with pending records error = %v, want ErrPendingRecords", err)
	}

	bus.ProcessAll()
	if err := bus.ResetPayload(); err != nil {
		t.Fatalf("ResetPayload() failed: %v", err)
	}
	if used := bus.Stats().Payload.Used; used != 0 {
		t.Errorf("payload used after reset = %d, want 0", used)
	}
	if resets != 1 {
		t.Errorf("PayloadReset hook called %d times, want 1", resets)
	}

	// The arena is reusable after reset.
	mustPost(t, bus, eventA{Seq: 5})
	if n := bus.ProcessAll(); n != 1 {
		t.Errorf("ProcessAll() after reset = %d, want 1", n)
	}
}

func TestHooks(t *testing.T) {
	var created []ChannelInfo
	var passes []PassInfo
	bus := newTestBus(t, smallConfig(), WithHooks(Hooks{
		ChannelCreated: func(info ChannelInfo) { created = append(created, info) },
		Processed:      func(p PassInfo) { passes = append(passes, p) },
	}))

	mustPost(t, bus, eventA{})
	mustPost(t, bus, eventA{})
	mustPost(t, bus, eventB{})
	bus.ProcessAll()

	if len(created) != 2 || created[0].Type != "eventbus.eventA" || created[0].RecordSize != 16 {
		t.Errorf("created = %+v, want eventA then eventB", created)
	}
	if len(passes) != 1 || passes[0].Records != 3 || passes[0].Channels != 2 {
		t.Errorf("passes = %+v, want one pass of 3 records over 2 channels", passes)
	}
}

func TestSharedRegistry(t *testing.T) {
	reg := NewRegistry()
	one := newTestBus(t, smallConfig(), WithRegistry(reg))
	two := newTestBus(t, smallConfig(), WithRegistry(reg))

	mustPost(t, one, eventB{})
	mustPost(t, two, eventA{})

	if TypeIDOf[eventB](one) != 0 || TypeIDOf[eventA](two) != 1 {
		t.Error("buses sharing a registry disagree on type ids")
	}
	if reg.Len() != 2 {
		t.Errorf("registry has %d types, want 2", reg.Len())
	}
}

func TestTeardown(t *testing.T) {
	bus, err := New(smallConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	x := &recorder[eventA]{}
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))
	mustPost(t, bus, eventA{})

	bus.Teardown()
	bus.Teardown()

	if err := Post(bus, eventA{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Post() after Teardown error = %v, want ErrClosed", err)
	}
	if n := bus.ProcessAll(); n != 0 {
		t.Errorf("ProcessAll() after Teardown = %d, want 0", n)
	}
	if UnsubscribeMethod(bus, x, (*recorder[eventA]).On) {
		t.Error("Unsubscribe() after Teardown = true")
	}
	if len(x.got) != 0 {
		t.Error("Teardown delivered buffered records")
	}
	if s := bus.Stats(); !s.Closed || s.Payload.Capacity != 0 {
		t.Errorf("stats after teardown = %+v", s)
	}
}

func TestTeardown_FromSubscriber(t *testing.T) {
	bus, err := New(smallConfig())
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	x := &recorder[eventA]{}
	y := &recorder[eventB]{}
	calls := 0
	mustSubscribe(t, bus, delegate.Method(x, (*recorder[eventA]).On))
	mustSubscribe(t, bus, delegate.Func(func(eventA) {
		calls++
		bus.Teardown()
	}))
	mustSubscribe(t, bus, delegate.Method(y, (*recorder[eventB]).On))
	mustPost(t, bus, eventA{Seq: 1})
	mustPost(t, bus, eventA{Seq: 2})
	mustPost(t, bus, eventB{Seq: 3})

	if n := bus.ProcessAll(); n != 1 {
		t.Errorf("ProcessAll() = %d, want 1 record before teardown", n)
	}
	if calls != 1 {
		t.Errorf("tearing subscriber called %d times, want 1", calls)
	}
	if len(x.got) != 1 {
		t.Errorf("eventA subscriber got %d records, want 1", len(x.got))
	}
	if len(y.got) != 0 {
		t.Error("channel after teardown was still dispatched")
	}

	s := bus.Stats()
	if !s.Closed || s.Payload.Capacity != 0 || s.Heap.Capacity != 0 {
		t.Errorf("stats after teardown = %+v, want closed with arenas released", s)
	}
	if err := Post(bus, eventA{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Post() after teardown error = %v, want ErrClosed", err)
	}
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    Policy
		wantErr bool
	}{
		{"", DeliverToCurrent, false},
		{"current", DeliverToCurrent, false},
		{"Posted", DeliverAsPosted, false},
		{"later", DeliverToCurrent, true},
	}

	for _, tt := range tests {
		got, err := ParsePolicy(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParsePolicy(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
