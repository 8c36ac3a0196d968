package sim

import (
	"fmt"
	"slices"

	"github.com/smazurov/framebus/pkg/eventbus"
)

// Collision is posted when two bodies touch.
type Collision struct {
	Frame   uint64
	A, B    uint32
	Impulse float64
}

// Damage is posted when an entity takes damage.
type Damage struct {
	Frame  uint64
	Target uint32
	Source uint32
	Amount float32
}

// Spawn is posted when an entity enters the world.
type Spawn struct {
	Frame   uint64
	Entity  uint32
	X, Y, Z float32
}

// Tick is posted once per frame by clock producers.
type Tick struct {
	Frame   uint64
	Elapsed int64
}

// kind binds an event name to its Go type.
type kind struct {
	name        string
	post        func(b *eventbus.Bus, frame uint64, i int) error
	subscribe   func(b *eventbus.Bus, c *consumer) (bool, error)
	unsubscribe func(b *eventbus.Bus, c *consumer) bool
	typeID      func(b *eventbus.Bus) eventbus.TypeID
}

func newKind[T any](name string, newEvent func(frame uint64, i int) T, method func(*Accumulator, T), fn func(T)) *kind {
	return &kind{
		name: name,
		post: func(b *eventbus.Bus, frame uint64, i int) error {
			return eventbus.Post(b, newEvent(frame, i))
		},
		subscribe: func(b *eventbus.Bus, c *consumer) (bool, error) {
			if c.binding == bindFunc {
				return eventbus.SubscribeFunc(b, fn)
			}
			return eventbus.SubscribeMethod(b, c.acc, method)
		},
		unsubscribe: func(b *eventbus.Bus, c *consumer) bool {
			if c.binding == bindFunc {
				return eventbus.UnsubscribeFunc(b, fn)
			}
			return eventbus.UnsubscribeMethod(b, c.acc, method)
		},
		typeID: func(b *eventbus.Bus) eventbus.TypeID {
			return eventbus.TypeIDOf[T](b)
		},
	}
}

var kinds = map[string]*kind{
	"collision": newKind("collision",
		func(frame uint64, i int) Collision {
			return Collision{Frame: frame, A: uint32(i), B: uint32(i + 1), Impulse: float64(i%7) + 0.5}
		},
		(*Accumulator).OnCollision, tallyCollision),
	"damage": newKind("damage",
		func(frame uint64, i int) Damage {
			return Damage{Frame: frame, Target: uint32(i), Source: uint32(frame), Amount: float32(i%10 + 1)}
		},
		(*Accumulator).OnDamage, tallyDamage),
	"spawn": newKind("spawn",
		func(frame uint64, i int) Spawn {
			return Spawn{Frame: frame, Entity: uint32(frame)<<16 | uint32(i), X: float32(i), Y: 0, Z: float32(frame)}
		},
		(*Accumulator).OnSpawn, tallySpawn),
	"tick": newKind("tick",
		func(frame uint64, i int) Tick {
			return Tick{Frame: frame, Elapsed: int64(i)}
		},
		(*Accumulator).OnTick, tallyTick),
}

// Kinds returns the event names a scenario may use.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for name := range kinds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func lookupKind(name string) (*kind, error) {
	k, ok := kinds[name]
	if !ok {
		return nil, fmt.Errorf("unknown event %q, want one of %v", name, Kinds())
	}
	return k, nil
}
