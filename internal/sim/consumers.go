package sim

import "sync/atomic"

type binding uint8

const (
	bindMethod binding = iota
	bindFunc
)

func (b binding) String() string {
	if b == bindFunc {
		return "func"
	}
	return "method"
}

// Accumulator is a consumer bound by method. Each method consumer owns one.
type Accumulator struct {
	Received  uint64
	Sum       float64
	LastFrame uint64
}

func (a *Accumulator) record(frame uint64, v float64) {
	a.Received++
	a.Sum += v
	a.LastFrame = frame
}

// OnCollision sums impulses.
func (a *Accumulator) OnCollision(ev Collision) { a.record(ev.Frame, ev.Impulse) }

// OnDamage sums damage dealt.
func (a *Accumulator) OnDamage(ev Damage) { a.record(ev.Frame, float64(ev.Amount)) }

// OnSpawn counts spawned entities.
func (a *Accumulator) OnSpawn(ev Spawn) { a.record(ev.Frame, 1) }

// OnTick sums elapsed ticks.
func (a *Accumulator) OnTick(ev Tick) { a.record(ev.Frame, float64(ev.Elapsed)) }

// Function consumers are plain functions, so their counts are process wide.
var tallies struct {
	collision, damage, spawn, tick atomic.Uint64
}

func tallyCollision(Collision) { tallies.collision.Add(1) }
func tallyDamage(Damage)       { tallies.damage.Add(1) }
func tallySpawn(Spawn)         { tallies.spawn.Add(1) }
func tallyTick(Tick)           { tallies.tick.Add(1) }

// Tally returns how many records the function consumers of event have
// received in this process.
func Tally(event string) uint64 {
	switch event {
	case "collision":
		return tallies.collision.Load()
	case "damage":
		return tallies.damage.Load()
	case "spawn":
		return tallies.spawn.Load()
	case "tick":
		return tallies.tick.Load()
	default:
		return 0
	}
}

// consumer is one subscription slot of a scenario.
type consumer struct {
	name       string
	kind       *kind
	binding    binding
	leaveAfter uint64
	acc        *Accumulator
	subscribed bool
	duplicate  bool
	tallyBase  uint64
}

// ConsumerReport describes one consumer.
type ConsumerReport struct {
	Name       string  `json:"name" doc:"Consumer name"`
	Event      string  `json:"event" doc:"Subscribed event"`
	Binding    string  `json:"binding" enum:"method,func" doc:"How the callback is bound"`
	Subscribed bool    `json:"subscribed" doc:"Whether the consumer is currently subscribed"`
	Duplicate  bool    `json:"duplicate" doc:"Whether the subscription was rejected as a duplicate"`
	Received   uint64  `json:"received" doc:"Records received"`
	Sum        float64 `json:"sum" doc:"Sum of the event's payload value"`
	LastFrame  uint64  `json:"last_frame" doc:"Frame of the last received record"`
}

func (c *consumer) report() ConsumerReport {
	r := ConsumerReport{
		Name:       c.name,
		Event:      c.kind.name,
		Binding:    c.binding.String(),
		Subscribed: c.subscribed,
		Duplicate:  c.duplicate,
	}
	if c.binding == bindFunc {
		r.Received = Tally(c.kind.name) - c.tallyBase
		return r
	}
	r.Received = c.acc.Received
	r.Sum = c.acc.Sum
	r.LastFrame = c.acc.LastFrame
	return r
}
