package eventbus

import (
	"reflect"
	"unsafe"

	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/delegate"
)

// ChannelState is the lifecycle state of a channel.
type ChannelState uint8

// Channel states.
const (
	StateEmpty ChannelState = iota
	StateBuffering
	StateDispatching
	StateTornDown
)

// String returns the state name.
func (s ChannelState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateBuffering:
		return "buffering"
	case StateDispatching:
		return "dispatching"
	case StateTornDown:
		return "torn_down"
	default:
		return "unknown"
	}
}

// dispatcher is the type-erased view the bus keeps of each channel.
type dispatcher interface {
	dispatch() int
	teardown()
	pendingRecords() int
	info() ChannelInfo
}

// channel buffers the records of one event type and fans them out.
type channel[T any] struct {
	id       TypeID
	name     string
	payload  *arena.Arena
	heap     *arena.Arena
	blockCap int
	stride   uintptr
	policy   Policy
	closed   *bool // the owning bus's closed flag; stops a pass mid-chain

	head       *block[T]
	blocks     int
	pending    int
	seq        uint64 // sequence number of the next posted record
	chainStart uint64 // sequence number of the oldest buffered record
	state      ChannelState
	subs       subscriberList[T]

	posted    uint64
	delivered uint64
	calls     uint64
}

func newChannel[T any](id TypeID, payload, heap *arena.Arena, blockCap int, policy Policy) *channel[T] {
	return &channel[T]{
		id:       id,
		name:     reflect.TypeFor[T]().String(),
		payload:  payload,
		heap:     heap,
		blockCap: blockCap,
		stride:   recordStride[T](),
		policy:   policy,
		subs:     newSubscriberList[T](),
	}
}

func channelHeaderSize[T any]() int {
	var c channel[T]
	return int(unsafe.Sizeof(c))
}

// allocSlot returns a writable slot in the newest block, linking a new block
// from the payload arena when needed. On error the channel is unchanged.
func (c *channel[T]) allocSlot() (*T, error) {
	if c.head == nil || c.head.full() {
		b, err := newBlock[T](c.payload, c.stride, c.blockCap)
		if err != nil {
			return nil, err
		}
		b.next = c.head
		c.head = b
		c.blocks++
	}
	if c.pending == 0 {
		c.chainStart = c.seq
	}
	if c.state == StateEmpty {
		c.state = StateBuffering
	}
	return c.head.alloc(), nil
}

// post copies ev into the channel.
func (c *channel[T]) post(ev T) error {
	slot, err := c.allocSlot()
	if err != nil {
		return err
	}
	*slot = ev
	c.seq++
	c.pending++
	c.posted++
	return nil
}

// addSubscriber links cb unless an equal callback is already subscribed.
func (c *channel[T]) addSubscriber(cb delegate.Callback[T]) (bool, error) {
	if c.subs.find(cb) != noNode {
		return false, nil
	}
	if err := c.subs.add(cb, c.seq, c.heap); err != nil {
		return false, err
	}
	return true, nil
}

// removeSubscriber unlinks cb and reports whether it was subscribed.
func (c *channel[T]) removeSubscriber(cb delegate.Callback[T]) bool {
	i := c.subs.find(cb)
	if i == noNode {
		return false
	}
	if c.owesRecords(i) {
		c.subs.retire(i, c.seq)
	} else {
		c.subs.remove(i)
	}
	return true
}

// owesRecords reports whether node i must stay linked to receive records
// posted before now.
func (c *channel[T]) owesRecords(i int32) bool {
	if c.policy != DeliverAsPosted {
		return false
	}
	if c.state == StateDispatching {
		return true
	}
	return c.pending > 0 && c.subs.nodes[i].from < c.seq
}

// dispatch delivers every buffered record to the subscribers and drops the
// chain. Records posted from inside a callback land on a fresh chain and
// wait for the next pass.
func (c *channel[T]) dispatch() int {
	if c.head == nil {
		return 0
	}

	chain := reverseChain(c.head)
	seq := c.chainStart
	c.head = nil
	c.blocks = 0
	c.pending = 0
	c.state = StateDispatching

	windowed := c.policy == DeliverAsPosted
	records := 0

	c.subs.beginWalk()
	for b := chain; b != nil && !c.halted(); b = b.next {
		for i := 0; i < b.count && !c.halted(); i++ {
			c.calls += uint64(c.subs.deliver(*b.slot(i), seq, windowed))
			seq++
			records++
		}
	}
	c.subs.endWalk()

	c.state = StateEmpty
	if c.head != nil {
		c.state = StateBuffering
	}
	c.dropRetired()

	c.delivered += uint64(records)
	return records
}

func (c *channel[T]) halted() bool {
	return c.closed != nil && *c.closed
}

// dropRetired releases retiring nodes that are owed nothing more.
func (c *channel[T]) dropRetired() {
	for i := c.subs.head; i != noNode; {
		n := &c.subs.nodes[i]
		next := n.next
		if n.state == nodeRetiring && (c.pending == 0 || c.chainStart >= n.until) {
			c.subs.remove(i)
		}
		i = next
	}
}

// teardown releases the subscriber list. Blocks belong to the arena.
func (c *channel[T]) teardown() {
	c.subs.release()
	c.head = nil
	c.blocks = 0
	c.pending = 0
	c.state = StateTornDown
}

func (c *channel[T]) pendingRecords() int {
	return c.pending
}

func (c *channel[T]) info() ChannelInfo {
	return ChannelInfo{
		ID:          c.id,
		Type:        c.name,
		State:       c.state.String(),
		RecordSize:  int(c.stride),
		Pending:     c.pending,
		Blocks:      c.blocks,
		Subscribers: c.subs.active,
		Posted:      c.posted,
		Delivered:   c.delivered,
		Invocations: c.calls,
	}
}
