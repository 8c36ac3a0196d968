package eventbus

import (
	"unsafe"

	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/delegate"
)

const noNode int32 = -1

type nodeState uint8

const (
	nodeFree nodeState = iota
	nodeActive
	// nodeRetiring nodes are unsubscribed but still owed records posted
	// before they left. Only used with DeliverAsPosted.
	nodeRetiring
)

// subscriber is one node of a channel's subscriber list. Nodes live in a pool
// and link to each other by index.
type subscriber[T any] struct {
	cb    delegate.Callback[T]
	prev  int32
	next  int32
	from  uint64 // first record sequence this node may receive
	until uint64 // first record sequence it may no longer receive
	state nodeState
}

// subscriberList is an intrusive doubly linked list over an index pool.
// New nodes are linked at the head. Slots released while a dispatch is
// walking the list are parked in deferred so indices stay stable until the
// walk ends.
type subscriberList[T any] struct {
	nodes    []subscriber[T]
	head     int32
	free     []int32
	deferred []int32
	active   int
	walking  bool
}

func newSubscriberList[T any]() subscriberList[T] {
	return subscriberList[T]{head: noNode}
}

func subscriberNodeSize[T any]() int {
	var n subscriber[T]
	return int(unsafe.Sizeof(n))
}

// find returns the active node bound to cb.
func (l *subscriberList[T]) find(cb delegate.Callback[T]) int32 {
	for i := l.head; i != noNode; i = l.nodes[i].next {
		n := &l.nodes[i]
		if n.state == nodeActive && n.cb.Equal(cb) {
			return i
		}
	}
	return noNode
}

// add links cb at the head. A new pool slot is charged to heap; reused slots
// are free.
func (l *subscriberList[T]) add(cb delegate.Callback[T], from uint64, heap *arena.Arena) error {
	var idx int32
	if n := len(l.free); n > 0 {
		idx = l.free[n-1]
		l.free = l.free[:n-1]
	} else {
		if err := heap.Reserve(subscriberNodeSize[T]()); err != nil {
			return err
		}
		l.nodes = append(l.nodes, subscriber[T]{})
		idx = int32(len(l.nodes) - 1)
	}

	l.nodes[idx] = subscriber[T]{
		cb:    cb,
		prev:  noNode,
		next:  l.head,
		from:  from,
		until: ^uint64(0),
		state: nodeActive,
	}
	if l.head != noNode {
		l.nodes[l.head].prev = idx
	}
	l.head = idx
	l.active++
	return nil
}

// retire keeps node i linked but stops it from receiving records with a
// sequence at or past until.
func (l *subscriberList[T]) retire(i int32, until uint64) {
	l.nodes[i].state = nodeRetiring
	l.nodes[i].until = until
	l.active--
}

// remove unlinks node i and releases its slot. The node's next link is left
// intact so a walk positioned on it can still move forward.
func (l *subscriberList[T]) remove(i int32) {
	n := &l.nodes[i]
	if n.state == nodeActive {
		l.active--
	}
	if n.prev != noNode {
		l.nodes[n.prev].next = n.next
	}
	if n.next != noNode {
		l.nodes[n.next].prev = n.prev
	}
	if l.head == i {
		l.head = n.next
	}
	n.state = nodeFree
	n.cb.Reset()

	if l.walking {
		l.deferred = append(l.deferred, i)
	} else {
		l.free = append(l.free, i)
	}
}

// deliver invokes every eligible node for one record. Nodes linked during the
// walk sit in front of the cursor and are picked up from the next record on.
func (l *subscriberList[T]) deliver(rec T, seq uint64, windowed bool) int {
	calls := 0
	for i := l.head; i != noNode; i = l.nodes[i].next {
		n := l.nodes[i]
		switch n.state {
		case nodeActive:
			if windowed && seq < n.from {
				continue
			}
		case nodeRetiring:
			if seq < n.from || seq >= n.until {
				continue
			}
		default:
			continue
		}
		n.cb.Invoke(rec)
		calls++
	}
	return calls
}

func (l *subscriberList[T]) beginWalk() {
	l.walking = true
}

func (l *subscriberList[T]) endWalk() {
	l.walking = false
	l.free = append(l.free, l.deferred...)
	l.deferred = l.deferred[:0]
}

// release drops every node.
func (l *subscriberList[T]) release() {
	l.nodes = nil
	l.free = nil
	l.deferred = nil
	l.head = noNode
	l.active = 0
}
