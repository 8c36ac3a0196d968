// Package eventbus implements a deferred, in-process publish/subscribe bus
// for plain-data events.
//
// # Overview
//
// Producers post typed records without knowing who reads them; consumers
// subscribe a [delegate.Callback] for a type without knowing who posts.
// Posting only copies the record into a per-type channel. Nothing is
// delivered until the owner calls [Bus.ProcessAll], typically once per frame
// of a simulation loop.
//
//	bus, _ := eventbus.New(eventbus.DefaultConfig())
//	defer bus.Teardown()
//
//	eventbus.SubscribeMethod(bus, &physics, (*Physics).OnCollision)
//	eventbus.SubscribeFunc(bus, logCollision)
//
//	eventbus.Post(bus, Collision{A: 1, B: 2})
//	bus.ProcessAll()   // both subscribers run here
//	bus.ResetPayload() // reclaim record memory for the next frame
//
// # Memory
//
// Records are stored in blocks carved from the payload arena. Blocks are
// never freed one by one: after a pass the chain is dropped and the memory
// comes back only through [Bus.ResetPayload], which the owner calls at a
// processing boundary. A process that runs indefinitely must reset every
// pass or size the arena for its whole lifetime.
//
// Channel headers and subscriber nodes are charged to the heap arena.
// Subscriber slots released by Unsubscribe are reused.
//
// Event types must be plain data: no pointers, strings, slices, maps,
// interfaces, functions or channels, at any depth.
//
// # Delivery order
//
// Within a pass, channels run in type id order, records in post order and,
// for each record, subscribers from most to least recently subscribed.
//
// # Unsubscribe and buffered records
//
// With [DeliverToCurrent] (the default) delivery uses the subscriber list as
// it stands when ProcessAll runs, so unsubscribing suppresses records that
// were already buffered. With [DeliverAsPosted] each subscriber receives
// exactly the records posted while it was subscribed.
//
// # Errors
//
// Arena exhaustion and a full channel table are reported as *Error values
// matching [ErrOutOfMemory] and [ErrCapacityExceeded]. A failed Post leaves
// previously buffered records untouched. Duplicate subscriptions and unknown
// unsubscriptions are not errors; they are reported through the boolean
// results.
//
// # Concurrency
//
// A Bus is single-threaded. Only the [Registry] is synchronized, so that
// several buses can share one.
package eventbus
