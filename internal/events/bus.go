package events

import (
	"time"

	"github.com/kelindar/event"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/eventbus"
)

// Bus carries diagnostics between the simulator and its observers. Delivery
// is asynchronous: every subscriber runs on its own goroutine.
type Bus struct {
	dispatcher *event.Dispatcher
}

// New creates a diagnostics bus.
func New() *Bus {
	return &Bus{dispatcher: event.NewDispatcher()}
}

// Publish sends ev to every subscriber of T.
func Publish[T Event](b *Bus, ev T) {
	event.Publish(b.dispatcher, ev)
}

// Subscribe registers fn for events of type T and returns a function that
// removes it.
func Subscribe[T Event](b *Bus, fn func(T)) func() {
	cancel := event.Subscribe(b.dispatcher, fn)
	return func() { cancel() }
}

// BusHooks returns event bus hooks that republish channel creation, failed
// posts and payload resets as diagnostics.
func BusHooks(b *Bus) eventbus.Hooks {
	return eventbus.Hooks{
		ChannelCreated: func(info eventbus.ChannelInfo) {
			Publish(b, ChannelCreated{
				ID:         uint32(info.ID),
				EventType:  info.Type,
				RecordSize: info.RecordSize,
				Timestamp:  time.Now(),
			})
		},
		PostFailed: func(info eventbus.ChannelInfo, err error) {
			Publish(b, PostFailed{
				ID:        uint32(info.ID),
				EventType: info.Type,
				Pending:   info.Pending,
				Error:     err.Error(),
				Timestamp: time.Now(),
			})
		},
		PayloadReset: func(before arena.Stats) {
			Publish(b, PayloadReset{
				Used:        before.Used,
				Allocations: before.Allocations,
				Generation:  before.Generation,
				Timestamp:   time.Now(),
			})
		},
	}
}

// LogSink republishes captured log entries.
func LogSink(b *Bus) logging.EntrySink {
	return func(e logging.Entry) {
		Publish(b, LogEntry{Entry: e})
	}
}
