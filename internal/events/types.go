package events

import (
	"time"

	"github.com/smazurov/framebus/internal/logging"
)

// Event type constants for kelindar/event.
const (
	TypeFrameProcessed uint32 = iota + 1
	TypeChannelCreated
	TypePostFailed
	TypePayloadReset
	TypeScenarioReloaded
	TypeLogEntry
)

// Event is the constraint kelindar/event places on published values.
type Event interface {
	Type() uint32
}

// FrameProcessed is published after every simulated frame.
type FrameProcessed struct {
	Scenario    string        `json:"scenario" example:"collisions" doc:"Scenario name"`
	Frame       uint64        `json:"frame" example:"42" doc:"Frame number, starting at 1"`
	Posted      int           `json:"posted" doc:"Records posted this frame"`
	FailedPosts int           `json:"failed_posts" doc:"Posts rejected this frame"`
	Delivered   int           `json:"delivered" doc:"Records delivered by ProcessAll"`
	Pending     int           `json:"pending" doc:"Records left for the next frame"`
	PayloadUsed int           `json:"payload_used" doc:"Payload arena bytes used before reset"`
	Duration    time.Duration `json:"duration_ns" doc:"Frame duration in nanoseconds"`
	Timestamp   time.Time     `json:"timestamp" doc:"Frame end time"`
}

// Type returns TypeFrameProcessed.
func (FrameProcessed) Type() uint32 { return TypeFrameProcessed }

// ChannelCreated is published when the bus creates a channel for a new type.
type ChannelCreated struct {
	ID         uint32    `json:"id" doc:"Event type identifier"`
	EventType  string    `json:"event_type" example:"sim.Collision" doc:"Go type of the event"`
	RecordSize int       `json:"record_size" doc:"Aligned record size in bytes"`
	Timestamp  time.Time `json:"timestamp"`
}

// Type returns TypeChannelCreated.
func (ChannelCreated) Type() uint32 { return TypeChannelCreated }

// PostFailed is published when a post is rejected for lack of memory.
type PostFailed struct {
	ID        uint32    `json:"id" doc:"Event type identifier"`
	EventType string    `json:"event_type" doc:"Go type of the event"`
	Pending   int       `json:"pending" doc:"Records buffered on the channel"`
	Error     string    `json:"error" doc:"Error message"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns TypePostFailed.
func (PostFailed) Type() uint32 { return TypePostFailed }

// PayloadReset is published when the payload arena is reclaimed.
type PayloadReset struct {
	Used        int       `json:"used" doc:"Bytes reclaimed"`
	Allocations int       `json:"allocations" doc:"Blocks reclaimed"`
	Generation  uint64    `json:"generation" doc:"Reset count before this reset"`
	Timestamp   time.Time `json:"timestamp"`
}

// Type returns TypePayloadReset.
func (PayloadReset) Type() uint32 { return TypePayloadReset }

// ScenarioReloaded is published after a scenario file change was applied or
// rejected.
type ScenarioReloaded struct {
	Name      string    `json:"name" doc:"Scenario name"`
	Previous  string    `json:"previous,omitempty" doc:"Scenario replaced by an applied reload"`
	Producers int       `json:"producers" doc:"Producers after reload"`
	Consumers int       `json:"consumers" doc:"Consumers after reload"`
	Error     string    `json:"error,omitempty" doc:"Set when the reload was rejected"`
	Timestamp time.Time `json:"timestamp"`
}

// Type returns TypeScenarioReloaded.
func (ScenarioReloaded) Type() uint32 { return TypeScenarioReloaded }

// LogEntry carries one captured log record.
type LogEntry struct {
	logging.Entry
}

// Type returns TypeLogEntry.
func (LogEntry) Type() uint32 { return TypeLogEntry }
