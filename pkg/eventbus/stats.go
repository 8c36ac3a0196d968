package eventbus

import (
	"time"

	"github.com/smazurov/framebus/pkg/arena"
)

// ChannelInfo describes one channel.
type ChannelInfo struct {
	ID          TypeID `json:"id" doc:"Event type identifier"`
	Type        string `json:"type" doc:"Go type of the event"`
	State       string `json:"state" enum:"empty,buffering,dispatching,torn_down" doc:"Channel state"`
	RecordSize  int    `json:"record_size" doc:"Aligned record size in bytes"`
	Pending     int    `json:"pending" doc:"Records waiting for the next pass"`
	Blocks      int    `json:"blocks" doc:"Record blocks in the current chain"`
	Subscribers int    `json:"subscribers" doc:"Active subscribers"`
	Posted      uint64 `json:"posted" doc:"Records posted over the channel lifetime"`
	Delivered   uint64 `json:"delivered" doc:"Records dispatched over the channel lifetime"`
	Invocations uint64 `json:"invocations" doc:"Callback invocations over the channel lifetime"`
}

// PassInfo summarises one ProcessAll call.
type PassInfo struct {
	Pass      uint64        `json:"pass"`
	Channels  int           `json:"channels"`
	Records   int           `json:"records"`
	Duration  time.Duration `json:"duration"`
	Remaining int           `json:"remaining"`
}

// Stats is a snapshot of the whole bus.
type Stats struct {
	Channels    int           `json:"channels" doc:"Registered channels"`
	MaxChannels int           `json:"max_channels" doc:"Channel table size"`
	Pending     int           `json:"pending" doc:"Records buffered across all channels"`
	Posted      uint64        `json:"posted" doc:"Successful posts"`
	FailedPosts uint64        `json:"failed_posts" doc:"Posts rejected with an error"`
	Delivered   uint64        `json:"delivered" doc:"Records dispatched"`
	Passes      uint64        `json:"passes" doc:"ProcessAll calls"`
	Closed      bool          `json:"closed" doc:"Whether the bus is torn down"`
	Payload     arena.Stats   `json:"payload" doc:"Payload arena usage"`
	Heap        arena.Stats   `json:"heap" doc:"Heap arena usage"`
	PerChannel  []ChannelInfo `json:"per_channel" doc:"Per-channel details in id order"`
}
