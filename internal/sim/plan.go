package sim

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/pkg/eventbus"
)

// ChannelPlan is the worst-case load of one event type.
type ChannelPlan struct {
	Event      string `json:"event"`
	RecordSize int    `json:"record_size"`
	Records    int    `json:"records"`
	Blocks     int    `json:"blocks"`
}

// PlanReport is the result of a capacity check.
type PlanReport struct {
	Scenario        string        `json:"scenario"`
	Channels        int           `json:"channels"`
	MaxChannels     int           `json:"max_channels"`
	Posted          int           `json:"posted"`
	FailedPosts     int           `json:"failed_posts"`
	PayloadUsed     int           `json:"payload_used"`
	PayloadCapacity int           `json:"payload_capacity"`
	HeapUsed        int           `json:"heap_used"`
	HeapCapacity    int           `json:"heap_capacity"`
	PerChannel      []ChannelPlan `json:"per_channel"`
}

// Fits reports whether the worst-case frame posted without loss.
func (p PlanReport) Fits() bool {
	return p.FailedPosts == 0
}

// Headroom is the unused fraction of the payload arena in the worst-case
// frame.
func (p PlanReport) Headroom() float64 {
	if p.PayloadCapacity == 0 {
		return 0
	}
	return 1 - float64(p.PayloadUsed)/float64(p.PayloadCapacity)
}

// Plan measures the worst-case frame of sc, where every producer fires at
// once, on a scratch bus with the scenario's sizes. Nothing is delivered.
func Plan(sc config.Scenario) (PlanReport, error) {
	s := &Simulator{logger: slog.New(slog.DiscardHandler)}
	w, err := s.build(sc)
	if err != nil {
		return PlanReport{}, err
	}
	defer w.bus.Teardown()

	r := PlanReport{Scenario: sc.Name}
	perKind := map[*kind]int{}
	var order []*kind
	for _, p := range w.producers {
		for i := range p.count {
			err := p.kind.post(w.bus, 1, i)
			switch {
			case err == nil:
				r.Posted++
				if _, seen := perKind[p.kind]; !seen {
					order = append(order, p.kind)
				}
				perKind[p.kind]++
			case errors.Is(err, eventbus.ErrOutOfMemory), errors.Is(err, eventbus.ErrCapacityExceeded):
				r.FailedPosts++
			default:
				return PlanReport{}, fmt.Errorf("producer %s: %w", p.name, err)
			}
		}
	}

	stats := w.bus.Stats()
	r.Channels = stats.Channels
	r.MaxChannels = stats.MaxChannels
	r.PayloadUsed = stats.Payload.Used
	r.PayloadCapacity = stats.Payload.Capacity
	r.HeapUsed = stats.Heap.Used
	r.HeapCapacity = stats.Heap.Capacity

	for _, k := range order {
		info, _ := w.bus.Channel(k.typeID(w.bus))
		r.PerChannel = append(r.PerChannel, ChannelPlan{
			Event:      k.name,
			RecordSize: info.RecordSize,
			Records:    perKind[k],
			Blocks:     info.Blocks,
		})
	}
	return r, nil
}
