package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smazurov/framebus/pkg/arena"
	"github.com/smazurov/framebus/pkg/eventbus"
)

// StatsSource yields a consistent bus snapshot. Implementations must be safe
// to call from the scrape goroutine.
type StatsSource interface {
	Stats() eventbus.Stats
}

// BusCollector reads a bus snapshot on every scrape.
type BusCollector struct {
	src StatsSource

	arenaCapacity    *prometheus.Desc
	arenaUsed        *prometheus.Desc
	arenaAllocations *prometheus.Desc
	arenaResets      *prometheus.Desc
	channels         *prometheus.Desc
	maxChannels      *prometheus.Desc
	pending          *prometheus.Desc
	posted           *prometheus.Desc
	failedPosts      *prometheus.Desc
	delivered        *prometheus.Desc
	passes           *prometheus.Desc
	chanPending      *prometheus.Desc
	chanSubscribers  *prometheus.Desc
	chanDelivered    *prometheus.Desc
	chanInvocations  *prometheus.Desc
}

// NewBusCollector creates a collector over src.
func NewBusCollector(src StatsSource) *BusCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "bus", name), help, labels, nil)
	}
	return &BusCollector{
		src:              src,
		arenaCapacity:    desc("arena_capacity_bytes", "Arena size", "arena"),
		arenaUsed:        desc("arena_used_bytes", "Arena bytes in use", "arena"),
		arenaAllocations: desc("arena_allocations", "Allocations since the last reset", "arena"),
		arenaResets:      desc("arena_resets_total", "Arena resets", "arena"),
		channels:         desc("channels", "Registered channels"),
		maxChannels:      desc("channels_max", "Channel table size"),
		pending:          desc("pending_records", "Records waiting for the next pass"),
		posted:           desc("posted_total", "Records posted"),
		failedPosts:      desc("failed_posts_total", "Posts rejected with an error"),
		delivered:        desc("delivered_total", "Records dispatched"),
		passes:           desc("passes_total", "ProcessAll calls"),
		chanPending:      desc("channel_pending_records", "Records buffered per channel", "event_type"),
		chanSubscribers:  desc("channel_subscribers", "Active subscribers per channel", "event_type"),
		chanDelivered:    desc("channel_delivered_total", "Records dispatched per channel", "event_type"),
		chanInvocations:  desc("channel_invocations_total", "Callback invocations per channel", "event_type"),
	}
}

// Describe implements prometheus.Collector.
func (c *BusCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.arenaCapacity, c.arenaUsed, c.arenaAllocations, c.arenaResets,
		c.channels, c.maxChannels, c.pending, c.posted, c.failedPosts, c.delivered, c.passes,
		c.chanPending, c.chanSubscribers, c.chanDelivered, c.chanInvocations,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *BusCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()

	c.collectArena(ch, "payload", s.Payload)
	c.collectArena(ch, "heap", s.Heap)

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}

	gauge(c.channels, float64(s.Channels))
	gauge(c.maxChannels, float64(s.MaxChannels))
	gauge(c.pending, float64(s.Pending))
	counter(c.posted, float64(s.Posted))
	counter(c.failedPosts, float64(s.FailedPosts))
	counter(c.delivered, float64(s.Delivered))
	counter(c.passes, float64(s.Passes))

	for _, info := range s.PerChannel {
		gauge(c.chanPending, float64(info.Pending), info.Type)
		gauge(c.chanSubscribers, float64(info.Subscribers), info.Type)
		counter(c.chanDelivered, float64(info.Delivered), info.Type)
		counter(c.chanInvocations, float64(info.Invocations), info.Type)
	}
}

func (c *BusCollector) collectArena(ch chan<- prometheus.Metric, name string, a arena.Stats) {
	ch <- prometheus.MustNewConstMetric(c.arenaCapacity, prometheus.GaugeValue, float64(a.Capacity), name)
	ch <- prometheus.MustNewConstMetric(c.arenaUsed, prometheus.GaugeValue, float64(a.Used), name)
	ch <- prometheus.MustNewConstMetric(c.arenaAllocations, prometheus.GaugeValue, float64(a.Allocations), name)
	ch <- prometheus.MustNewConstMetric(c.arenaResets, prometheus.CounterValue, float64(a.Generation), name)
}
