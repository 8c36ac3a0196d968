package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/events"
	"github.com/smazurov/framebus/pkg/eventbus"
)

// ErrClosed is returned by Step after Close.
var ErrClosed = errors.New("simulator closed")

// FrameReport summarises one frame.
type FrameReport struct {
	Frame       uint64        `json:"frame"`
	Posted      int           `json:"posted"`
	FailedPosts int           `json:"failed_posts"`
	Delivered   int           `json:"delivered"`
	Pending     int           `json:"pending"`
	PayloadUsed int           `json:"payload_used"`
	Duration    time.Duration `json:"duration_ns"`
}

// Summary accumulates every frame since the scenario was applied.
type Summary struct {
	Scenario    string           `json:"scenario" doc:"Scenario name"`
	Frames      uint64           `json:"frames" doc:"Frames run"`
	Posted      uint64           `json:"posted" doc:"Records posted"`
	FailedPosts uint64           `json:"failed_posts" doc:"Posts rejected"`
	Delivered   uint64           `json:"delivered" doc:"Records delivered"`
	PeakPayload int              `json:"peak_payload" doc:"Largest payload arena use seen in one frame"`
	Busy        time.Duration    `json:"busy_ns" doc:"Time spent inside frames"`
	Consumers   []ConsumerReport `json:"consumers" doc:"Consumer state"`
}

type producer struct {
	name  string
	kind  *kind
	count int
	every uint64
}

// world is everything built from one scenario.
type world struct {
	scenario  config.Scenario
	tick      time.Duration
	bus       *eventbus.Bus
	producers []producer
	consumers []*consumer
	frame     uint64
	totals    Summary
}

// Simulator drives an event bus one frame at a time: producers post,
// ProcessAll delivers and the payload arena is reset.
type Simulator struct {
	logger    *slog.Logger
	busLogger *slog.Logger
	diag      *events.Bus

	mu      sync.Mutex
	w       *world
	pending *config.Scenario
	closed  bool
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithLogger sets the simulator logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithBusLogger sets the logger handed to every event bus the simulator
// builds.
func WithBusLogger(l *slog.Logger) Option {
	return func(s *Simulator) {
		s.busLogger = l
	}
}

// WithDiagnostics publishes frame and bus diagnostics on d.
func WithDiagnostics(d *events.Bus) Option {
	return func(s *Simulator) {
		s.diag = d
	}
}

// New builds a simulator for sc.
func New(sc config.Scenario, opts ...Option) (*Simulator, error) {
	s := &Simulator{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(s)
	}

	w, err := s.build(sc)
	if err != nil {
		return nil, err
	}
	s.w = w
	s.logger.Info("Scenario loaded", "scenario", sc.Name,
		"producers", len(w.producers), "consumers", len(w.consumers), "policy", w.bus.Config().Policy)
	return s, nil
}

func (s *Simulator) build(sc config.Scenario) (*world, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg, err := sc.Bus.EventBus()
	if err != nil {
		return nil, err
	}
	tick, err := sc.Tick()
	if err != nil {
		return nil, err
	}

	w := &world{scenario: sc, tick: tick, totals: Summary{Scenario: sc.Name}}
	for i, p := range sc.Producers {
		k, err := lookupKind(p.Event)
		if err != nil {
			return nil, fmt.Errorf("producer %d: %w", i, err)
		}
		w.producers = append(w.producers, producer{
			name:  orDefault(p.Name, fmt.Sprintf("producer-%d", i)),
			kind:  k,
			count: p.Count,
			every: uint64(max(p.Every, 1)),
		})
	}
	for i, c := range sc.Consumers {
		k, err := lookupKind(c.Event)
		if err != nil {
			return nil, fmt.Errorf("consumer %d: %w", i, err)
		}
		cons := &consumer{
			name:       orDefault(c.Name, fmt.Sprintf("consumer-%d", i)),
			kind:       k,
			leaveAfter: uint64(c.LeaveAfter),
			acc:        &Accumulator{},
		}
		if c.Binding == config.BindFunc {
			cons.binding = bindFunc
			cons.tallyBase = Tally(k.name)
		}
		w.consumers = append(w.consumers, cons)
	}

	busOpts := []eventbus.Option{eventbus.WithLogger(s.busLogger)}
	if s.diag != nil {
		busOpts = append(busOpts, eventbus.WithHooks(events.BusHooks(s.diag)))
	}
	w.bus, err = eventbus.New(cfg, busOpts...)
	if err != nil {
		return nil, err
	}

	for _, c := range w.consumers {
		added, err := c.kind.subscribe(w.bus, c)
		if err != nil {
			w.bus.Teardown()
			return nil, fmt.Errorf("consumer %s: %w", c.name, err)
		}
		c.subscribed = added
		c.duplicate = !added
		if !added {
			s.logger.Warn("Consumer already subscribed", "consumer", c.name, "event", c.kind.name, "binding", c.binding)
		}
	}
	return w, nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Step runs one frame.
func (s *Simulator) Step() (FrameReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return FrameReport{}, ErrClosed
	}
	if s.pending != nil {
		s.applyPending()
	}

	w := s.w
	start := time.Now()
	w.frame++
	r := FrameReport{Frame: w.frame}

	for _, c := range w.consumers {
		if c.subscribed && c.leaveAfter > 0 && w.frame > c.leaveAfter {
			c.kind.unsubscribe(w.bus, c)
			c.subscribed = false
			s.logger.Info("Consumer left", "consumer", c.name, "event", c.kind.name, "frame", w.frame)
		}
	}

	for _, p := range w.producers {
		if (w.frame-1)%p.every != 0 {
			continue
		}
		for i := range p.count {
			err := p.kind.post(w.bus, w.frame, i)
			switch {
			case err == nil:
				r.Posted++
			case errors.Is(err, eventbus.ErrOutOfMemory), errors.Is(err, eventbus.ErrCapacityExceeded):
				r.FailedPosts++
			default:
				return r, fmt.Errorf("producer %s: %w", p.name, err)
			}
		}
	}

	r.PayloadUsed = w.bus.Stats().Payload.Used
	r.Delivered = w.bus.ProcessAll()
	r.Pending = w.bus.Pending()
	if r.Pending == 0 {
		if err := w.bus.ResetPayload(); err != nil {
			return r, err
		}
	}
	r.Duration = time.Since(start)

	w.totals.Frames++
	w.totals.Posted += uint64(r.Posted)
	w.totals.FailedPosts += uint64(r.FailedPosts)
	w.totals.Delivered += uint64(r.Delivered)
	w.totals.PeakPayload = max(w.totals.PeakPayload, r.PayloadUsed)
	w.totals.Busy += r.Duration

	if r.FailedPosts > 0 {
		s.logger.Warn("Frame dropped records", "frame", r.Frame, "failed", r.FailedPosts, "posted", r.Posted)
	}
	s.logger.Debug("Frame processed", "frame", r.Frame, "posted", r.Posted,
		"delivered", r.Delivered, "payload_used", r.PayloadUsed, "duration", r.Duration)

	if s.diag != nil {
		events.Publish(s.diag, events.FrameProcessed{
			Scenario:    w.scenario.Name,
			Frame:       r.Frame,
			Posted:      r.Posted,
			FailedPosts: r.FailedPosts,
			Delivered:   r.Delivered,
			Pending:     r.Pending,
			PayloadUsed: r.PayloadUsed,
			Duration:    r.Duration,
			Timestamp:   time.Now(),
		})
	}
	return r, nil
}

// Run steps until frames have run or ctx is done. A non-positive frames
// runs until ctx is done. Frames are paced by the scenario tick interval.
func (s *Simulator) Run(ctx context.Context, frames int) (Summary, error) {
	var tick <-chan time.Time
	if d := s.TickInterval(); d > 0 {
		ticker := time.NewTicker(d)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 0; frames <= 0 || n < frames; n++ {
		if err := ctx.Err(); err != nil {
			return s.Summary(), err
		}
		if _, err := s.Step(); err != nil {
			return s.Summary(), err
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return s.Summary(), ctx.Err()
		case <-tick:
		}
	}
	return s.Summary(), nil
}

// Reload validates sc and queues it. It takes effect at the start of the
// next frame, so a frame never mixes two scenarios.
func (s *Simulator) Reload(sc config.Scenario) error {
	if err := s.check(sc); err != nil {
		s.logger.Warn("Scenario rejected", "scenario", sc.Name, "error", err)
		s.publishReload(sc, err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.pending = &sc
	s.logger.Info("Scenario reload queued", "scenario", sc.Name)
	return nil
}

func (s *Simulator) check(sc config.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	for i, p := range sc.Producers {
		if _, err := lookupKind(p.Event); err != nil {
			return fmt.Errorf("producer %d: %w", i, err)
		}
	}
	for i, c := range sc.Consumers {
		if _, err := lookupKind(c.Event); err != nil {
			return fmt.Errorf("consumer %d: %w", i, err)
		}
	}
	return nil
}

// applyPending swaps in the queued scenario. The old bus is kept when the
// new one cannot be built. Callers hold s.mu.
func (s *Simulator) applyPending() {
	sc := *s.pending
	s.pending = nil

	w, err := s.build(sc)
	if err != nil {
		s.logger.Warn("Scenario reload failed, keeping previous", "scenario", sc.Name, "error", err)
		s.publishReload(sc, err)
		return
	}
	previous := s.w.scenario.Name
	s.w.bus.Teardown()
	s.w = w
	s.logger.Info("Scenario reloaded", "scenario", sc.Name, "previous", previous,
		"producers", len(w.producers), "consumers", len(w.consumers))
	s.publishApplied(sc, previous)
}

func (s *Simulator) publishApplied(sc config.Scenario, previous string) {
	if s.diag == nil {
		return
	}
	events.Publish(s.diag, events.ScenarioReloaded{
		Name:      sc.Name,
		Previous:  previous,
		Producers: len(sc.Producers),
		Consumers: len(sc.Consumers),
		Timestamp: time.Now(),
	})
}

func (s *Simulator) publishReload(sc config.Scenario, err error) {
	if s.diag == nil {
		return
	}
	ev := events.ScenarioReloaded{
		Name:      sc.Name,
		Producers: len(sc.Producers),
		Consumers: len(sc.Consumers),
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	events.Publish(s.diag, ev)
}

// Stats snapshots the current bus.
func (s *Simulator) Stats() eventbus.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.bus.Stats()
}

// Channel describes one channel of the current bus.
func (s *Simulator) Channel(id eventbus.TypeID) (eventbus.ChannelInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.bus.Channel(id)
}

// Summary reports totals and consumer state for the current scenario.
func (s *Simulator) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := s.w.totals
	sum.Consumers = make([]ConsumerReport, 0, len(s.w.consumers))
	for _, c := range s.w.consumers {
		sum.Consumers = append(sum.Consumers, c.report())
	}
	return sum
}

// Scenario returns the scenario currently applied.
func (s *Simulator) Scenario() config.Scenario {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.scenario
}

// TickInterval returns the current frame pacing.
func (s *Simulator) TickInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.tick
}

// Close tears the bus down. Further steps fail with ErrClosed.
func (s *Simulator) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.w.bus.Teardown()
	s.logger.Debug("Simulator closed", "frames", s.w.totals.Frames)
}
