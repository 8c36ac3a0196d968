package metrics

import (
	"github.com/smazurov/framebus/internal/events"
)

// SubscribeDiagnostics keeps the counters in step with diagnostics published
// on bus. The returned function stops the updates.
func SubscribeDiagnostics(bus *events.Bus) func() {
	cancels := []func(){
		events.Subscribe(bus, func(e events.FrameProcessed) {
			ObserveFrame(e.Scenario, e.Delivered, e.Duration)
		}),
		events.Subscribe(bus, func(e events.PostFailed) {
			IncPostFailure(e.EventType)
		}),
		events.Subscribe(bus, func(e events.ScenarioReloaded) {
			IncScenarioReload(e.Error == "")
			if e.Error == "" && e.Previous != "" && e.Previous != e.Name {
				DeleteScenario(e.Previous)
			}
		}),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}
