// Package metrics exposes event bus and simulator metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "framebus"

var (
	framesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sim",
		Name:      "frames_total",
		Help:      "Simulated frames processed",
	}, []string{"scenario"})

	frameDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "sim",
		Name:      "frame_duration_seconds",
		Help:      "Time spent posting, dispatching and resetting one frame",
		Buckets:   prometheus.ExponentialBuckets(0.00001, 4, 10),
	}, []string{"scenario"})

	frameRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sim",
		Name:      "records_delivered_total",
		Help:      "Records delivered by ProcessAll across frames",
	}, []string{"scenario"})

	postFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "bus",
		Name:      "post_failures_total",
		Help:      "Posts rejected because an arena was exhausted",
	}, []string{"event_type"})

	scenarioReloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "sim",
		Name:      "scenario_reloads_total",
		Help:      "Scenario file reloads by result",
	}, []string{"result"})
)

// ObserveFrame records one completed frame.
func ObserveFrame(scenario string, delivered int, d time.Duration) {
	framesTotal.WithLabelValues(scenario).Inc()
	frameRecords.WithLabelValues(scenario).Add(float64(delivered))
	frameDuration.WithLabelValues(scenario).Observe(d.Seconds())
}

// IncPostFailure counts a rejected post.
func IncPostFailure(eventType string) {
	postFailures.WithLabelValues(eventType).Inc()
}

// IncScenarioReload counts a scenario reload attempt.
func IncScenarioReload(ok bool) {
	result := "applied"
	if !ok {
		result = "rejected"
	}
	scenarioReloads.WithLabelValues(result).Inc()
}

// DeleteScenario drops the per-scenario series.
func DeleteScenario(scenario string) {
	framesTotal.DeleteLabelValues(scenario)
	frameRecords.DeleteLabelValues(scenario)
	frameDuration.DeleteLabelValues(scenario)
}

// HTTPHandler serves the default registry.
func HTTPHandler() http.Handler {
	return promhttp.Handler()
}
