// Package metrics exposes Prometheus instrumentation for the assistant.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry     *prometheus.Registry
	registryOnce sync.Once

	// Turn pipeline
	TurnsTotal        prometheus.Counter
	TurnsDropped      prometheus.Counter
	EmergenciesTotal  *prometheus.CounterVec
	BargeInsTotal     prometheus.Counter
	SelectorLatency   prometheus.Histogram
	SpeechChunkTime   prometheus.Histogram
	ControllerState   prometheus.Gauge

	// Beacon
	BeaconAttempts *prometheus.CounterVec
)

// Init registers all collectors. Safe to call more than once.
func Init() {
	registryOnce.Do(func() {
		registry = prometheus.NewRegistry()

		TurnsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assistant_turns_total",
			Help: "Total number of finalized utterances processed",
		})
		TurnsDropped = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assistant_turns_dropped_total",
			Help: "Utterances dropped because a previous turn was still in flight",
		})
		EmergenciesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_emergencies_total",
			Help: "Emergency detections by matched keyword",
		}, []string{"keyword"})
		BargeInsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assistant_barge_ins_total",
			Help: "Times user speech interrupted assistant output",
		})
		SelectorLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_selector_latency_seconds",
			Help:    "Time to resolve a query to spoken text",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		})
		SpeechChunkTime = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "assistant_speech_chunk_seconds",
			Help:    "Time to render one speech chunk to audio",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 8),
		})
		ControllerState = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "assistant_controller_state",
			Help: "Turn controller state (0=idle 1=listening 2=processing 3=speaking 4=paused)",
		})
		BeaconAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assistant_beacon_attempts_total",
			Help: "SOS beacon trigger attempts by outcome",
		}, []string{"outcome"})

		registry.MustRegister(
			TurnsTotal, TurnsDropped, EmergenciesTotal, BargeInsTotal,
			SelectorLatency, SpeechChunkTime, ControllerState, BeaconAttempts,
		)
	})
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	Init()
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// ObserveBeacon records a trigger attempt outcome.
func ObserveBeacon(ok bool) {
	outcome := "failure"
	if ok {
		outcome = "success"
	}
	BeaconAttempts.WithLabelValues(outcome).Inc()
}
