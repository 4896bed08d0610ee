// Package metrics exposes the node's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tigerdelta"

// Discard reasons
const (
	ReasonUndersized = "undersized"
	ReasonOversized  = "oversized"
)

// Defense modes
const (
	ModeStable = "stable"
	ModeShadow = "shadow"
)

// Response outcomes
const (
	OutcomeSent      = "sent"
	OutcomeFailed    = "failed"
	OutcomeLimited   = "limited"
	OutcomeOpen      = "breaker_open"
	OutcomeCancelled = "cancelled"
)

// Metrics groups every collector the node exports.
type Metrics struct {
	registry prometheus.Gatherer

	Received     prometheus.Counter
	Discarded    *prometheus.CounterVec
	Dropped      prometheus.Counter
	Enqueued     prometheus.Counter
	Scored       prometheus.Counter
	Verdicts     *prometheus.CounterVec
	Responses    *prometheus.CounterVec
	NovelSources prometheus.Counter
	Probability  prometheus.Histogram

	Entropy       prometheus.Gauge
	Valence       prometheus.Gauge
	DefenseMass   prometheus.Gauge
	MutationPhase prometheus.Gauge
	QueueDepth    prometheus.Gauge
	ShadowMode    prometheus.Gauge
	Tracked       prometheus.Gauge
}

// New registers all collectors on reg.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		registry: reg,
		Received: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "datagrams_received_total",
			Help: "Datagrams read from the UDP socket",
		}),
		Discarded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "datagrams_discarded_total",
			Help: "Datagrams discarded by the size gate",
		}, []string{"reason"}),
		Dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_dropped_total",
			Help: "Items dropped because the dispatch queue was full",
		}),
		Enqueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "queue_enqueued_total",
			Help: "Items handed to the scoring task",
		}),
		Scored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_scored_total",
			Help: "Items processed by the scoring task",
		}),
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "verdicts_total",
			Help: "Scoring verdicts",
		}, []string{"verdict"}),
		Responses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "responses_total",
			Help: "Response datagrams by kind, defense mode and outcome",
		}, []string{"kind", "mode", "outcome"}),
		NovelSources: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "novel_sources_total",
			Help: "First-contact source addresses",
		}),
		Probability: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "threat_probability",
			Help:    "Threat probability of scored items",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		Entropy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "lifecycle_entropy",
			Help: "Life-cycle controller entropy",
		}),
		Valence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resonance_valence",
			Help: "Resonance core valence energy",
		}),
		DefenseMass: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "defense_mass",
			Help: "Current defense mass",
		}),
		MutationPhase: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "resonance_mutation_phase",
			Help: "Resonance core mutation phase (0-6)",
		}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "queue_depth",
			Help: "Items waiting in the dispatch queue",
		}),
		ShadowMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "shadow_mode",
			Help: "1 while the node is in shadow mode",
		}),
		Tracked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "tracked_sources",
			Help: "Source addresses held in threat history",
		}),
	}

	reg.MustRegister(
		m.Received, m.Discarded, m.Dropped, m.Enqueued, m.Scored,
		m.Verdicts, m.Responses, m.NovelSources, m.Probability,
		m.Entropy, m.Valence, m.DefenseMass, m.MutationPhase,
		m.QueueDepth, m.ShadowMode, m.Tracked,
	)
	return m
}

// NewUnregistered builds collectors on a private registry (tests, tools).
func NewUnregistered() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveResponse counts one response attempt.
func (m *Metrics) ObserveResponse(kind, mode, outcome string) {
	m.Responses.WithLabelValues(kind, mode, outcome).Inc()
}

// ObserveDiscard counts one datagram rejected by the size gate.
func (m *Metrics) ObserveDiscard(reason string) {
	m.Discarded.WithLabelValues(reason).Inc()
}
