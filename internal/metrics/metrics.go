// Package metrics holds the Prometheus collectors of the order service. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "courier_order"

type Metrics struct {
	Transitions *prometheus.CounterVec
	Published   *prometheus.CounterVec
	Consumed    *prometheus.CounterVec
	Commits     *prometheus.CounterVec
	BatchSize   *prometheus.HistogramVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "State transitions requested, by target state and outcome.",
		}, []string{"state", "outcome"}),
		Published: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Order events sent to the bus, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		Consumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_consumed_total",
			Help:      "Order events handled by the listener, by topic and outcome.",
		}, []string{"topic", "outcome"}),
		Commits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_committed_total",
			Help:      "Consumer batches whose offsets were committed.",
		}, []string{"topic"}),
		BatchSize: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_size",
			Help:      "Messages per polled batch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250},
		}, []string{"topic"}),
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

func (m *Metrics) ObserveTransition(state string, err error) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state, outcome(err)).Inc()
}

func (m *Metrics) ObservePublish(topic string, err error) {
	if m == nil {
		return
	}
	m.Published.WithLabelValues(topic, outcome(err)).Inc()
}

func (m *Metrics) ObserveConsumed(topic string, err error) {
	if m == nil {
		return
	}
	m.Consumed.WithLabelValues(topic, outcome(err)).Inc()
}

func (m *Metrics) ObserveBatch(topic string, size int) {
	if m == nil {
		return
	}
	m.BatchSize.WithLabelValues(topic).Observe(float64(size))
}

func (m *Metrics) ObserveCommit(topic string) {
	if m == nil {
		return
	}
	m.Commits.WithLabelValues(topic).Inc()
}
